package api

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rickgao/realtime-feed/internal/protocol"
)

// Request is a GraphQL operation sent over HTTP.
type Request struct {
	Query         string         `json:"query"`
	Variables     map[string]any `json:"variables,omitempty"`
	OperationName string         `json:"operationName,omitempty"`
}

// Response is a GraphQL HTTP response. Data is left raw for the caller.
type Response struct {
	Data   json.RawMessage         `json:"data"`
	Errors []protocol.GraphQLError `json:"errors,omitempty"`
}

// HasData reports whether the response carries a non-null data object.
func (r *Response) HasData() bool {
	return len(r.Data) > 0 && string(r.Data) != "null"
}

// QueryError is returned when a query produced errors and no data.
type QueryError struct {
	Errors []protocol.GraphQLError
}

func (e *QueryError) Error() string {
	msgs := make([]string, 0, len(e.Errors))
	for _, ge := range e.Errors {
		if ge.ErrorType != "" {
			msgs = append(msgs, ge.ErrorType+": "+ge.Message)
		} else {
			msgs = append(msgs, ge.Message)
		}
	}
	return "graphql: " + strings.Join(msgs, "; ")
}

// Query POSTs req to the client's base URL, which must be the GraphQL
// endpoint itself. Partial results (data plus errors) are returned without
// an error; Response.Errors holds the details.
func (c *Client) Query(ctx context.Context, req Request) (*Response, error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, fmt.Errorf("graphql: empty query")
	}

	var resp Response
	if err := c.post(ctx, "", req, &resp); err != nil {
		return nil, err
	}

	if !resp.HasData() && len(resp.Errors) > 0 {
		return nil, &QueryError{Errors: resp.Errors}
	}

	return &resp, nil
}
