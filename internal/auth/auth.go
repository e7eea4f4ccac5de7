// Package auth builds the AppSync realtime authorization envelopes.
//
// AppSync's graphql-ws variant authorizes twice: once when the socket is
// opened (base64 JSON in the "header" query parameter, repeated in the
// connection_init payload) and once per subscription (the "extensions"
// object of every start frame). Everything here is a pure function of an
// Endpoint.
package auth

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
)

// DefaultUserAgent is sent as x-amz-user-agent in subscription extensions.
const DefaultUserAgent = "aws-amplify/2.0.8"

// RealtimePath is the path of the realtime WebSocket endpoint.
const RealtimePath = "/graphql/realtime"

// ConfigError reports a missing or invalid endpoint setting.
type ConfigError struct {
	Field string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("endpoint %s is required", e.Field)
}

// Endpoint identifies an AppSync API and the token used to authorize against it.
type Endpoint struct {
	Host      string // e.g. "abc123.appsync-realtime-api.us-east-1.amazonaws.com"
	Region    string
	Token     string // API key or Lambda authorizer token
	UserAgent string // Empty means DefaultUserAgent
}

// NewEndpoint returns a validated Endpoint.
func NewEndpoint(host, region, token string) (Endpoint, error) {
	e := Endpoint{Host: host, Region: region, Token: token}
	if err := e.Validate(); err != nil {
		return Endpoint{}, err
	}
	return e, nil
}

// Validate checks host and token are present.
func (e Endpoint) Validate() error {
	if e.Host == "" {
		return &ConfigError{Field: "host"}
	}
	if e.Token == "" {
		return &ConfigError{Field: "token"}
	}
	return nil
}

// ConnectionHeader is the connect-time authorization object.
type ConnectionHeader struct {
	Host          string `json:"host"`
	Authorization string `json:"Authorization"`
}

// SubscriptionAuthorization is the per-subscription authorization object.
type SubscriptionAuthorization struct {
	Host          string `json:"host"`
	Authorization string `json:"Authorization"`
	UserAgent     string `json:"x-amz-user-agent"`
}

// Extensions is the "extensions" object of a start payload.
type Extensions struct {
	Authorization SubscriptionAuthorization `json:"authorization"`
}

// InitPayload is the payload of the connection_init frame.
type InitPayload struct {
	Authorization ConnectionHeader `json:"authorization"`
}

// ConnectionHeader returns the connect-time header object.
func (e Endpoint) ConnectionHeader() ConnectionHeader {
	return ConnectionHeader{Host: e.Host, Authorization: e.Token}
}

// ConnectionPayload returns the (empty) connect-time payload object.
func (e Endpoint) ConnectionPayload() map[string]any {
	return map[string]any{}
}

// SubscriptionExtensions returns the extensions attached to every start frame.
func (e Endpoint) SubscriptionExtensions() Extensions {
	ua := e.UserAgent
	if ua == "" {
		ua = DefaultUserAgent
	}
	return Extensions{
		Authorization: SubscriptionAuthorization{
			Host:          e.Host,
			Authorization: e.Token,
			UserAgent:     ua,
		},
	}
}

// InitPayload returns the connection_init payload.
func (e Endpoint) InitPayload() InitPayload {
	return InitPayload{Authorization: e.ConnectionHeader()}
}

// RealtimeURL returns wss://<host>/graphql/realtime with the base64 header
// and payload query parameters.
func (e Endpoint) RealtimeURL() (string, error) {
	if err := e.Validate(); err != nil {
		return "", err
	}

	header, err := encode(e.ConnectionHeader())
	if err != nil {
		return "", fmt.Errorf("encode header: %w", err)
	}
	payload, err := encode(e.ConnectionPayload())
	if err != nil {
		return "", fmt.Errorf("encode payload: %w", err)
	}

	q := url.Values{}
	q.Set("header", header)
	q.Set("payload", payload)

	u := url.URL{
		Scheme:   "wss",
		Host:     e.Host,
		Path:     RealtimePath,
		RawQuery: q.Encode(),
	}
	return u.String(), nil
}

// GraphQLURL returns the HTTPS query endpoint for the same host.
func (e Endpoint) GraphQLURL() string {
	return "https://" + e.Host + "/graphql"
}

// encode marshals v compactly and base64-encodes it with padding.
func encode(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}
