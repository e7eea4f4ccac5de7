package main

import (
	"fmt"
	"os"

	"github.com/rickgao/realtime-feed/internal/api"
	"github.com/rickgao/realtime-feed/internal/auth"
	"github.com/rickgao/realtime-feed/internal/config"
	"github.com/rickgao/realtime-feed/internal/connection"
	"github.com/rickgao/realtime-feed/internal/gapfill"
	"github.com/rickgao/realtime-feed/internal/subscription"
)

func endpointFromConfig(c config.EndpointConfig) (auth.Endpoint, error) {
	e, err := auth.NewEndpoint(c.Host, c.Region, c.APIKey)
	if err != nil {
		return auth.Endpoint{}, err
	}
	if c.UserAgent != "" {
		e.UserAgent = c.UserAgent
	}
	return e, nil
}

func managerConfig(c config.ConnectionConfig) connection.ManagerConfig {
	mc := connection.DefaultManagerConfig()
	mc.URL = c.URL
	mc.HandshakeTimeout = c.HandshakeTimeout
	mc.WriteTimeout = c.WriteTimeout
	mc.PingInterval = c.PingInterval
	mc.AckTimeout = c.AckTimeout
	mc.KeepaliveTimeout = c.KeepaliveTimeout
	if c.HonorServerTimeout != nil {
		mc.HonorServerTimeout = *c.HonorServerTimeout
	}
	mc.SendStopOnClose = c.SendStopOnClose
	if c.BufferSize > 0 {
		mc.MessageBufferSize = c.BufferSize
	}
	return mc
}

func reconnectConfig(c config.ReconnectConfig) connection.ReconnectConfig {
	return connection.ReconnectConfig{
		BaseDelay:   c.BaseDelay,
		MaxDelay:    c.MaxDelay,
		MaxAttempts: c.MaxAttempts,
	}
}

func gapFillConfig(c config.GapFillConfig) gapfill.Config {
	gc := gapfill.Config{
		Timeout:     c.Timeout,
		Concurrency: c.Concurrency,
	}
	for i, q := range c.Queries {
		name := q.Name
		if name == "" {
			name = fmt.Sprintf("gap_fill[%d]", i)
		}
		gc.Queries = append(gc.Queries, gapfill.Query{
			Name:      name,
			Query:     q.Query,
			Field:     q.Field,
			Variables: q.Variables,
		})
	}
	return gc
}

// graphQLClient is the HTTP client for the AppSync query endpoint.
func graphQLClient(cfg *config.Config, e auth.Endpoint, opts ...api.ClientOption) *api.Client {
	base := []api.ClientOption{
		api.WithTimeout(cfg.GapFill.Timeout),
		api.WithRetries(cfg.GapFill.MaxRetries, cfg.GapFill.RetryBackoff),
	}
	return api.NewClient(e.GraphQLURL(), cfg.Endpoint.APIKey, append(base, opts...)...)
}

// dataClient is the HTTP client for the odds data API.
func dataClient(cfg *config.Config, opts ...api.ClientOption) *api.Client {
	base := []api.ClientOption{api.WithAuthHeader(api.HeaderAPIKey)}
	return api.NewClient(cfg.Snapshot.URL, cfg.Snapshot.APIKey, append(base, opts...)...)
}

// subscriptionSpec is one subscription to start.
type subscriptionSpec struct {
	query string
	opts  []subscription.Option
}

// subscriptionSpecs merges configured subscriptions with query files given
// as arguments.
func subscriptionSpecs(subs []config.SubscriptionConfig, files []string) ([]subscriptionSpec, error) {
	specs := make([]subscriptionSpec, 0, len(subs)+len(files))
	for _, sc := range subs {
		var opts []subscription.Option
		if sc.ID != "" {
			opts = append(opts, subscription.WithID(sc.ID))
		}
		if sc.Field != "" {
			opts = append(opts, subscription.WithField(sc.Field))
		}
		if len(sc.Variables) > 0 {
			opts = append(opts, subscription.WithVariables(sc.Variables))
		}
		specs = append(specs, subscriptionSpec{query: sc.Query, opts: opts})
	}

	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read query file: %w", err)
		}
		specs = append(specs, subscriptionSpec{query: string(data)})
	}

	if len(specs) == 0 {
		return nil, fmt.Errorf("no subscriptions: add subscriptions to the config or pass a query file")
	}
	return specs, nil
}
