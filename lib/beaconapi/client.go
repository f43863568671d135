// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package beaconapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dalyn98/Albion-Beacon-Ver3/lib/netutil"
)

// DefaultTimeout bounds a single API call when the caller's context
// has no deadline.
const DefaultTimeout = 10 * time.Second

// Client calls the Beacon API. Safe for concurrent use.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
}

// NewClient returns a client for the server at baseURL, for example
// "http://127.0.0.1:8000". A nil httpClient selects one with
// DefaultTimeout.
func NewClient(baseURL string, httpClient *http.Client) (*Client, error) {
	parsed, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parsing server URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("server URL %q: scheme must be http or https", baseURL)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("server URL %q has no host", baseURL)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	return &Client{baseURL: parsed, httpClient: httpClient}, nil
}

// BaseURL returns the server URL without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// Health checks that the server is up.
func (c *Client) Health(ctx context.Context) (HealthResponse, error) {
	var response HealthResponse
	if err := c.do(ctx, http.MethodGet, "/v1/health", nil, nil, &response); err != nil {
		return HealthResponse{}, err
	}
	return response, nil
}

// AuthGate asks the server whether label is a recognized identity. ok
// is true when the server echoes the same label back, compared
// case-insensitively.
func (c *Client) AuthGate(ctx context.Context, label string) (AuthGateResponse, bool, error) {
	if label == "" {
		return AuthGateResponse{}, false, fmt.Errorf("%w: empty label", ErrInvalid)
	}
	var response AuthGateResponse
	if err := c.do(ctx, http.MethodPost, "/v1/auth/gate", nil, AuthGateRequest{Label: label}, &response); err != nil {
		return AuthGateResponse{}, false, err
	}
	return response, strings.EqualFold(response.Label, label), nil
}

// Heartbeat posts a location heartbeat after validating it.
func (c *Client) Heartbeat(ctx context.Context, request HeartbeatRequest) (HeartbeatResponse, error) {
	if err := request.Validate(); err != nil {
		return HeartbeatResponse{}, err
	}
	var response HeartbeatResponse
	if err := c.do(ctx, http.MethodPost, "/v1/heartbeat", nil, request, &response); err != nil {
		return HeartbeatResponse{}, err
	}
	if !response.OK {
		return response, fmt.Errorf("heartbeat rejected by server")
	}
	return response, nil
}

// Nearby lists players within hop of the caller. A non-positive hop
// selects DefaultNearbyHop. Events failing validation are an error.
func (c *Client) Nearby(ctx context.Context, hop int) ([]NearbyEvent, error) {
	if hop <= 0 {
		hop = DefaultNearbyHop
	}
	query := url.Values{"hop": {strconv.Itoa(hop)}}
	var events []NearbyEvent
	if err := c.do(ctx, http.MethodGet, "/v1/events/nearby", query, nil, &events); err != nil {
		return nil, err
	}
	for i, event := range events {
		if err := event.Validate(); err != nil {
			return nil, fmt.Errorf("nearby event %d: %w", i, err)
		}
	}
	return events, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, result any) error {
	endpoint := c.baseURL.JoinPath(path)
	if query != nil {
		endpoint.RawQuery = query.Encode()
	}

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding %s body: %w", path, err)
		}
		reader = bytes.NewReader(data)
	}

	var request *http.Request
	var err error
	if reader != nil {
		request, err = http.NewRequestWithContext(ctx, method, endpoint.String(), reader)
	} else {
		request, err = http.NewRequestWithContext(ctx, method, endpoint.String(), nil)
	}
	if err != nil {
		return fmt.Errorf("building %s request: %w", path, err)
	}
	request.Header.Set("Accept", "application/json")
	if body != nil {
		request.Header.Set("Content-Type", "application/json")
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer response.Body.Close()

	if err := netutil.CheckStatus(response); err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	if err := netutil.DecodeResponse(response.Body, result); err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	return nil
}
