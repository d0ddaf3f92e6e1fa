// Package client provides a typed HTTP client for the hermod gateway API.
package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"
)

// Client talks to a running hermod daemon.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *slog.Logger
}

// Config holds client configuration.
type Config struct {
	BaseURL  string
	APIKey   string
	Timeout  time.Duration
	Logger   *slog.Logger // optional logger for client operations
	TLS      *TLSClientConfig
	Insecure bool // skip TLS verification
}

// TLSClientConfig holds TLS configuration for the client.
type TLSClientConfig struct {
	CACert     string // CA certificate file path
	ServerName string // server name for verification
	SkipVerify bool   // skip certificate verification
}

// DefaultConfig returns default client configuration.
func DefaultConfig() Config {
	return Config{
		BaseURL: "http://localhost:8080/api",
		Timeout: 10 * time.Second,
	}
}

// New creates a new hermod API client.
func New(config Config) *Client {
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:8080/api"
	}
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	transport := &http.Transport{}
	if config.TLS != nil || config.Insecure {
		tlsConfig, err := setupClientTLS(config)
		if err != nil {
			config.Logger.Error("TLS setup failed", "error", err)
		} else {
			transport.TLSClientConfig = tlsConfig
		}
	}

	return &Client{
		baseURL: config.BaseURL,
		apiKey:  config.APIKey,
		logger:  config.Logger,
		client: &http.Client{
			Timeout:   config.Timeout,
			Transport: transport,
		},
	}
}

// IsReachable checks if the daemon is running and reachable.
func (c *Client) IsReachable(ctx context.Context) bool {
	var snap SessionStatus
	if err := c.get(ctx, "/status", &snap); err != nil {
		c.logger.Debug("daemon unreachable", "error", err)
		return false
	}
	return true
}

// Connect asks the daemon to bring the session up.
func (c *Client) Connect(ctx context.Context) error {
	return c.post(ctx, "/connect", nil, nil)
}

// Disconnect performs a user-initiated logout.
func (c *Client) Disconnect(ctx context.Context) error {
	return c.post(ctx, "/disconnect", nil, nil)
}

// Status returns the session snapshot.
func (c *Client) Status(ctx context.Context) (SessionStatus, error) {
	var out SessionStatus
	err := c.get(ctx, "/status", &out)
	return out, err
}

// Pairing returns the current pairing artifact, if one is outstanding.
func (c *Client) Pairing(ctx context.Context) (PairingArtifact, error) {
	var out PairingArtifact
	err := c.get(ctx, "/pairing", &out)
	return out, err
}

// Send delivers a message through the live session.
func (c *Client) Send(ctx context.Context, req SendRequest) error {
	return c.post(ctx, "/send", req, nil)
}

// Broadcast sends the same payload to several recipients. The call blocks
// until the daemon finishes the paced loop.
func (c *Client) Broadcast(ctx context.Context, req BroadcastRequest) (BroadcastReport, error) {
	var report BroadcastReport
	err := c.post(ctx, "/broadcast", req, &report)
	return report, err
}

// RegisterSubscriber registers a webhook subscriber.
func (c *Client) RegisterSubscriber(ctx context.Context, req SubscriberRequest) (Subscriber, error) {
	var out Subscriber
	err := c.post(ctx, "/subscriptions", req, &out)
	return out, err
}

// GetSubscriber fetches a single subscriber by id.
func (c *Client) GetSubscriber(ctx context.Context, id string) (Subscriber, error) {
	var out Subscriber
	err := c.get(ctx, "/subscriptions/"+id, &out)
	return out, err
}

// UpdateSubscriber partially updates a subscriber. Nil fields are left
// unchanged by the daemon.
func (c *Client) UpdateSubscriber(ctx context.Context, id string, req SubscriberUpdate) (Subscriber, error) {
	var out Subscriber
	err := c.doJSON(ctx, http.MethodPatch, "/subscriptions/"+id, req, &out)
	return out, err
}

// ListSubscribers returns all subscribers.
func (c *Client) ListSubscribers(ctx context.Context) ([]Subscriber, error) {
	var out []Subscriber
	err := c.get(ctx, "/subscriptions", &out)
	return out, err
}

// RemoveSubscriber deletes a subscriber by id.
func (c *Client) RemoveSubscriber(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodDelete, "/subscriptions/"+id, nil, nil)
}

// TestSubscriber triggers a synchronous test delivery.
func (c *Client) TestSubscriber(ctx context.Context, id string) error {
	return c.post(ctx, "/subscriptions/"+id+"/test", nil, nil)
}

// Stats returns pipeline statistics.
func (c *Client) Stats(ctx context.Context) (PipelineStats, error) {
	var out PipelineStats
	err := c.get(ctx, "/stats", &out)
	return out, err
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	return c.doJSON(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	return c.doJSON(ctx, http.MethodPost, path, in, out)
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr APIError
		if decodeErr := json.NewDecoder(resp.Body).Decode(&apiErr); decodeErr == nil && apiErr.Message != "" {
			apiErr.StatusCode = resp.StatusCode
			return &apiErr
		}
		return fmt.Errorf("%s %s: unexpected status %d", method, path, resp.StatusCode)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

func setupClientTLS(config Config) (*tls.Config, error) {
	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}

	if config.Insecure {
		tlsConfig.InsecureSkipVerify = true
		return tlsConfig, nil
	}

	if config.TLS != nil {
		if config.TLS.SkipVerify {
			tlsConfig.InsecureSkipVerify = true
		}
		if config.TLS.ServerName != "" {
			tlsConfig.ServerName = config.TLS.ServerName
		}
		if config.TLS.CACert != "" {
			caCert, err := os.ReadFile(config.TLS.CACert)
			if err != nil {
				return nil, fmt.Errorf("failed to read CA certificate file: %w", err)
			}
			pool := x509.NewCertPool()
			if !pool.AppendCertsFromPEM(caCert) {
				return nil, fmt.Errorf("failed to parse CA certificate %s", config.TLS.CACert)
			}
			tlsConfig.RootCAs = pool
		}
	}

	return tlsConfig, nil
}
