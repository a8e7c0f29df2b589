// Package neurosan is a small HTTP client for the agent server endpoints
// agentnav needs: the network listing, the health check, and the
// connectivity and function endpoints of a single network.
package neurosan

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strings"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"agentnav/internal/network"
)

const (
	listPath   = "/api/v1/list"
	healthPath = "/"

	// Per-network endpoints live at /api/v1/<network>/<endpoint>.
	agentPrefix      = "/api/v1/"
	connectivityPath = "/connectivity"
	functionPath     = "/function"

	userHeader = "user_id"

	statusHealthy = "healthy"
	versionKey    = "neuro-san"

	// maxBody caps how much of a response is read.
	maxBody = 16 << 20
)

// StatusError reports a non-2xx response.
type StatusError struct {
	Op     string
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %s", e.Op, e.Status)
}

// Client talks to one agent server.
type Client struct {
	baseURL string
	userID  string
	http    *http.Client
	logger  *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger sets the logger used for request tracing.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithUserID sends id in the user_id header of every request.
func WithUserID(id string) Option {
	return func(c *Client) { c.userID = id }
}

// NewClient returns a client for the server at baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    http.DefaultClient,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the server address without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

type listResponse struct {
	Agents []network.Record `json:"agents"`
}

// List fetches every agent network the server exposes.
func (c *Client) List(ctx context.Context) ([]network.Record, error) {
	var resp listResponse
	if err := c.get(ctx, "list networks", listPath, &resp); err != nil {
		return nil, err
	}
	c.logger.Debug("listed networks",
		zap.String("server", c.baseURL),
		zap.Int("count", len(resp.Agents)))
	return resp.Agents, nil
}

// Health is the outcome of a health check.
type Health struct {
	Healthy bool
	Status  string
	Version string
}

type healthResponse struct {
	Status   string            `json:"status"`
	Versions map[string]string `json:"versions"`
}

// Health checks whether the server is up. Any failure to reach the server or
// to read its answer is reported as unhealthy together with the cause.
func (c *Client) Health(ctx context.Context) (Health, error) {
	var resp healthResponse
	if err := c.get(ctx, "health check", healthPath, &resp); err != nil {
		return Health{}, err
	}
	return Health{
		Healthy: resp.Status == statusHealthy,
		Status:  resp.Status,
		Version: resp.Versions[versionKey],
	}, nil
}

// ErrNoNetwork is returned by the per-network calls when the name is empty.
var ErrNoNetwork = errors.New("empty network name")

// agentPath returns the path of a per-network endpoint. Each namespace
// segment is escaped on its own so the separators stay path separators.
func agentPath(name, endpoint string) (string, error) {
	if name == "" {
		return "", ErrNoNetwork
	}
	segs := strings.Split(name, network.Separator)
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}
	return agentPrefix + strings.Join(segs, "/") + endpoint, nil
}

type connectivityResponse struct {
	ConnectivityInfo []network.Agent `json:"connectivity_info"`
}

// Connectivity fetches the agent graph of the named network, sorted by
// origin.
func (c *Client) Connectivity(ctx context.Context, name string) ([]network.Agent, error) {
	p, err := agentPath(name, connectivityPath)
	if err != nil {
		return nil, fmt.Errorf("connectivity: %w", err)
	}
	var resp connectivityResponse
	if err := c.get(ctx, "connectivity", p, &resp); err != nil {
		return nil, err
	}
	agents := resp.ConnectivityInfo
	slices.SortStableFunc(agents, func(a, b network.Agent) int {
		return strings.Compare(a.Origin, b.Origin)
	})
	return agents, nil
}

type functionResponse struct {
	Function struct {
		Description string `json:"description"`
	} `json:"function"`
}

// Function fetches the description of what the named network's front agent
// does.
func (c *Client) Function(ctx context.Context, name string) (string, error) {
	p, err := agentPath(name, functionPath)
	if err != nil {
		return "", fmt.Errorf("function: %w", err)
	}
	var resp functionResponse
	if err := c.get(ctx, "function", p, &resp); err != nil {
		return "", err
	}
	return resp.Function.Description, nil
}

// Inspect fetches the function and the agent graph of a network at once.
func (c *Client) Inspect(ctx context.Context, name string) (network.Inspection, error) {
	var in network.Inspection
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		fn, err := c.Function(gctx, name)
		in.Function = fn
		return err
	})
	g.Go(func() error {
		agents, err := c.Connectivity(gctx, name)
		in.Agents = agents
		return err
	})
	if err := g.Wait(); err != nil {
		return network.Inspection{}, fmt.Errorf("inspect %q: %w", name, err)
	}
	return in, nil
}

func (c *Client) get(ctx context.Context, op, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if c.userID != "" {
		req.Header.Set(userHeader, c.userID)
	}

	c.logger.Debug("request", zap.String("op", op), zap.String("url", req.URL.String()))
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Op: op, Code: resp.StatusCode, Status: resp.Status}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return fmt.Errorf("%s: read body: %w", op, err)
	}
	if err := sonic.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}
