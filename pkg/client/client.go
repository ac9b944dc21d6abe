package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rmax-ai/meshgraph/pkg/model"
)

// Client is the meshgraph SDK client.
type Client struct {
	endpoint string
	http     *http.Client
	backoff  BackoffStrategy
	attempts int
}

// NewClient creates a new meshgraph client.
// endpoint defaults to "http://127.0.0.1:8095" if empty.
func NewClient(endpoint string) *Client {
	if endpoint == "" {
		endpoint = "http://127.0.0.1:8095"
	}
	return &Client{
		endpoint: endpoint,
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
		backoff:  DefaultBackoff(),
		attempts: 5,
	}
}

// SetRetry replaces the retry policy used by PostObservations.
func (c *Client) SetRetry(strategy BackoffStrategy, attempts int) {
	c.backoff = strategy
	c.attempts = attempts
}

// Ping checks the health of the daemon.
func (c *Client) Ping(ctx context.Context) (Status, error) {
	var status Status
	if err := c.do(ctx, http.MethodGet, "/v1/health", nil, http.StatusOK, &status); err != nil {
		return Status{}, err
	}
	return status, nil
}

// GetGraph fetches the whole topology for the window.
func (c *Client) GetGraph(ctx context.Context, w Window) (*model.Model, error) {
	return c.getModel(ctx, "/v1/graph", w)
}

// GetDependencies fetches the transitive dependencies of a node.
func (c *Client) GetDependencies(ctx context.Context, nodeID string, w Window) (*model.Model, error) {
	return c.getModel(ctx, "/v1/dependencies/"+url.PathEscape(nodeID), w)
}

// GetServiceDependencies fetches the services reachable from one service of
// a node.
func (c *Client) GetServiceDependencies(ctx context.Context, nodeID, service string, w Window) (*model.Model, error) {
	return c.getModel(ctx, "/v1/dependencies/"+url.PathEscape(nodeID)+"/services/"+url.PathEscape(service), w)
}

// PostObservations submits a batch of observations. Network failures and
// 5xx replies are retried with backoff; 4xx replies are returned at once.
func (c *Client) PostObservations(ctx context.Context, obs []Observation) (ObservationResult, error) {
	if len(obs) == 0 {
		return ObservationResult{}, fmt.Errorf("invalid batch: no observations")
	}
	body, err := json.Marshal(map[string][]Observation{"observations": obs})
	if err != nil {
		return ObservationResult{}, fmt.Errorf("failed to marshal observations: %w", err)
	}

	var result ObservationResult
	err = withRetry(ctx, c.backoff, c.attempts, func() error {
		result = ObservationResult{}
		return c.do(ctx, http.MethodPost, "/v1/observations", body, http.StatusAccepted, &result)
	})
	if err != nil {
		return ObservationResult{}, err
	}
	return result, nil
}

// Reconcile asks the daemon to run one reconciliation tick now.
func (c *Client) Reconcile(ctx context.Context) (ReconcileResult, error) {
	var result ReconcileResult
	if err := c.do(ctx, http.MethodPost, "/v1/admin/reconcile", nil, http.StatusOK, &result); err != nil {
		return ReconcileResult{}, err
	}
	return result, nil
}

// GetReport fetches a rendered report ("edges" or "nodes") in csv or json.
func (c *Client) GetReport(ctx context.Context, reportType, format string, w Window) ([]byte, error) {
	q := w.query()
	if format != "" {
		q.Set("format", format)
	}
	path := "/v1/reports/" + url.PathEscape(reportType)
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var body []byte
	if err := c.do(ctx, http.MethodGet, path, nil, http.StatusOK, &body); err != nil {
		return nil, err
	}
	return body, nil
}

func (w Window) query() url.Values {
	q := url.Values{}
	if !w.From.IsZero() {
		q.Set("from", strconv.FormatInt(w.From.UnixMilli(), 10))
	}
	if !w.To.IsZero() {
		q.Set("to", strconv.FormatInt(w.To.UnixMilli(), 10))
	}
	return q
}

func (c *Client) getModel(ctx context.Context, path string, w Window) (*model.Model, error) {
	if q := w.query(); len(q) > 0 {
		path += "?" + q.Encode()
	}

	m := model.NewModel()
	if err := c.do(ctx, http.MethodGet, path, nil, http.StatusOK, m); err != nil {
		return nil, err
	}
	return m, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, want int, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &transportError{err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var payload struct {
			Error string `json:"error"`
		}
		if json.NewDecoder(resp.Body).Decode(&payload) == nil {
			apiErr.Code = payload.Error
		}
		return apiErr
	}

	switch out := out.(type) {
	case nil:
		return nil
	case *[]byte:
		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return &transportError{err: err}
		}
		*out = raw
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
