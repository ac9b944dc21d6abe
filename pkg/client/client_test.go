package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rmax-ai/meshgraph/pkg/api"
	"github.com/rmax-ai/meshgraph/pkg/graph"
	"github.com/rmax-ai/meshgraph/pkg/ingest"
	"github.com/rmax-ai/meshgraph/pkg/query"
)

func newDaemon(t *testing.T) (*httptest.Server, *graph.Store, *ingest.Ingestor) {
	t.Helper()
	g := graph.New()
	ing := ingest.NewIngestor(g, 1, 8)
	ing.Start()
	t.Cleanup(func() { ing.Close() })

	srv := api.NewServer(query.NewService(g, nil), ing, "")
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, g, ing
}

func TestClient_AgainstServer(t *testing.T) {
	ts, g, ing := newDaemon(t)
	c := NewClient(ts.URL)
	ctx := context.Background()

	status, err := c.Ping(ctx)
	if err != nil {
		t.Fatalf("Ping failed: %v", err)
	}
	if status.Status != "ok" {
		t.Errorf("expected status ok, got %q", status.Status)
	}

	res, err := c.PostObservations(ctx, []Observation{
		{SourceNode: "web-1", SourceService: "frontend", TargetNode: "app-1", TargetService: "orders"},
		{SourceNode: "app-1", SourceService: "orders", TargetNode: "db-1", TargetService: "postgres"},
		{SourceNode: "app-1", SourceService: "", TargetNode: "db-1", TargetService: "postgres"},
	})
	if err != nil {
		t.Fatalf("PostObservations failed: %v", err)
	}
	if res.Accepted != 2 || len(res.Rejected) != 1 {
		t.Errorf("unexpected result %+v", res)
	}

	if err := ing.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if g.EdgeCount() != 2 {
		t.Fatalf("expected 2 edges, got %d", g.EdgeCount())
	}

	m, err := c.GetGraph(ctx, Window{})
	if err != nil {
		t.Fatalf("GetGraph failed: %v", err)
	}
	if m.NodeCount() != 3 || m.EdgeCount() != 2 {
		t.Errorf("expected 3 nodes and 2 edges, got %d and %d", m.NodeCount(), m.EdgeCount())
	}

	deps, err := c.GetDependencies(ctx, "WEB-1", Window{})
	if err != nil {
		t.Fatalf("GetDependencies failed: %v", err)
	}
	if deps.EdgeCount() != 2 {
		t.Errorf("expected transitive closure with 2 edges, got %d", deps.EdgeCount())
	}

	svc, err := c.GetServiceDependencies(ctx, "web-1", "frontend", Window{})
	if err != nil {
		t.Fatalf("GetServiceDependencies failed: %v", err)
	}
	if _, ok := svc.Node("db-1.postgres"); !ok {
		t.Errorf("expected db-1.postgres in service closure, got %v", svc.SortedNodes())
	}

	report, err := c.GetReport(ctx, "edges", "csv", Window{})
	if err != nil {
		t.Fatalf("GetReport failed: %v", err)
	}
	if !strings.Contains(string(report), "web-1,app-1,frontend,orders") {
		t.Errorf("unexpected edge report:\n%s", report)
	}
	if _, err := c.GetReport(ctx, "usage", "", Window{}); err == nil {
		t.Error("expected error for unknown report")
	}

	_, err = c.Reconcile(ctx)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("expected 503 APIError without reconciler, got %v", err)
	}
}

func TestClient_GetGraphSendsWindow(t *testing.T) {
	var gotFrom, gotTo string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotFrom = r.URL.Query().Get("from")
		gotTo = r.URL.Query().Get("to")
		w.Write([]byte(`{"nodes":[],"edges":[]}`))
	}))
	defer ts.Close()

	c := NewClient(ts.URL)
	from := time.UnixMilli(1_700_000_000_000)
	to := time.UnixMilli(1_700_000_060_000)
	m, err := c.GetGraph(context.Background(), Window{From: from, To: to})
	if err != nil {
		t.Fatalf("GetGraph failed: %v", err)
	}
	if !m.IsEmpty() {
		t.Errorf("expected empty model")
	}
	if gotFrom != "1700000000000" || gotTo != "1700000060000" {
		t.Errorf("unexpected window from=%q to=%q", gotFrom, gotTo)
	}
}

func TestClient_PostObservationsRetries(t *testing.T) {
	tests := []struct {
		name      string
		failFirst int
		failCode  int
		wantCalls int32
		wantErr   bool
	}{
		{"succeeds after 5xx", 2, http.StatusServiceUnavailable, 3, false},
		{"4xx not retried", 1, http.StatusBadRequest, 1, true},
		{"gives up", 10, http.StatusInternalServerError, 3, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int32
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				n := atomic.AddInt32(&calls, 1)
				if int(n) <= tt.failFirst {
					http.Error(w, `{"error":"ingest_unavailable"}`, tt.failCode)
					return
				}
				w.WriteHeader(http.StatusAccepted)
				json.NewEncoder(w).Encode(map[string]int{"accepted": 1})
			}))
			defer ts.Close()

			c := NewClient(ts.URL)
			c.SetRetry(&ExponentialBackoff{Base: time.Millisecond, Max: 5 * time.Millisecond, Factor: 2}, 3)

			res, err := c.PostObservations(context.Background(), []Observation{
				{SourceNode: "a", SourceService: "x", TargetNode: "b", TargetService: "y"},
			})
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got := atomic.LoadInt32(&calls); got != tt.wantCalls {
				t.Errorf("calls = %d, want %d", got, tt.wantCalls)
			}
			if err == nil && res.Accepted != 1 {
				t.Errorf("expected 1 accepted, got %d", res.Accepted)
			}
			var apiErr *APIError
			if err != nil && (!errors.As(err, &apiErr) || apiErr.StatusCode != tt.failCode || apiErr.Code != "ingest_unavailable") {
				t.Errorf("expected APIError %d, got %v", tt.failCode, err)
			}
		})
	}
}

func TestClient_EmptyBatch(t *testing.T) {
	c := NewClient("http://127.0.0.1:1")
	if _, err := c.PostObservations(context.Background(), nil); err == nil {
		t.Error("expected error for empty batch")
	}
}

func TestClient_Unreachable(t *testing.T) {
	c := NewClient("http://127.0.0.1:1")
	c.SetRetry(&ExponentialBackoff{Base: time.Millisecond, Max: time.Millisecond, Factor: 1}, 2)

	_, err := c.Ping(context.Background())
	var te *transportError
	if !errors.As(err, &te) {
		t.Errorf("expected transport error, got %v", err)
	}
}
