package query

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rmax-ai/meshgraph/pkg/graph"
	"github.com/rmax-ai/meshgraph/pkg/model"
	"github.com/rmax-ai/meshgraph/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	models []*model.Model
	err    error
	calls  atomic.Int32
	delay  time.Duration

	// started is closed on the first load; loads then block until release.
	started   chan struct{}
	release   chan struct{}
	startOnce sync.Once

	mu       sync.Mutex
	lastFrom time.Time
	lastTo   time.Time
}

func (f *fakeStore) LoadLastModel(ctx context.Context) (*model.Model, error) { return nil, nil }

func (f *fakeStore) PersistModel(ctx context.Context, m *model.Model) (*model.Model, error) {
	return m, nil
}

func (f *fakeStore) LoadModels(ctx context.Context, from, to time.Time) ([]*model.Model, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.lastFrom, f.lastTo = from, to
	f.mu.Unlock()
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.started != nil {
		f.startOnce.Do(func() { close(f.started) })
	}
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	out := make([]*model.Model, len(f.models))
	for i, m := range f.models {
		out[i] = m.Clone()
	}
	return out, nil
}

func chain(ids ...string) *model.Model {
	m := model.NewModel()
	for i, id := range ids {
		m.AddNode(model.NewNode(id))
		if i > 0 {
			m.AddEdge(model.Edge{Source: ids[i-1], Target: id, Service: "a->b"})
		}
	}
	return m
}

func liveGraph(t *testing.T) *graph.Store {
	t.Helper()
	g := graph.New()
	g.AddNode(model.NewNode("X"))
	g.AddNode(model.NewNode("Z"))
	require.NoError(t, g.AddLink("X", "X", "fe->be"))
	require.NoError(t, g.AddLink("X", "Y", "be->api"))
	require.NoError(t, g.AddLink("Y", "X", "api->fe"))
	return g
}

func TestGetGraph_Live(t *testing.T) {
	st := &fakeStore{}
	svc := NewService(liveGraph(t), st)

	m, err := svc.GetGraph(context.Background(), time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 3, m.NodeCount())
	assert.Equal(t, 2, m.EdgeCount())
	assert.Zero(t, st.calls.Load(), "live queries must not hit storage")
}

func TestGetGraph_RangeMergesSnapshots(t *testing.T) {
	st := &fakeStore{models: []*model.Model{chain("a", "b"), chain("b", "c")}}
	svc := NewService(graph.New(), st)

	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	from := fixed.Add(-time.Hour)
	m, err := svc.GetGraph(context.Background(), from, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 3, m.NodeCount())
	assert.Equal(t, 2, m.EdgeCount())

	st.mu.Lock()
	defer st.mu.Unlock()
	assert.True(t, st.lastFrom.Equal(from))
	assert.True(t, st.lastTo.Equal(fixed), "zero to should mean now")
}

func TestGetGraph_ExcludesInconsistentSnapshot(t *testing.T) {
	broken := model.NewModel()
	broken.AddNode(model.NewNode("a"))
	broken.AddEdge(model.Edge{Source: "a", Target: "ghost", Service: "x->y"})

	st := &fakeStore{models: []*model.Model{chain("a", "b"), broken}}
	svc := NewService(graph.New(), st)

	m, err := svc.GetGraph(context.Background(), time.Unix(0, 1), time.Unix(100, 0))
	require.NoError(t, err)
	assert.Equal(t, 2, m.NodeCount())
	assert.NotContains(t, m.Nodes, "ghost")
	assert.NoError(t, m.Validate())
}

func TestGetGraph_StorageErrorPropagates(t *testing.T) {
	st := &fakeStore{err: &store.StorageError{Op: "load_range", Err: errors.New("down")}}
	svc := NewService(graph.New(), st)

	_, err := svc.GetGraph(context.Background(), time.Unix(1, 0), time.Unix(2, 0))
	require.Error(t, err)
	assert.True(t, store.IsStorageError(err))

	_, err = svc.GetDependencyModel(context.Background(), time.Unix(1, 0), time.Unix(2, 0), "a")
	assert.True(t, store.IsStorageError(err))
}

func TestGetGraph_InvalidRange(t *testing.T) {
	svc := NewService(graph.New(), &fakeStore{})
	_, err := svc.GetGraph(context.Background(), time.Unix(10, 0), time.Unix(5, 0))
	assert.ErrorIs(t, err, ErrInvalidRange)
}

func TestGetGraph_CollapsesConcurrentRangeLoads(t *testing.T) {
	st := &fakeStore{models: []*model.Model{chain("a", "b")}, delay: 50 * time.Millisecond}
	svc := NewService(graph.New(), st)

	from, to := time.Unix(1, 0), time.Unix(2, 0)
	results := make([]*model.Model, 8)
	var wg sync.WaitGroup
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m, err := svc.GetGraph(context.Background(), from, to)
			assert.NoError(t, err)
			results[i] = m
		}(i)
	}
	wg.Wait()

	assert.Less(t, st.calls.Load(), int32(len(results)))
	for i := 1; i < len(results); i++ {
		assert.NotSame(t, results[0], results[i], "callers must receive separate models")
	}
}

func TestGetGraph_CancelledCallerDoesNotFailSharedLoad(t *testing.T) {
	st := &fakeStore{
		models:  []*model.Model{chain("a", "b")},
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	svc := NewService(graph.New(), st)
	from, to := time.Unix(1, 0), time.Unix(2, 0)

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := svc.GetGraph(firstCtx, from, to)
		firstErr <- err
	}()
	<-st.started

	type result struct {
		m   *model.Model
		err error
	}
	second := make(chan result, 1)
	go func() {
		m, err := svc.GetGraph(context.Background(), from, to)
		second <- result{m, err}
	}()
	// Let the second caller join the running load.
	time.Sleep(20 * time.Millisecond)

	cancelFirst()
	assert.ErrorIs(t, <-firstErr, context.Canceled)

	close(st.release)
	res := <-second
	require.NoError(t, res.err)
	assert.Equal(t, 2, res.m.NodeCount())
	assert.Equal(t, int32(1), st.calls.Load(), "the second caller should share the first load")
}

func TestGetDependencyModel(t *testing.T) {
	svc := NewService(liveGraph(t), &fakeStore{})
	ctx := context.Background()

	isolated, err := svc.GetDependencyModel(ctx, time.Time{}, time.Time{}, "Z")
	require.NoError(t, err)
	assert.Equal(t, 1, isolated.NodeCount())
	assert.Equal(t, 0, isolated.EdgeCount())
	assert.Contains(t, isolated.Nodes, "Z")

	unknown, err := svc.GetDependencyModel(ctx, time.Time{}, time.Time{}, "nope")
	require.NoError(t, err)
	assert.True(t, unknown.IsEmpty())

	cycle, err := svc.GetDependencyModel(ctx, time.Time{}, time.Time{}, "X")
	require.NoError(t, err)
	assert.Equal(t, 2, cycle.NodeCount())
	assert.Equal(t, 2, cycle.EdgeCount())
}

func TestGetServiceDependencyModel(t *testing.T) {
	svc := NewService(liveGraph(t), &fakeStore{})

	m, err := svc.GetServiceDependencyModel(context.Background(), time.Time{}, time.Time{}, "X", "fe")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"X.fe", "X.be", "Y.api"}, ids(m))
	assert.Equal(t, 2, m.EdgeCount())
}

func ids(m *model.Model) []string {
	var out []string
	for id := range m.Nodes {
		out = append(out, id)
	}
	return out
}
