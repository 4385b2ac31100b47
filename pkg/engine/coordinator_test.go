package engine_test

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
	"go.uber.org/mock/gomock"

	"github.com/pg-sharding/xorder/pkg/engine"
	"github.com/pg-sharding/xorder/pkg/memstore"
	mock "github.com/pg-sharding/xorder/pkg/mock/transport"
	"github.com/pg-sharding/xorder/pkg/models/ordering"
	"github.com/pg-sharding/xorder/pkg/models/prange"
	"github.com/pg-sharding/xorder/pkg/models/xerror"
	"github.com/pg-sharding/xorder/pkg/transport"
	"github.com/pg-sharding/xorder/pkg/xlog"
)

var byN = memstore.Query{OrderBy: []memstore.OrderKey{{Path: "n"}}}

func exampleStore(t *testing.T) *memstore.MemStore {
	return newStore(t, twoRanges,
		&memstore.Document{ID: "a0", PK: "10", Body: map[string]any{"n": 0.0}},
		&memstore.Document{ID: "a1", PK: "20", Body: map[string]any{"n": 1.0}},
		&memstore.Document{ID: "a2", PK: "30", Body: map[string]any{"n": 2.0}},
		&memstore.Document{ID: "b0", PK: "90", Body: map[string]any{"n": 0.0}},
		&memstore.Document{ID: "b1", PK: "a0", Body: map[string]any{"n": 1.0}},
		&memstore.Document{ID: "b3", PK: "b0", Body: map[string]any{"n": 3.0}},
	)
}

func TestMergeTwoPartitions(t *testing.T) {
	assertions := assert.New(t)

	for _, pageSize := range []int{1, 2, 100} {
		q := byN
		q.PageSize = pageSize
		co := newCoordinator(t, exampleStore(t).Fetcher(q), twoRanges, q)

		assertions.Equal([]string{"a0", "b0", "a1", "b1", "a2", "b3"}, take(t, co, -1))
		assertions.Equal(engine.StateCompleted, co.State())
		assertions.Equal(int64(6), co.Stats().Emitted)

		_, err := co.Next(context.Background())
		assertions.ErrorIs(err, engine.ErrIteratorDone)
	}
}

func TestMergeEmptyPartitions(t *testing.T) {
	co := newCoordinator(t, newStore(t, threeRanges).Fetcher(byN), threeRanges, byN)

	assert.Empty(t, take(t, co, -1))
	assert.Equal(t, engine.StateCompleted, co.State())
}

func TestNewCoordinatorValidation(t *testing.T) {
	assertions := assert.New(t)
	f := exampleStore(t).Fetcher(byN)
	spec := engine.QuerySpec{Orders: byN.Orders()}

	_, err := engine.NewCoordinator(nil, twoRanges, spec)
	assertions.True(xerror.HasCode(err, xerror.XORD_CONFIG_ERROR))

	_, err = engine.NewCoordinator(f, twoRanges, engine.QuerySpec{})
	assertions.True(xerror.HasCode(err, xerror.XORD_CONFIG_ERROR))

	_, err = engine.NewCoordinator(f, []prange.Range{{Min: "", Max: "5"}, {Min: "4", Max: ""}}, spec)
	assertions.True(xerror.HasCode(err, xerror.XORD_CONFIG_ERROR))

	_, err = engine.NewCoordinator(f, nil, spec)
	assertions.True(xerror.HasCode(err, xerror.XORD_CONFIG_ERROR))
}

func TestShuffledCompletionOrderDoesNotChangeOutput(t *testing.T) {
	assertions := assert.New(t)
	store := newStore(t, threeRanges, mixedDocs(30)...)

	q := byN
	q.PageSize = 2
	want := take(t, newCoordinator(t, store.Fetcher(q), threeRanges, q), -1)

	delays := []func(prange.Range) time.Duration{
		func(r prange.Range) time.Duration {
			if r.Min == "" {
				return 3 * time.Millisecond
			}
			return 0
		},
		func(r prange.Range) time.Duration {
			if r.Min == "6" {
				return 3 * time.Millisecond
			}
			return time.Millisecond
		},
	}
	for _, delay := range delays {
		for _, dop := range []int{1, 2, 8} {
			q.Delay = delay
			co := newCoordinator(t, store.Fetcher(q), threeRanges, q, engine.WithMaxDegreeOfParallelism(dop))
			assertions.Equal(want, take(t, co, -1))
		}
	}
}

func TestMaxDegreeOfParallelismBoundsFetches(t *testing.T) {
	ranges := make([]prange.Range, 0, 8)
	for i := 0; i < 8; i++ {
		r := prange.Range{Min: string(rune('a' + i)), Max: string(rune('a' + i + 1))}
		if i == 7 {
			r.Max = ""
		}
		ranges = append(ranges, r)
	}
	backing := newStore(t, ranges).Fetcher(byN)

	var inflight, peak atomic.Int64
	f := transport.PageFetcherFunc(func(ctx context.Context, rng prange.Range, token string, adm *transport.Admission) (*transport.Page, error) {
		n := inflight.Inc()
		defer inflight.Dec()
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		return backing.FetchPage(ctx, rng, token, adm)
	})

	co := newCoordinator(t, f, ranges, byN, engine.WithMaxDegreeOfParallelism(3))
	assert.Empty(t, take(t, co, -1))
	assert.LessOrEqual(t, peak.Load(), int64(3))
	assert.Equal(t, int64(8), co.Stats().PagesFetched)
}

func TestCancellationFailsQuery(t *testing.T) {
	assertions := assert.New(t)
	co := newCoordinator(t, exampleStore(t).Fetcher(byN), twoRanges, byN)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := co.Next(ctx)
	assertions.True(xerror.HasCode(err, xerror.XORD_CANCELLED))
	assertions.ErrorIs(err, context.Canceled)
	assertions.Equal(engine.StateFailed, co.State())

	_, err = co.Next(context.Background())
	assertions.True(xerror.HasCode(err, xerror.XORD_INVALID_STATE))

	_, err = co.Suspend()
	assertions.True(xerror.HasCode(err, xerror.XORD_INVALID_STATE))
}

func TestCancellationDuringFetch(t *testing.T) {
	assertions := assert.New(t)
	q := byN
	q.PageSize = 1
	q.Delay = func(r prange.Range) time.Duration {
		if r.Min == "80" {
			return time.Hour
		}
		return 0
	}
	co := newCoordinator(t, exampleStore(t).Fetcher(q), twoRanges, q)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	out, err := co.Drain(ctx, 10)
	assertions.Nil(out)
	assertions.True(xerror.HasCode(err, xerror.XORD_CANCELLED))
	assertions.Equal(engine.StateFailed, co.State())
}

func TestFetchFailureKeepsQueryActive(t *testing.T) {
	assertions := assert.New(t)
	ctrl := gomock.NewController(t)

	q := byN
	q.PageSize = 1
	backing := exampleStore(t).Fetcher(q)

	var failed atomic.Bool
	f := mock.NewMockPageFetcher(ctrl)
	f.EXPECT().FetchPage(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, rng prange.Range, token string, adm *transport.Admission) (*transport.Page, error) {
			if rng.Min == "80" && token != "" && !failed.Swap(true) {
				return nil, errors.New("backend unavailable")
			}
			return backing.FetchPage(ctx, rng, token, adm)
		}).AnyTimes()

	co := newCoordinator(t, f, twoRanges, q)

	assertions.Equal([]string{"a0"}, take(t, co, 1))
	_, err := co.Next(context.Background())
	require.NoError(t, err)

	/* b0 was the only buffered row of its page */
	_, err = co.Next(context.Background())
	assertions.True(xerror.HasCode(err, xerror.XORD_FETCH_FAILED))
	assertions.ErrorContains(err, "backend unavailable")
	assertions.Equal(engine.StateActive, co.State())

	assertions.Equal([]string{"a1", "b1", "a2", "b3"}, take(t, co, -1))
}

func TestFetchFailureIsLoggedAtWarn(t *testing.T) {
	assertions := assert.New(t)

	var buf bytes.Buffer
	prev := xlog.Zero
	xlog.Zero = xlog.NewZeroLogger(&buf, "warn", false)
	t.Cleanup(func() { xlog.Zero = prev })

	f := transport.PageFetcherFunc(func(ctx context.Context, rng prange.Range, token string, adm *transport.Admission) (*transport.Page, error) {
		return nil, errors.New("backend unavailable")
	})
	co := newCoordinator(t, f, twoRanges[:1], byN, engine.WithQueryID("q-warn"))

	_, err := co.Next(context.Background())
	require.Error(t, err)

	out := buf.String()
	assertions.Contains(out, `"level":"warn"`)
	assertions.Contains(out, `"query":"q-warn"`)
	assertions.Contains(out, `"coordinator":`)
	assertions.Contains(out, `"partition":`)
	assertions.Contains(out, "backend unavailable")
	assertions.Contains(out, xerror.XORD_FETCH_FAILED)
}

func TestDrainReturnsEmittedRowsWithFetchError(t *testing.T) {
	assertions := assert.New(t)

	q := byN
	q.PageSize = 1
	backing := exampleStore(t).Fetcher(q)
	calls := 0
	f := transport.PageFetcherFunc(func(ctx context.Context, rng prange.Range, token string, adm *transport.Admission) (*transport.Page, error) {
		calls++
		if calls > 2 {
			return nil, errors.New("throttled")
		}
		return backing.FetchPage(ctx, rng, token, adm)
	})
	co := newCoordinator(t, f, twoRanges, q, engine.WithMaxDegreeOfParallelism(1))

	out, err := co.Drain(context.Background(), 10)
	assertions.Len(out, 1)
	assertions.True(xerror.HasCode(err, xerror.XORD_FETCH_FAILED))
	assertions.Equal(engine.StateActive, co.State())
}

func TestDrainPages(t *testing.T) {
	assertions := assert.New(t)
	co := newCoordinator(t, exampleStore(t).Fetcher(byN), twoRanges, byN)

	out, err := co.Drain(context.Background(), 4)
	require.NoError(t, err)
	assertions.Len(out, 4)

	out, err = co.Drain(context.Background(), 4)
	require.NoError(t, err)
	assertions.Len(out, 2)

	out, err = co.Drain(context.Background(), 4)
	require.NoError(t, err)
	assertions.Empty(out)
}

func TestSuspendLifecycle(t *testing.T) {
	assertions := assert.New(t)
	store := exampleStore(t)
	co := newCoordinator(t, store.Fetcher(byN), twoRanges, byN)

	_, err := co.Suspend()
	assertions.True(xerror.HasCode(err, xerror.XORD_NOTHING_TO_SUSPEND))
	assertions.Equal(engine.StateActive, co.State())

	take(t, co, 2)
	doc, err := co.Suspend()
	require.NoError(t, err)
	assertions.NotNil(doc)
	assertions.Equal(engine.StateSuspended, co.State())

	_, err = co.Next(context.Background())
	assertions.True(xerror.HasCode(err, xerror.XORD_INVALID_STATE))
	_, err = co.Suspend()
	assertions.True(xerror.HasCode(err, xerror.XORD_INVALID_STATE))

	require.NoError(t, co.Resume(doc))
	assertions.Equal(engine.StateActive, co.State())
	assertions.Equal([]string{"a1", "b1", "a2", "b3"}, take(t, co, -1))

	doc, err = co.Suspend()
	assertions.NoError(err)
	assertions.Nil(doc)
}

func TestSuspendAfterLastRowBeforeDone(t *testing.T) {
	co := newCoordinator(t, exampleStore(t).Fetcher(byN), twoRanges, byN)
	take(t, co, 6)

	b, err := co.SuspendBytes()
	assert.NoError(t, err)
	assert.Nil(t, b)
	assert.Equal(t, engine.StateCompleted, co.State())
}

func TestSuspendRightAfterResumeReturnsSameToken(t *testing.T) {
	assertions := assert.New(t)
	store := exampleStore(t)

	co := newCoordinator(t, store.Fetcher(byN), twoRanges, byN)
	take(t, co, 3)
	first, err := co.SuspendBytes()
	require.NoError(t, err)

	co = newCoordinator(t, store.Fetcher(byN), twoRanges, byN)
	require.NoError(t, co.ResumeBytes(first))
	second, err := co.SuspendBytes()
	require.NoError(t, err)
	assertions.JSONEq(string(first), string(second))
}

func TestResumeRejectsMalformedToken(t *testing.T) {
	assertions := assert.New(t)
	store := exampleStore(t)
	co := newCoordinator(t, store.Fetcher(byN), twoRanges, byN)

	for _, bad := range []string{
		`{}`,
		`not json`,
		`{"compositeToken":{"token":null,"range":{"min":"00","max":"80"}},"resumeValues":[{"type":"binary"}],"rid":"a1","skipCount":1}`,
		`{"compositeToken":{"token":null,"range":{"min":"00","max":"80"}},"resumeValues":[1, 2],"rid":"a1","skipCount":1}`,
	} {
		err := co.ResumeBytes([]byte(bad))
		assertions.True(xerror.IsMalformedToken(err), bad)
		assertions.Equal(engine.StateActive, co.State())
	}

	assertions.Equal([]string{"a0", "b0", "a1", "b1", "a2", "b3"}, take(t, co, -1))
}

func TestResumeRequiresFreshOrSuspendedQuery(t *testing.T) {
	store := exampleStore(t)
	co := newCoordinator(t, store.Fetcher(byN), twoRanges, byN)
	take(t, co, 1)
	doc, err := co.Suspend()
	require.NoError(t, err)

	other := newCoordinator(t, store.Fetcher(byN), twoRanges, byN)
	take(t, other, 1)
	err = other.Resume(doc)
	assert.True(t, xerror.HasCode(err, xerror.XORD_INVALID_STATE))
}

func TestResumeOrdersMismatch(t *testing.T) {
	store := exampleStore(t)
	co := newCoordinator(t, store.Fetcher(byN), twoRanges, byN)
	take(t, co, 1)
	doc, err := co.Suspend()
	require.NoError(t, err)

	twoKeys, err := engine.NewCoordinator(store.Fetcher(byN), twoRanges, engine.QuerySpec{
		Orders: []ordering.Direction{ordering.ASC, ordering.ASC},
	})
	require.NoError(t, err)

	mte, ok := xerror.AsMalformedToken(twoKeys.Resume(doc))
	require.True(t, ok)
	assert.Equal(t, "resumeValues", mte.Field)
}
