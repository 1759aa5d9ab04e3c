package prober

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/mfreeman451/statustracker/pkg/config"
	"github.com/mfreeman451/statustracker/pkg/db"
	"github.com/mfreeman451/statustracker/pkg/models"
	"github.com/mfreeman451/statustracker/pkg/scan"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap/zaptest"
)

const probeTimeout = 5 * time.Second

var errStoreDown = errors.New("store down")

type proberFixture struct {
	store    *db.MockService
	pinger   *scan.MockPinger
	timeouts *config.MockTimeoutProvider
	clock    *clock.Mock
}

func newFixture(t *testing.T) *proberFixture {
	t.Helper()

	ctrl := gomock.NewController(t)

	f := &proberFixture{
		store:    db.NewMockService(ctrl),
		pinger:   scan.NewMockPinger(ctrl),
		timeouts: config.NewMockTimeoutProvider(ctrl),
		clock:    clock.NewMock(),
	}

	f.clock.Set(time.Date(2025, 2, 1, 10, 0, 0, 0, time.UTC))

	return f
}

func (f *proberFixture) prober(t *testing.T, cfg Config) *Prober {
	t.Helper()

	return New(cfg, f.store, f.pinger, f.timeouts, zaptest.NewLogger(t), WithClock(f.clock))
}

func endpointDoc(id, address string, reachable bool) db.Document {
	return db.Document{"id": id, "address": address, "reachable": reachable}
}

func TestProber_Transitions(t *testing.T) {
	tests := []struct {
		name      string
		persisted bool
		probed    bool
		always    bool
		wantWrite bool
		wantStamp bool
		changed   int
	}{
		{name: "comes up keeps old timestamp", persisted: false, probed: true, wantWrite: true, changed: 1},
		{name: "comes up always write", persisted: false, probed: true, always: true, wantWrite: true, wantStamp: true, changed: 1},
		{name: "goes down", persisted: true, probed: false, wantWrite: true, wantStamp: true, changed: 1},
		{name: "stays down", persisted: false, probed: false, wantWrite: true, wantStamp: true},
		{name: "stays up", persisted: true, probed: true, wantWrite: false},
		{name: "stays up always write", persisted: true, probed: true, always: true, wantWrite: true, wantStamp: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			now := f.clock.Now().UTC()

			f.store.EXPECT().Find(gomock.Any(), "endpoints").
				Return([]db.Document{endpointDoc("e1", "10.0.0.1", tt.persisted)}, nil)
			f.timeouts.EXPECT().ProbeTimeout().Return(probeTimeout)
			f.pinger.EXPECT().Ping(gomock.Any(), "10.0.0.1", probeTimeout).Return(tt.probed)

			if tt.wantWrite {
				update := map[string]interface{}{models.FieldReachable: tt.probed}
				if tt.wantStamp {
					update[models.FieldLastChange] = now
				}

				f.store.EXPECT().UpdateFields(gomock.Any(), "endpoints", "e1", update).Return(nil)
			}

			summary, err := f.prober(t, Config{AlwaysWrite: tt.always}).RunOnce(context.Background())
			require.NoError(t, err)

			assert.Equal(t, 1, summary.Scanned)
			assert.Equal(t, tt.changed, summary.Changed)

			if tt.wantWrite {
				assert.Equal(t, 1, summary.Writes)
			} else {
				assert.Zero(t, summary.Writes)
			}
		})
	}
}

func TestProber_EmptyAddress(t *testing.T) {
	f := newFixture(t)
	now := f.clock.Now().UTC()

	f.store.EXPECT().Find(gomock.Any(), "endpoints").
		Return([]db.Document{{"id": "e1", "reachable": true}}, nil)
	f.timeouts.EXPECT().ProbeTimeout().Return(probeTimeout)
	f.store.EXPECT().UpdateFields(gomock.Any(), "endpoints", "e1", map[string]interface{}{
		models.FieldReachable:  false,
		models.FieldLastChange: now,
	}).Return(nil)

	summary, err := f.prober(t, Config{}).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Changed)
}

func TestProber_FindFailureAbortsPass(t *testing.T) {
	f := newFixture(t)

	f.store.EXPECT().Find(gomock.Any(), "endpoints").Return(nil, errStoreDown)

	summary, err := f.prober(t, Config{}).RunOnce(context.Background())
	require.ErrorIs(t, err, errStoreDown)
	require.ErrorIs(t, err, errListEndpoints)
	assert.Zero(t, summary.Scanned)
	assert.NotEmpty(t, summary.Error)
}

func TestProber_PartialFailureIsolation(t *testing.T) {
	f := newFixture(t)

	f.store.EXPECT().Find(gomock.Any(), "endpoints").Return([]db.Document{
		endpointDoc("e1", "10.0.0.1", true),
		endpointDoc("e2", "10.0.0.2", true),
		endpointDoc("e3", "10.0.0.3", false),
	}, nil)
	f.timeouts.EXPECT().ProbeTimeout().Return(probeTimeout)
	f.pinger.EXPECT().Ping(gomock.Any(), "10.0.0.1", probeTimeout).Return(false)
	f.pinger.EXPECT().Ping(gomock.Any(), "10.0.0.2", probeTimeout).Return(false)
	f.pinger.EXPECT().Ping(gomock.Any(), "10.0.0.3", probeTimeout).Return(true)

	f.store.EXPECT().UpdateFields(gomock.Any(), "endpoints", "e1", gomock.Any()).Return(errStoreDown)
	f.store.EXPECT().UpdateFields(gomock.Any(), "endpoints", "e2", gomock.Any()).Return(nil)
	f.store.EXPECT().UpdateFields(gomock.Any(), "endpoints", "e3", gomock.Any()).Return(nil)

	summary, err := f.prober(t, Config{Concurrency: 2}).RunOnce(context.Background())
	require.ErrorIs(t, err, errStoreDown)
	require.ErrorIs(t, err, errUpdateEndpoint)

	assert.Equal(t, 3, summary.Scanned)
	assert.Equal(t, 3, summary.Changed)
	assert.Equal(t, 2, summary.Writes)
	assert.Equal(t, 1, summary.Failures)
}

func TestProber_CancelledPassWritesNothing(t *testing.T) {
	f := newFixture(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f.store.EXPECT().Find(gomock.Any(), "endpoints").
		Return([]db.Document{endpointDoc("e1", "10.0.0.1", true)}, nil)
	f.timeouts.EXPECT().ProbeTimeout().Return(probeTimeout)

	summary, err := f.prober(t, Config{}).RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Skipped)
	assert.Zero(t, summary.Writes)
}

// fakePinger answers from a fixed table and counts calls.
type fakePinger struct {
	up    map[string]bool
	calls atomic.Int32
}

func (p *fakePinger) Ping(_ context.Context, address string, _ time.Duration) bool {
	p.calls.Add(1)

	return p.up[address]
}

func TestProber_IdempotentAgainstStore(t *testing.T) {
	ctx := context.Background()
	store := db.NewMemoryStore()

	lastDown := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

	recovering := endpointDoc("up", "10.0.0.1", false)
	recovering[models.FieldLastChange] = lastDown

	for _, doc := range []db.Document{
		recovering,
		endpointDoc("down", "10.0.0.2", false),
	} {
		_, err := store.Insert(ctx, "endpoints", doc)
		require.NoError(t, err)
	}

	ctrl := gomock.NewController(t)
	timeouts := config.NewMockTimeoutProvider(ctrl)
	timeouts.EXPECT().ProbeTimeout().Return(probeTimeout).AnyTimes()

	pinger := &fakePinger{up: map[string]bool{"10.0.0.1": true}}
	mockClock := clock.NewMock()
	p := New(Config{}, store, pinger, timeouts, zaptest.NewLogger(t), WithClock(mockClock))

	first, err := p.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Changed)
	assert.Equal(t, 2, first.Writes)

	up, err := store.FindOne(ctx, "endpoints", "id", "up")
	require.NoError(t, err)

	firstChange := models.EndpointFromDocument(up).LastChangeTimestamp
	require.NotNil(t, firstChange)
	assert.True(t, lastDown.Equal(*firstChange), "recovery keeps the last unreachable time")

	mockClock.Add(time.Minute)

	second, err := p.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, second.Changed)
	assert.Equal(t, 1, second.Writes, "only the unreachable endpoint is re-affirmed")

	up, err = store.FindOne(ctx, "endpoints", "id", "up")
	require.NoError(t, err)

	ep := models.EndpointFromDocument(up)
	assert.True(t, ep.Reachable)
	assert.True(t, firstChange.Equal(*ep.LastChangeTimestamp), "steady endpoint keeps its timestamp")

	down, err := store.FindOne(ctx, "endpoints", "id", "down")
	require.NoError(t, err)

	ts := models.EndpointFromDocument(down).LastChangeTimestamp
	require.NotNil(t, ts)
	assert.True(t, mockClock.Now().UTC().Equal(*ts), "unreachable endpoint timestamp is refreshed")
	assert.Equal(t, int32(4), pinger.calls.Load())
}
