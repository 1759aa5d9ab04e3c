package watchdog

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
	"github.com/mfreeman451/statustracker/pkg/status"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap/zaptest"
)

var errStoreDown = errors.New("store down")

// countingStore counts the partial updates and heartbeat reads reaching the
// wrapped store.
type countingStore struct {
	db.Service
	updates atomic.Int32
	reads   atomic.Int32
}

func (s *countingStore) FindOne(ctx context.Context, collection, field string, value interface{}) (db.Document, error) {
	if collection == "heartbeats" {
		s.reads.Add(1)
	}

	return s.Service.FindOne(ctx, collection, field, value)
}

func (s *countingStore) UpdateFields(ctx context.Context, collection, id string, fields map[string]interface{}) error {
	s.updates.Add(1)

	return s.Service.UpdateFields(ctx, collection, id, fields)
}

func newStore() *countingStore {
	return &countingStore{Service: db.NewMemoryStore()}
}

func insertBridge(t *testing.T, store db.Service, id string, terminals ...map[string]interface{}) {
	t.Helper()

	list := make([]interface{}, len(terminals))
	for i := range terminals {
		list[i] = terminals[i]
	}

	_, err := store.Insert(context.Background(), "bridges", db.Document{"id": id, "terminals": list})
	require.NoError(t, err)
}

func insertHeartbeat(t *testing.T, store db.Service, terminalID int, counter int64) string {
	t.Helper()

	id, err := store.Insert(context.Background(), "heartbeats", db.Document{"terminalId": terminalID, "counter": counter})
	require.NoError(t, err)

	return id
}

func terminal(id int, live bool, lastSeen interface{}) map[string]interface{} {
	m := map[string]interface{}{"terminalId": id, "live": live}
	if lastSeen != nil {
		m["lastSeenCounter"] = lastSeen
	}

	return m
}

func loadBridge(t *testing.T, store db.Service, id string) models.Bridge {
	t.Helper()

	doc, err := store.FindOne(context.Background(), "bridges", "id", id)
	require.NoError(t, err)

	b, err := models.BridgeFromDocument(doc)
	require.NoError(t, err)

	return b
}

func timeoutsReturning(t *testing.T, d time.Duration) config.TimeoutProvider {
	t.Helper()

	m := config.NewMockTimeoutProvider(gomock.NewController(t))
	m.EXPECT().TerminalTimeout().Return(d).AnyTimes()

	return m
}

func assertTerminal(t *testing.T, term models.TerminalState, id int, live bool, counter int64) {
	t.Helper()

	require.NotNil(t, term.TerminalID)
	assert.Equal(t, id, *term.TerminalID)
	assert.Equal(t, live, term.Live, "terminal %d live", id)
	require.NotNil(t, term.LastSeenCounter, "terminal %d counter", id)
	assert.Equal(t, counter, *term.LastSeenCounter, "terminal %d counter", id)
}

// Bridge B holds T1 (live, last 5) and T2 (down, last 9). T1's counter is
// still 5, T2's moved to 10. After the pass T1 is down, T2 is live and the
// list was written exactly once.
func TestWatchdog_StaleAndAdvancedTerminals(t *testing.T) {
	store := newStore()
	insertBridge(t, store, "B", terminal(1, true, 5), terminal(2, false, 9))
	insertHeartbeat(t, store, 1, 5)
	insertHeartbeat(t, store, 2, 10)

	mockClock := clock.NewMock()
	w := New(Config{PollInterval: time.Second}, store, timeoutsReturning(t, 30*time.Second),
		zaptest.NewLogger(t), WithClock(mockClock))

	type result struct {
		summary models.TickSummary
		err     error
	}

	done := make(chan result, 1)

	go func() {
		s, err := w.RunOnce(context.Background())
		done <- result{s, err}
	}()

	var r result

	guard := time.After(10 * time.Second)

loop:
	for {
		select {
		case r = <-done:
			break loop
		case <-guard:
			t.Fatal("watchdog pass did not finish")
		default:
			mockClock.Add(time.Second)
		}
	}

	require.NoError(t, r.err)
	assert.Equal(t, 1, r.summary.Writes)
	assert.Equal(t, int32(1), store.updates.Load())

	b := loadBridge(t, store, "B")
	require.Len(t, b.Terminals, 2)
	assertTerminal(t, b.Terminals[0], 1, false, 5)
	assertTerminal(t, b.Terminals[1], 2, true, 10)
}

// A stale terminal stays live until the full timeout has elapsed on the
// watchdog clock and goes down with its counter untouched once it has.
func TestWatchdog_StaleTerminalWaitsFullTimeout(t *testing.T) {
	store := newStore()
	insertBridge(t, store, "B", terminal(1, true, 5))
	insertHeartbeat(t, store, 1, 5)

	mockClock := clock.NewMock()
	w := New(Config{PollInterval: time.Second}, store, timeoutsReturning(t, 10*time.Second),
		zaptest.NewLogger(t), WithClock(mockClock))

	done := make(chan models.TickSummary, 1)

	go func() {
		s, _ := w.RunOnce(context.Background())
		done <- s
	}()

	require.Eventually(t, func() bool { return store.reads.Load() >= 1 },
		5*time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)

	for i := 0; i < 9; i++ {
		mockClock.Add(time.Second)
		time.Sleep(5 * time.Millisecond)
	}

	mockClock.Add(999 * time.Millisecond)
	time.Sleep(20 * time.Millisecond)

	select {
	case <-done:
		t.Fatal("pass returned before the timeout elapsed")
	default:
	}

	assert.Zero(t, store.updates.Load())
	assert.GreaterOrEqual(t, store.reads.Load(), int32(2), "counter is polled while waiting")

	mockClock.Add(time.Millisecond)

	var summary models.TickSummary

	select {
	case summary = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("pass did not return after the timeout")
	}

	assert.Equal(t, 1, summary.Writes)
	assert.Equal(t, int32(1), store.updates.Load())

	b := loadBridge(t, store, "B")
	assertTerminal(t, b.Terminals[0], 1, false, 5)
}

func TestWatchdog_FirstObservation(t *testing.T) {
	store := newStore()
	insertBridge(t, store, "B", terminal(1, true, nil), terminal(2, false, nil))
	insertHeartbeat(t, store, 1, 7)
	insertHeartbeat(t, store, 2, 0)

	w := New(Config{}, store, timeoutsReturning(t, time.Hour), zaptest.NewLogger(t))

	start := time.Now()
	summary, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second, "first observation must not wait")
	assert.Equal(t, 1, summary.Writes)

	b := loadBridge(t, store, "B")
	assertTerminal(t, b.Terminals[0], 1, true, 7)
	assertTerminal(t, b.Terminals[1], 2, false, 0)
}

func TestWatchdog_MissingHeartbeatIsolation(t *testing.T) {
	store := newStore()

	noHeartbeat := terminal(1, true, 3)
	noHeartbeat["label"] = "lobby"

	insertBridge(t, store, "B", noHeartbeat, terminal(2, false, 4))
	insertHeartbeat(t, store, 2, 5)

	w := New(Config{}, store, timeoutsReturning(t, time.Second), zaptest.NewLogger(t))

	summary, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Writes)

	doc, err := store.FindOne(context.Background(), "bridges", "id", "B")
	require.NoError(t, err)

	b, err := models.BridgeFromDocument(doc)
	require.NoError(t, err)
	assertTerminal(t, b.Terminals[0], 1, true, 3)
	assertTerminal(t, b.Terminals[1], 2, true, 5)

	list := doc["terminals"].([]interface{})
	assert.Equal(t, "lobby", list[0].(map[string]interface{})["label"])
}

func TestWatchdog_NoChangeNoWrite(t *testing.T) {
	store := newStore()
	insertBridge(t, store, "B", terminal(1, false, 5))
	insertBridge(t, store, "empty")
	insertHeartbeat(t, store, 1, 5)

	w := New(Config{PollInterval: 10 * time.Millisecond}, store,
		timeoutsReturning(t, 50*time.Millisecond), zaptest.NewLogger(t))

	summary, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, summary.Writes)
	assert.Equal(t, 1, summary.Skipped)
	assert.Zero(t, store.updates.Load())
}

func TestWatchdog_CounterAdvancesWhilePolling(t *testing.T) {
	store := newStore()
	insertBridge(t, store, "B", terminal(1, false, 5))
	hbID := insertHeartbeat(t, store, 1, 5)

	w := New(Config{PollInterval: 10 * time.Millisecond}, store,
		timeoutsReturning(t, 5*time.Second), zaptest.NewLogger(t))

	go func() {
		time.Sleep(50 * time.Millisecond)

		_ = store.Service.UpdateFields(context.Background(), "heartbeats", hbID,
			map[string]interface{}{"counter": 6})
	}()

	start := time.Now()
	_, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 4*time.Second)

	b := loadBridge(t, store, "B")
	assertTerminal(t, b.Terminals[0], 1, true, 6)
}

func TestWatchdog_ConfirmsTerminalsConcurrently(t *testing.T) {
	store := newStore()

	terms := make([]map[string]interface{}, 0, 5)
	for id := 1; id <= 5; id++ {
		terms = append(terms, terminal(id, true, 1))
		insertHeartbeat(t, store, id, 1)
	}

	insertBridge(t, store, "B", terms...)

	timeout := 200 * time.Millisecond
	w := New(Config{PollInterval: 20 * time.Millisecond}, store,
		timeoutsReturning(t, timeout), zaptest.NewLogger(t))

	start := time.Now()
	_, err := w.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Less(t, time.Since(start), 3*timeout, "stale terminals should share one deadline")

	b := loadBridge(t, store, "B")
	for i, term := range b.Terminals {
		assertTerminal(t, term, i+1, false, 1)
	}
}

func TestWatchdog_TerminalConcurrencyKeepsOneDeadline(t *testing.T) {
	store := newStore()

	terms := make([]map[string]interface{}, 0, 6)
	for id := 1; id <= 5; id++ {
		terms = append(terms, terminal(id, true, 1))
		insertHeartbeat(t, store, id, 1)
	}

	// Queued last, after the deadline has passed; its first read still counts.
	terms = append(terms, terminal(6, false, 1))
	insertHeartbeat(t, store, 6, 2)

	insertBridge(t, store, "B", terms...)

	timeout := 200 * time.Millisecond
	w := New(Config{PollInterval: 20 * time.Millisecond, TerminalConcurrency: 1}, store,
		timeoutsReturning(t, timeout), zaptest.NewLogger(t))

	start := time.Now()
	_, err := w.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Less(t, time.Since(start), 2*timeout, "queued terminals must not get a fresh timeout")

	b := loadBridge(t, store, "B")
	require.Len(t, b.Terminals, 6)

	for i, term := range b.Terminals[:5] {
		assertTerminal(t, term, i+1, false, 1)
	}

	assertTerminal(t, b.Terminals[5], 6, true, 2)
}

func TestAwaitAdvance_PassedDeadline(t *testing.T) {
	mockClock := clock.NewMock()
	w := New(Config{}, newStore(), nil, zaptest.NewLogger(t), WithClock(mockClock))

	c := w.awaitAdvance(context.Background(), 1, 5, 5, mockClock.Now())
	assert.False(t, c.Live)
	assert.Equal(t, int64(5), c.Counter)
	assert.Equal(t, status.ReasonTimeout, c.Reason)

	c = w.awaitAdvance(context.Background(), 1, 5, 7, mockClock.Now().Add(-time.Second))
	assert.True(t, c.Live)
	assert.Equal(t, int64(7), c.Counter)
}

func TestWatchdog_CancellationInterruptsWait(t *testing.T) {
	store := newStore()
	insertBridge(t, store, "B", terminal(1, true, 5))
	insertBridge(t, store, "C", terminal(2, true, nil))
	insertHeartbeat(t, store, 1, 5)
	insertHeartbeat(t, store, 2, 1)

	w := New(Config{PollInterval: 10 * time.Millisecond}, store,
		timeoutsReturning(t, time.Minute), zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	summary, err := w.RunOnce(ctx)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)

	assert.Equal(t, 1, summary.Writes)
	assert.Equal(t, 1, summary.Skipped, "no new bridge starts after cancellation")

	b := loadBridge(t, store, "B")
	assertTerminal(t, b.Terminals[0], 1, false, 5)

	c := loadBridge(t, store, "C")
	assert.Nil(t, c.Terminals[0].LastSeenCounter)
}

func TestWatchdog_FindFailureAbortsPass(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := db.NewMockService(ctrl)
	store.EXPECT().Find(gomock.Any(), "bridges").Return(nil, errStoreDown)

	w := New(Config{}, store, config.NewMockTimeoutProvider(ctrl), zaptest.NewLogger(t))

	_, err := w.RunOnce(context.Background())
	require.ErrorIs(t, err, errStoreDown)
	require.ErrorIs(t, err, errListBridges)
}

func TestWatchdog_BridgeFailureIsolation(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := db.NewMockService(ctrl)
	timeouts := config.NewMockTimeoutProvider(ctrl)

	timeouts.EXPECT().TerminalTimeout().Return(time.Second)
	store.EXPECT().Find(gomock.Any(), "bridges").Return([]db.Document{
		{"id": "bad", "terminals": "oops"},
		{"id": "B1", "terminals": []interface{}{terminal(1, false, nil)}},
		{"id": "B2", "terminals": []interface{}{terminal(2, false, nil)}},
	}, nil)
	store.EXPECT().FindOne(gomock.Any(), "heartbeats", "terminalId", 1).
		Return(db.Document{"terminalId": 1, "counter": 3}, nil)
	store.EXPECT().FindOne(gomock.Any(), "heartbeats", "terminalId", 2).
		Return(db.Document{"terminalId": 2, "counter": 4}, nil)
	store.EXPECT().UpdateFields(gomock.Any(), "bridges", "B1", gomock.Any()).Return(errStoreDown)
	store.EXPECT().UpdateFields(gomock.Any(), "bridges", "B2", gomock.Any()).Return(nil)

	w := New(Config{}, store, timeouts, zaptest.NewLogger(t))

	summary, err := w.RunOnce(context.Background())
	require.ErrorIs(t, err, errStoreDown)
	require.ErrorIs(t, err, errDecodeBridge)

	assert.Equal(t, 3, summary.Scanned)
	assert.Equal(t, 2, summary.Failures)
	assert.Equal(t, 1, summary.Writes)
}

func TestWatchdog_HeartbeatReadErrorSkipsTerminal(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := db.NewMockService(ctrl)
	timeouts := config.NewMockTimeoutProvider(ctrl)

	timeouts.EXPECT().TerminalTimeout().Return(time.Second)
	store.EXPECT().Find(gomock.Any(), "bridges").Return([]db.Document{
		{"id": "B", "terminals": []interface{}{terminal(1, true, 2)}},
	}, nil)
	store.EXPECT().FindOne(gomock.Any(), "heartbeats", "terminalId", 1).Return(nil, errStoreDown)

	w := New(Config{}, store, timeouts, zaptest.NewLogger(t))

	summary, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, summary.Writes)
}
