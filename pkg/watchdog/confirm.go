package watchdog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mfreeman451/statustracker/pkg/db"
	"github.com/mfreeman451/statustracker/pkg/models"
	"github.com/mfreeman451/statustracker/pkg/status"
	"go.uber.org/zap"
)

var (
	errNoHeartbeat   = errors.New("no heartbeat source")
	errReadHeartbeat = errors.New("failed to read heartbeat")
)

// readCounter returns the current heartbeat counter of a terminal.
func (w *Watchdog) readCounter(ctx context.Context, terminalID int) (int64, error) {
	doc, err := w.store.FindOne(ctx, w.cfg.HeartbeatCollection, models.FieldTerminalID, terminalID)
	if errors.Is(err, db.ErrNotFound) {
		return 0, fmt.Errorf("%w for terminal %d", errNoHeartbeat, terminalID)
	}

	if err != nil {
		return 0, fmt.Errorf("%w for terminal %d: %w", errReadHeartbeat, terminalID, err)
	}

	hb, ok := models.HeartbeatFromDocument(doc)
	if !ok {
		return 0, fmt.Errorf("%w for terminal %d: counter is not a number", errNoHeartbeat, terminalID)
	}

	return hb.Counter, nil
}

// awaitAdvance decides whether the counter of a terminal moved away from
// previous. current is the value read at the start of the evaluation. The
// counter is polled every poll interval until it changes, the deadline
// passes or ctx is done.
func (w *Watchdog) awaitAdvance(
	ctx context.Context, terminalID int, previous, current int64, deadline time.Time) status.Confirmation {
	if current != previous {
		return status.Confirmation{Live: true, Counter: current, Reason: status.ReasonAdvanced}
	}

	remaining := deadline.Sub(w.clock.Now())
	if remaining <= 0 {
		return status.Confirmation{Live: false, Counter: current, Reason: status.ReasonTimeout}
	}

	expired := w.clock.Timer(remaining)
	defer expired.Stop()

	poll := w.clock.Ticker(w.cfg.PollInterval)
	defer poll.Stop()

	last := current

	for {
		select {
		case <-ctx.Done():
			return status.Confirmation{Live: false, Counter: last, Reason: status.ReasonInterrupted}
		case <-expired.C:
			return status.Confirmation{Live: false, Counter: last, Reason: status.ReasonTimeout}
		case <-poll.C:
			counter, err := w.readCounter(ctx, terminalID)
			if err != nil {
				// Treated as no change for this poll.
				w.logger.Debug("Heartbeat poll failed",
					zap.Int("terminal_id", terminalID), zap.Error(err))

				continue
			}

			last = counter

			if counter != previous {
				return status.Confirmation{Live: true, Counter: counter, Reason: status.ReasonAdvanced}
			}
		}
	}
}
