package scan

import (
	"context"
	"time"
)

//go:generate mockgen -destination=mock_pinger.go -package=scan github.com/mfreeman451/statustracker/pkg/scan Pinger

// Pinger answers whether an address is reachable within timeout. It never
// blocks past the timeout and reports internal failures as unreachable.
type Pinger interface {
	Ping(ctx context.Context, address string, timeout time.Duration) bool
}
