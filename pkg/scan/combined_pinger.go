package scan

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// CombinedPinger tries each pinger in turn within one shared timeout and
// stops at the first that reports the address reachable.
type CombinedPinger struct {
	pingers []Pinger
}

func NewCombinedPinger(pingers ...Pinger) *CombinedPinger {
	return &CombinedPinger{pingers: pingers}
}

func (c *CombinedPinger) Ping(ctx context.Context, address string, timeout time.Duration) bool {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	deadline, _ := ctx.Deadline()

	for _, p := range c.pingers {
		remaining := time.Until(deadline)
		if remaining <= 0 || ctx.Err() != nil {
			return false
		}

		if p.Ping(ctx, address, remaining) {
			return true
		}
	}

	return false
}

// Options configures the pinger built by NewPinger.
type Options struct {
	ICMPCount        int
	RateLimit        int
	TCPFallbackPorts []int
}

// NewPinger returns an ICMP pinger, wrapped with a TCP fallback when ports
// are configured.
func NewPinger(opts Options, logger *zap.Logger) Pinger {
	icmpPinger := NewICMPPinger(opts.ICMPCount, opts.RateLimit, logger)

	if len(opts.TCPFallbackPorts) == 0 {
		return icmpPinger
	}

	return NewCombinedPinger(icmpPinger, NewTCPPinger(opts.TCPFallbackPorts, logger))
}
