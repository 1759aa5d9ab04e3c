package scan

import (
	"context"
	"net"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// TCPPinger treats an address as reachable when a TCP connection to any of
// its ports succeeds.
type TCPPinger struct {
	ports  []int
	logger *zap.Logger
}

func NewTCPPinger(ports []int, logger *zap.Logger) *TCPPinger {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &TCPPinger{
		ports:  ports,
		logger: logger.Named("tcp"),
	}
}

// Ping dials every configured port in parallel and returns on the first
// successful connection.
func (p *TCPPinger) Ping(ctx context.Context, address string, timeout time.Duration) bool {
	if address == "" || len(p.ports) == 0 {
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	results := make(chan bool, len(p.ports))

	for _, port := range p.ports {
		go func(port int) {
			results <- p.dial(ctx, net.JoinHostPort(address, strconv.Itoa(port)))
		}(port)
	}

	for range p.ports {
		if <-results {
			return true
		}
	}

	return false
}

func (p *TCPPinger) dial(ctx context.Context, addr string) bool {
	var d net.Dialer

	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		p.logger.Debug("Dial failed", zap.String("addr", addr), zap.Error(err))

		return false
	}

	if err := conn.Close(); err != nil {
		p.logger.Debug("Error closing connection", zap.String("addr", addr), zap.Error(err))
	}

	return true
}
