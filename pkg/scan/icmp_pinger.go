/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package scan pkg/scan/icmp_pinger.go
package scan

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync/atomic"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
	"golang.org/x/time/rate"
)

const (
	defaultICMPCount     = 4
	icmpProtocolNumber   = 1
	maxPacketSize        = 1500
	unavailableLogPeriod = time.Minute
)

var (
	// ErrICMPUnavailable is returned by Echo when neither an unprivileged
	// nor a raw ICMP socket can be opened.
	ErrICMPUnavailable = errors.New("icmp sockets unavailable")
	errNoIPv4Address   = errors.New("no IPv4 address")
	errEmptyAddress    = errors.New("empty address")
)

// ICMPPinger sends ICMP echo requests. An address counts as reachable when
// any of count requests gets a reply before the timeout.
type ICMPPinger struct {
	count   int
	limiter *rate.Limiter
	logger  *zap.Logger
	id      uint32
	payload []byte
	// unavailable throttles the warning for hosts without ICMP sockets.
	unavailable rate.Sometimes
}

// NewICMPPinger creates a pinger sending count echoes per probe. rateLimit
// caps echo requests per second across all probes; zero disables pacing.
func NewICMPPinger(count, rateLimit int, logger *zap.Logger) *ICMPPinger {
	if count <= 0 {
		count = defaultICMPCount
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	p := &ICMPPinger{
		count:   count,
		logger:  logger.Named("icmp"),
		id:      uint32(os.Getpid()),
		payload: []byte("statustracker"),

		unavailable: rate.Sometimes{First: 1, Interval: unavailableLogPeriod},
	}

	if rateLimit > 0 {
		p.limiter = rate.NewLimiter(rate.Limit(rateLimit), rateLimit)
	}

	return p
}

// Ping implements Pinger.
func (p *ICMPPinger) Ping(ctx context.Context, address string, timeout time.Duration) bool {
	ok, err := p.Echo(ctx, address, timeout)
	if err != nil {
		p.logEchoError(address, err)
	}

	return ok
}

// logEchoError reports missing ICMP sockets at most once per period, since
// every probe on such a host fails the same way. Other failures are per
// address and stay at debug level.
func (p *ICMPPinger) logEchoError(address string, err error) {
	if errors.Is(err, ErrICMPUnavailable) {
		p.unavailable.Do(func() {
			p.logger.Warn("ICMP sockets unavailable, endpoints probed by ICMP read as unreachable",
				zap.String("address", address), zap.Error(err))
		})

		return
	}

	p.logger.Debug("Echo failed", zap.String("address", address), zap.Error(err))
}

// Echo probes address and reports setup failures to the caller. A request
// that simply gets no reply is not an error.
func (p *ICMPPinger) Echo(ctx context.Context, address string, timeout time.Duration) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ip, err := resolveIPv4(ctx, address)
	if err != nil {
		return false, err
	}

	conn, network, err := listenICMP()
	if err != nil {
		return false, err
	}
	defer func() { _ = conn.Close() }()

	// Unblock the reader as soon as the probe is over.
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetReadDeadline(time.Now())
	})
	defer stop()

	id := int(atomic.AddUint32(&p.id, 1) & 0xffff)
	replies := make(chan struct{}, 1)

	go p.readReplies(conn, network, ip, id, replies)

	dst := echoDestination(network, ip)
	gap := timeout / time.Duration(p.count)

	for seq := 0; seq < p.count; seq++ {
		if p.limiter != nil {
			if err := p.limiter.Wait(ctx); err != nil {
				return false, nil
			}
		}

		if err := p.send(conn, dst, id, seq); err != nil {
			p.logger.Debug("Failed to send echo request",
				zap.String("address", address), zap.Int("seq", seq), zap.Error(err))
		}

		timer := time.NewTimer(gap)

		select {
		case <-replies:
			timer.Stop()

			return true, nil
		case <-ctx.Done():
			timer.Stop()

			return false, nil
		case <-timer.C:
		}
	}

	select {
	case <-replies:
		return true, nil
	case <-ctx.Done():
		return false, nil
	}
}

func (p *ICMPPinger) send(conn *icmp.PacketConn, dst net.Addr, id, seq int) error {
	msg := icmp.Message{
		Type: ipv4.ICMPTypeEcho,
		Code: 0,
		Body: &icmp.Echo{
			ID:   id,
			Seq:  seq,
			Data: p.payload,
		},
	}

	b, err := msg.Marshal(nil)
	if err != nil {
		return fmt.Errorf("failed to marshal echo request: %w", err)
	}

	if _, err := conn.WriteTo(b, dst); err != nil {
		return fmt.Errorf("failed to write echo request: %w", err)
	}

	return nil
}

// readReplies signals replies once for the first echo reply from ip. It
// returns when the connection is closed or its read deadline passes.
func (*ICMPPinger) readReplies(conn *icmp.PacketConn, network string, ip net.IP, id int, replies chan<- struct{}) {
	packet := make([]byte, maxPacketSize)

	for {
		n, peer, err := conn.ReadFrom(packet)
		if err != nil {
			return
		}

		if !peerIP(peer).Equal(ip) {
			continue
		}

		msg, err := icmp.ParseMessage(icmpProtocolNumber, packet[:n])
		if err != nil || msg.Type != ipv4.ICMPTypeEchoReply {
			continue
		}

		echo, ok := msg.Body.(*icmp.Echo)
		if !ok {
			continue
		}

		// The kernel rewrites the identifier on unprivileged sockets.
		if network == networkRaw && echo.ID != id {
			continue
		}

		select {
		case replies <- struct{}{}:
		default:
		}

		return
	}
}

const (
	networkUnprivileged = "udp4"
	networkRaw          = "ip4:icmp"
)

// listenICMP opens an unprivileged ICMP socket, falling back to a raw one.
func listenICMP() (*icmp.PacketConn, string, error) {
	conn, errUDP := icmp.ListenPacket(networkUnprivileged, "0.0.0.0")
	if errUDP == nil {
		return conn, networkUnprivileged, nil
	}

	conn, errRaw := icmp.ListenPacket(networkRaw, "0.0.0.0")
	if errRaw == nil {
		return conn, networkRaw, nil
	}

	return nil, "", fmt.Errorf("%w: %w", ErrICMPUnavailable, multierr.Combine(errUDP, errRaw))
}

func echoDestination(network string, ip net.IP) net.Addr {
	if network == networkUnprivileged {
		return &net.UDPAddr{IP: ip}
	}

	return &net.IPAddr{IP: ip}
}

func peerIP(addr net.Addr) net.IP {
	switch a := addr.(type) {
	case *net.UDPAddr:
		return a.IP
	case *net.IPAddr:
		return a.IP
	default:
		return nil
	}
}

func resolveIPv4(ctx context.Context, address string) (net.IP, error) {
	if address == "" {
		return nil, errEmptyAddress
	}

	if ip := net.ParseIP(address); ip != nil {
		if v4 := ip.To4(); v4 != nil {
			return v4, nil
		}

		return nil, fmt.Errorf("%w: %s", errNoIPv4Address, address)
	}

	ips, err := net.DefaultResolver.LookupIP(ctx, "ip4", address)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", address, err)
	}

	if len(ips) == 0 {
		return nil, fmt.Errorf("%w: %s", errNoIPv4Address, address)
	}

	return ips[0].To4(), nil
}
