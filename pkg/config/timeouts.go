package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Keys understood in the timeouts file. Values are whole seconds.
const (
	KeyProbeTimeout     = "bridge.timeout"
	KeyTerminalTimeout  = "terminal.timeout"
	KeyProberInterval   = "scheduler.ping"
	KeyWatchdogInterval = "scheduler.terminal"

	// DefaultTimeout is used whenever a key cannot be resolved.
	DefaultTimeout = 30 * time.Second
)

var (
	errKeyNotFound    = errors.New("key not found")
	errInvalidTimeout = errors.New("invalid timeout value")
)

// FileTimeoutProvider reads timeouts from a key=value file. The file is read
// again on every call, so edits take effect on the next tick without a
// restart.
type FileTimeoutProvider struct {
	path   string
	logger *zap.Logger
}

// NewFileTimeoutProvider creates a provider backed by the file at path.
func NewFileTimeoutProvider(path string, logger *zap.Logger) *FileTimeoutProvider {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &FileTimeoutProvider{
		path:   path,
		logger: logger.Named("timeouts"),
	}
}

func (p *FileTimeoutProvider) ProbeTimeout() time.Duration {
	return p.lookup(KeyProbeTimeout)
}

func (p *FileTimeoutProvider) TerminalTimeout() time.Duration {
	return p.lookup(KeyTerminalTimeout)
}

func (p *FileTimeoutProvider) ProberInterval() time.Duration {
	return p.lookup(KeyProberInterval)
}

func (p *FileTimeoutProvider) WatchdogInterval() time.Duration {
	return p.lookup(KeyWatchdogInterval)
}

func (p *FileTimeoutProvider) lookup(key string) time.Duration {
	d, err := p.read(key)
	if err != nil {
		p.logger.Warn("Using default timeout",
			zap.String("key", key),
			zap.String("file", p.path),
			zap.Duration("default", DefaultTimeout),
			zap.Error(err))

		return DefaultTimeout
	}

	return d
}

func (p *FileTimeoutProvider) read(key string) (time.Duration, error) {
	value, err := readKey(p.path, key)
	if err != nil {
		return 0, err
	}

	secs, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%w %q: %w", errInvalidTimeout, value, err)
	}

	if secs <= 0 {
		return 0, fmt.Errorf("%w %q: must be positive", errInvalidTimeout, value)
	}

	return time.Duration(secs) * time.Second, nil
}

// readKey returns the value of the first line assigning key. Blank lines and
// lines starting with # are ignored.
func readKey(path, key string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		k, v, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}

		if strings.TrimSpace(k) == key {
			return strings.TrimSpace(v), nil
		}
	}

	if err := scanner.Err(); err != nil {
		return "", err
	}

	return "", errKeyNotFound
}
