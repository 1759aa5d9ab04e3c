package lifecycle

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeService struct {
	started  chan struct{}
	stopped  atomic.Bool
	startErr error
	stopErr  error
}

func newFakeService() *fakeService {
	return &fakeService{started: make(chan struct{})}
}

func (f *fakeService) Start(context.Context) error {
	if f.startErr != nil {
		return f.startErr
	}

	close(f.started)

	return nil
}

func (f *fakeService) Stop(context.Context) error {
	f.stopped.Store(true)

	return f.stopErr
}

func TestRunServer_ContextCancel(t *testing.T) {
	svc := newFakeService()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)

	go func() {
		done <- RunServer(ctx, &ServerOptions{
			ServiceName: "statustracker",
			Service:     svc,
			HTTPAddr:    "127.0.0.1:0",
			HTTPHandler: http.NotFoundHandler(),
			GRPCAddr:    "127.0.0.1:0",
			Logger:      zaptest.NewLogger(t),
		})
	}()

	select {
	case <-svc.started:
	case <-time.After(5 * time.Second):
		t.Fatal("service did not start")
	}

	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("RunServer did not return")
	}

	assert.True(t, svc.stopped.Load())
}

func TestRunServer_StartError(t *testing.T) {
	boom := errors.New("boom")
	svc := &fakeService{started: make(chan struct{}), startErr: boom}

	err := RunServer(context.Background(), &ServerOptions{
		ServiceName: "statustracker",
		Service:     svc,
		Logger:      zaptest.NewLogger(t),
	})

	require.ErrorIs(t, err, boom)
	assert.False(t, svc.stopped.Load())
}

func TestRunServer_StopError(t *testing.T) {
	boom := errors.New("stop failed")
	svc := newFakeService()
	svc.stopErr = boom

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)

	go func() {
		done <- RunServer(ctx, &ServerOptions{ServiceName: "x", Service: svc, Logger: zaptest.NewLogger(t)})
	}()

	<-svc.started
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, boom)
	case <-time.After(10 * time.Second):
		t.Fatal("RunServer did not return")
	}
}

func TestRunServer_ListenError(t *testing.T) {
	err := RunServer(context.Background(), &ServerOptions{
		ServiceName: "x",
		Service:     newFakeService(),
		GRPCAddr:    "256.0.0.1:bad",
		Logger:      zaptest.NewLogger(t),
	})

	require.Error(t, err)
}
