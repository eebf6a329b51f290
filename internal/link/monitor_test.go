package link

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"
)

// fakeLink fails Connect a fixed number of times before succeeding.
type fakeLink struct {
	failures  int
	attempts  int
	connected bool
}

func (f *fakeLink) Connected() bool { return f.connected }

func (f *fakeLink) Connect() error {
	f.attempts++
	if f.attempts <= f.failures {
		return errors.New("no route to collector")
	}
	f.connected = true
	return nil
}

func (f *fakeLink) Close() error {
	f.connected = false
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestMonitor(t *testing.T, l Link, retries int) *Monitor {
	t.Helper()
	m, err := NewMonitor(l, Config{
		InitialBackoff: time.Millisecond,
		MaxBackoff:     4 * time.Millisecond,
		MaxRetries:     retries,
	}, discardLogger())
	if err != nil {
		t.Fatalf("NewMonitor failed: %v", err)
	}
	return m
}

func TestNewMonitorValidation(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"zero initial backoff", Config{InitialBackoff: 0, MaxBackoff: time.Second, MaxRetries: 3}},
		{"max below initial", Config{InitialBackoff: time.Second, MaxBackoff: time.Millisecond, MaxRetries: 3}},
		{"zero retries", Config{InitialBackoff: time.Millisecond, MaxBackoff: time.Second, MaxRetries: 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewMonitor(&fakeLink{}, tt.cfg, discardLogger()); err == nil {
				t.Error("expected error but got none")
			}
		})
	}
}

func TestEnsureNoopWhenConnected(t *testing.T) {
	l := &fakeLink{connected: true}
	m := newTestMonitor(t, l, 3)

	if err := m.Ensure(context.Background()); err != nil {
		t.Fatalf("Ensure failed on healthy link: %v", err)
	}
	if l.attempts != 0 {
		t.Errorf("Connect called %d times on healthy link", l.attempts)
	}
}

func TestEnsureRetriesUntilSuccess(t *testing.T) {
	l := &fakeLink{failures: 2}
	m := newTestMonitor(t, l, 5)

	if err := m.Ensure(context.Background()); err != nil {
		t.Fatalf("Ensure failed: %v", err)
	}
	if l.attempts != 3 {
		t.Errorf("Connect attempts = %d, expected 3", l.attempts)
	}
	if m.Reconnects() != 1 {
		t.Errorf("reconnects = %d, expected 1", m.Reconnects())
	}
}

func TestEnsureBoundedRetries(t *testing.T) {
	l := &fakeLink{failures: 100}
	m := newTestMonitor(t, l, 4)

	err := m.Ensure(context.Background())
	if err == nil {
		t.Fatal("expected error after retries were exhausted")
	}
	if l.attempts != 4 {
		t.Errorf("Connect attempts = %d, expected exactly 4", l.attempts)
	}
}

func TestEnsureCancellable(t *testing.T) {
	l := &fakeLink{failures: 100}
	m, err := NewMonitor(l, Config{
		InitialBackoff: time.Hour, // would block forever without cancellation
		MaxBackoff:     time.Hour,
		MaxRetries:     10,
	}, discardLogger())
	if err != nil {
		t.Fatalf("NewMonitor failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	if err := m.Ensure(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Ensure error = %v, expected context.Canceled", err)
	}
	if time.Since(start) > time.Second {
		t.Error("cancellation did not interrupt backoff wait")
	}
}
