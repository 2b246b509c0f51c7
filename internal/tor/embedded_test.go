package tor

import (
	"errors"
	"testing"
	"time"
)

// TestNewEmbeddedTor tests the EmbeddedTor constructor.
func TestNewEmbeddedTor(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		opts     []EmbeddedTorOption
		expected time.Duration
	}{
		{"default timeout", nil, DefaultStartupTimeout},
		{"custom timeout", []EmbeddedTorOption{WithStartupTimeout(5 * time.Minute)}, 5 * time.Minute},
		{"non-positive timeout keeps default", []EmbeddedTorOption{WithStartupTimeout(0)}, DefaultStartupTimeout},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			embedded := NewEmbeddedTor(tc.opts...)
			if embedded.startupTimeout != tc.expected {
				t.Errorf("expected %v, got %v", tc.expected, embedded.startupTimeout)
			}
		})
	}
}

// TestEmbeddedTorNotStarted tests EmbeddedTor methods without starting Tor.
func TestEmbeddedTorNotStarted(t *testing.T) {
	t.Parallel()

	embedded := NewEmbeddedTor()
	if embedded.IsRunning() {
		t.Error("expected IsRunning to be false before start")
	}
	if embedded.SocksAddr() != "" || embedded.ControlAddr() != "" {
		t.Error("expected empty addresses before start")
	}
	if err := embedded.Stop(); err != nil {
		t.Errorf("expected no error stopping unstarted instance, got %v", err)
	}
	if _, err := embedded.NewClient(30 * time.Second); !errors.Is(err, ErrNotRunning) {
		t.Errorf("expected ErrNotRunning, got %v", err)
	}
}
