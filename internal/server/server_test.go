package server_test

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/aelexs/chat-relay/internal/server"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		// The sqlite driver keeps a connection-pool janitor alive briefly
		// after Close.
		goleak.IgnoreTopFunction("database/sql.(*DB).connectionOpener"),
	)
}

func setTestEnv(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("ENVIRONMENT", "local")
	t.Setenv("RELAY_DB_PATH", filepath.Join(dir, "relay-test.db"))
	t.Setenv("RELAY_UPLOAD_DIR", dir)
	t.Setenv("RELAY_WORDS_FILE", filepath.Join(dir, "absent-words.txt"))
	t.Setenv("LOG_LEVEL", "error")
}

func TestRunGracefulShutdown(t *testing.T) {
	setTestEnv(t)
	ctx, cancel := context.WithCancel(context.Background())

	ln := newTestListener(t)
	addr := ln.Addr().String()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Run(ctx, ln)
	}()

	waitForHealthy(t, addr)

	// Trigger shutdown
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	case <-time.After(15 * time.Second):
		t.Fatal("shutdown did not complete in time")
	}
}

func TestHealthCheckReturns503DuringShutdown(t *testing.T) {
	setTestEnv(t)
	ctx, cancel := context.WithCancel(context.Background())

	ln := newTestListener(t)
	addr := ln.Addr().String()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Run(ctx, ln)
	}()

	waitForHealthy(t, addr)

	// Trigger shutdown
	cancel()

	// Health check should return 503 during drain delay (before server stops).
	eventually(t, 2*time.Second, func() bool {
		resp, err := httpGet(t, fmt.Sprintf("http://%s/healthz", addr))
		if err != nil {
			return false // server may have already stopped
		}
		defer resp.Body.Close()
		return resp.StatusCode == http.StatusServiceUnavailable
	})

	<-errCh // wait for clean exit
}

// newTestListener creates a TCP listener on an OS-assigned port.
func newTestListener(t *testing.T) net.Listener {
	t.Helper()
	ln, err := (&net.ListenConfig{}).Listen(context.Background(), "tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to create test listener: %v", err)
	}
	return ln
}

// waitForHealthy polls the health endpoint until it returns 200.
func waitForHealthy(t *testing.T, addr string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := httpGet(t, fmt.Sprintf("http://%s/healthz", addr))
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatalf("server at %s not healthy within 5s", addr)
}

// httpGet performs an HTTP GET with a background context (satisfies noctx linter).
func httpGet(t *testing.T, url string) (*http.Response, error) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	return http.DefaultClient.Do(req)
}

// eventually retries f until it returns true or timeout expires.
func eventually(t *testing.T, timeout time.Duration, f func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if f() {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatal("condition not met within timeout")
}
