package testutil

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/tOgg1/pocketbench/internal/benchapi"
	"github.com/tOgg1/pocketbench/internal/benchmock"
)

// BenchEnv is a scripted benchmark server on loopback with a client for it.
type BenchEnv struct {
	Mock   *benchmock.Server
	URL    string
	Client *benchapi.Client

	server *httptest.Server
	t      *testing.T
}

// NewBenchEnv starts a mock benchmark server that is shut down with the test.
func NewBenchEnv(t *testing.T, cfg benchmock.Config) *BenchEnv {
	t.Helper()
	SkipIfNoNetwork(t)

	mock := benchmock.New(cfg)
	srv := httptest.NewServer(mock)
	t.Cleanup(srv.Close)

	client, err := benchapi.New(srv.URL)
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	return &BenchEnv{Mock: mock, URL: srv.URL, Client: client, server: srv, t: t}
}

// Close shuts the server down early, leaving URL unreachable.
func (e *BenchEnv) Close() {
	e.server.CloseClientConnections()
	e.server.Close()
}

// WaitForLog waits until the named server log contains substring.
func (e *BenchEnv) WaitForLog(name, substring string, timeout time.Duration) bool {
	e.t.Helper()
	return WaitFor(timeout, func() bool {
		content, ok := e.Mock.Log(name)
		return ok && strings.Contains(content, substring)
	})
}

// WaitForRunning waits until the server has (running) or has not (!running)
// an active run.
func (e *BenchEnv) WaitForRunning(running bool, timeout time.Duration) bool {
	e.t.Helper()
	return WaitFor(timeout, func() bool { return e.Mock.Running() == running })
}

// WaitFor polls cond until it holds or timeout passes.
func WaitFor(timeout time.Duration, cond func() bool) bool {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for {
		if cond() {
			return true
		}
		select {
		case <-ctx.Done():
			return cond()
		case <-ticker.C:
		}
	}
}
