package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/orion-sre/orion/internal/approval"
	"github.com/orion-sre/orion/internal/clock"
	"github.com/orion-sre/orion/internal/contracts"
	"github.com/orion-sre/orion/internal/feed"
	"github.com/orion-sre/orion/internal/testsupport"
)

func freePort(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return addr
}

func TestNoLocalModel_AlwaysReportsUnreachable(t *testing.T) {
	_, err := noLocalModel{}.Generate(context.Background(), "any prompt")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errNoLocalModel))
}

func TestRunMetricsServer_ServesMetricsAndShutsDownOnCancel(t *testing.T) {
	addr := freePort(t)
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() { errCh <- runMetricsServer(ctx, addr, zap.NewNop()) }()

	waitForServer(t, addr)

	resp, err := http.Get("http://" + addr + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("runMetricsServer did not shut down after context cancellation")
	}
}

func TestRunAdminServer_ServesApprovalsRouteAndShutsDown(t *testing.T) {
	addr := freePort(t)
	ctx, cancel := context.WithCancel(context.Background())

	b := testsupport.NewMemBus(contracts.NewValidator())
	fc := clock.NewFake(time.Now())

	dir := t.TempDir()
	identityPath := dir + "/admin_identity.yaml"
	require.NoError(t, os.WriteFile(identityPath, []byte("admin:\n  cli_identity: orion-admin\n"), 0o644))
	identity, err := approval.LoadIdentity(identityPath)
	require.NoError(t, err)
	coordinator := approval.New(b, fc, zap.NewNop(), identity)
	dashboardFeed := feed.New(zap.NewNop())

	errCh := make(chan error, 1)
	go func() { errCh <- runAdminServer(ctx, addr, coordinator, dashboardFeed, zap.NewNop()) }()

	waitForServer(t, addr)

	resp, err := http.Get("http://" + addr + "/approvals/pending")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("runAdminServer did not shut down after context cancellation")
	}
}

func waitForServer(t *testing.T, addr string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		conn, err := net.Dial("tcp", addr)
		if err == nil {
			conn.Close()
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("server at %s never became reachable", addr)
}
