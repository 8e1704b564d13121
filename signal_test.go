package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShutdownContext_SignalCancels(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	defer cancel()

	var logs bytes.Buffer

	ctx := shutdownContext(parent, slog.New(slog.NewTextHandler(&logs, nil)), "the current upload")

	require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGTERM))

	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("context not canceled after SIGTERM")
	}

	// The message is logged before cancel, so it is visible here.
	assert.Contains(t, logs.String(), "finishing the current upload")
	assert.Contains(t, logs.String(), "signal=terminated")
}

func TestShutdownContext_FollowsParent(t *testing.T) {
	t.Parallel()

	parent, cancel := context.WithCancel(context.Background())
	ctx := shutdownContext(parent, slog.New(slog.NewTextHandler(io.Discard, nil)), "open requests")

	cancel()

	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("context not canceled with its parent")
	}
}
