package notify

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_ClearsStaleSignal(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Kill(dir))

	w, err := New(dir, nil)
	require.NoError(t, err)
	defer w.Close()

	_, err = os.Stat(w.KillPath())
	assert.True(t, os.IsNotExist(err))
	assert.False(t, w.ShouldStop())
}

func TestWatch_CancelsOnKill(t *testing.T) {
	dir := t.TempDir()
	w, err := New(dir, nil)
	require.NoError(t, err)
	defer w.Close()

	ctx, cancel := w.Watch(context.Background())
	defer cancel()

	require.NoError(t, Kill(dir))

	select {
	case <-ctx.Done():
	case <-time.After(5 * time.Second):
		// The direct check covers platforms where the event never arrives.
		require.True(t, w.ShouldStop())
		<-ctx.Done()
	}
	assert.ErrorIs(t, context.Cause(ctx), ErrKillSignal)
	assert.ErrorIs(t, ctx.Err(), context.Canceled)
	assert.True(t, w.ShouldStop())
}

func TestWatch_ReleaseDoesNotSignal(t *testing.T) {
	w, err := New(t.TempDir(), nil)
	require.NoError(t, err)
	defer w.Close()

	ctx, cancel := w.Watch(context.Background())
	cancel()

	<-ctx.Done()
	assert.NotErrorIs(t, context.Cause(ctx), ErrKillSignal)
	assert.False(t, w.ShouldStop())
}

func TestPollingFallback(t *testing.T) {
	old := pollInterval
	pollInterval = 10 * time.Millisecond
	defer func() { pollInterval = old }()

	dir := t.TempDir()
	w, err := New(dir, nil)
	require.NoError(t, err)
	defer w.Close()
	go w.poll()

	require.NoError(t, Kill(dir))
	select {
	case <-w.Stopped():
	case <-time.After(5 * time.Second):
		t.Fatal("kill signal not observed")
	}
}

func TestClose_Idempotent(t *testing.T) {
	w, err := New(t.TempDir(), nil)
	require.NoError(t, err)
	assert.NoError(t, w.Close())
	assert.NoError(t, w.Close())
}
