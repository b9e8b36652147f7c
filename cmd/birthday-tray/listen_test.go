package main

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedKeys struct {
	actions []string
}

func (r *recordedKeys) OnHotkey(pressed bool) { r.actions = append(r.actions, "hotkey") }
func (r *recordedKeys) ManualBlow()           { r.actions = append(r.actions, "blow") }
func (r *recordedKeys) StopListening()        { r.actions = append(r.actions, "stop") }
func (r *recordedKeys) Relight()              { r.actions = append(r.actions, "relight") }

func TestReadKeysMapsInput(t *testing.T) {
	rec := &recordedKeys{}
	in := strings.NewReader("\nb\n B \ns\nr\nx\nq\nb\n")

	require.NoError(t, readKeys(context.Background(), in, rec))
	assert.Equal(t, []string{"hotkey", "blow", "blow", "stop", "relight"}, rec.actions)
}

func TestReadKeysReturnsOnEOF(t *testing.T) {
	rec := &recordedKeys{}
	done := make(chan error, 1)
	go func() { done <- readKeys(context.Background(), strings.NewReader("b\n"), rec) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("closed input did not end the command")
	}
	assert.Equal(t, []string{"blow"}, rec.actions)
}

func TestReadKeysStopsWithContext(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- readKeys(ctx, pr, &recordedKeys{}) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled context did not end the command")
	}
}
