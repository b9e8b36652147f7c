package audio

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMissingAudioSubsystemFailsAtStart(t *testing.T) {
	capture := newCapture(zerolog.Nop(), func() error { return errors.New("no host API") })

	out := make(chan []float32, 1)
	err := capture.Start(context.Background(), "", 44100, out)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnsupported)
	assert.Contains(t, err.Error(), "no host API")

	_, err = capture.ListDevices()
	assert.ErrorIs(t, err, ErrUnsupported)

	// nothing was initialised, so there is nothing to release
	assert.NoError(t, capture.Stop())
	assert.NoError(t, capture.Close())
}
