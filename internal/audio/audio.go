package audio

import (
	"context"
	"errors"
)

// Capture defines the interface for audio capture
type Capture interface {
	// Start opens the device and streams mono frames into out until ctx is
	// done, Stop is called, or the device goes away. out is closed when the
	// stream ends.
	Start(ctx context.Context, deviceID string, sampleRate int, out chan<- []float32) error
	Stop() error
	ListDevices() ([]AudioDevice, error)
	Close() error
}

// AudioDevice represents an audio input device
type AudioDevice struct {
	ID      string
	Name    string
	Default bool
}

// Start failures. Callers match these with errors.Is.
var (
	ErrPermissionDenied  = errors.New("microphone permission denied")
	ErrDeviceUnavailable = errors.New("audio input device unavailable")
	ErrUnsupported       = errors.New("audio capture not supported")
	ErrBusy              = errors.New("audio capture already running")
)
