package audio

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
	"github.com/rs/zerolog"

	"github.com/petems/birthday-tray/internal/permissions"
)

const framesPerBuffer = 512

type portAudioCapture struct {
	log     zerolog.Logger
	initErr error

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a new PortAudio-based audio capture. A host without a usable
// audio subsystem still gets a Capture; its Start and ListDevices report
// ErrUnsupported so the caller can fall back to manual input.
func New(log zerolog.Logger) Capture {
	return newCapture(log, portaudio.Initialize)
}

func newCapture(log zerolog.Logger, initialize func() error) *portAudioCapture {
	p := &portAudioCapture{log: log}
	if err := initialize(); err != nil {
		p.initErr = fmt.Errorf("%w: initialize PortAudio: %v", ErrUnsupported, err)
		log.Warn().Err(err).Msg("Audio subsystem unavailable")
	}
	return p
}

func (p *portAudioCapture) Start(ctx context.Context, deviceID string, sampleRate int, out chan<- []float32) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.initErr != nil {
		return p.initErr
	}
	if p.done != nil {
		return ErrBusy
	}

	if err := permissions.Microphone(); err != nil {
		return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	}

	device, err := findInputDevice(deviceID)
	if err != nil {
		return err
	}

	// Stereo interfaces often refuse a mono stream; take up to two channels and downmix.
	channels := device.MaxInputChannels
	if channels > 2 {
		channels = 2
	}

	buffer := make([]float32, framesPerBuffer*channels)
	stream, err := portaudio.OpenStream(portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   device,
			Channels: channels,
			Latency:  device.DefaultLowInputLatency,
		},
		SampleRate:      float64(sampleRate),
		FramesPerBuffer: framesPerBuffer,
	}, buffer)
	if err != nil {
		return fmt.Errorf("%w: open stream on %q: %v", ErrDeviceUnavailable, device.Name, err)
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		return fmt.Errorf("%w: start stream on %q: %v", ErrDeviceUnavailable, device.Name, err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	p.cancel = cancel
	p.done = done

	p.log.Debug().
		Str("device", device.Name).
		Int("channels", channels).
		Int("sample_rate", sampleRate).
		Msg("Audio stream started")

	go p.readLoop(runCtx, stream, buffer, channels, out, done)
	return nil
}

func (p *portAudioCapture) readLoop(ctx context.Context, stream *portaudio.Stream, buffer []float32, channels int, out chan<- []float32, done chan struct{}) {
	defer func() {
		stream.Stop()
		stream.Close()
		close(out)

		p.mu.Lock()
		if p.done == done {
			p.cancel()
			p.cancel = nil
			p.done = nil
		}
		p.mu.Unlock()
		close(done)
	}()

	for ctx.Err() == nil {
		if err := stream.Read(); err != nil {
			if errors.Is(err, portaudio.InputOverflowed) {
				continue
			}
			p.log.Warn().Err(err).Msg("Audio stream lost")
			return
		}

		samples := downmixInterleaved(buffer, channels, framesPerBuffer)

		select {
		case out <- samples:
		case <-ctx.Done():
			return
		default:
			// Drop if channel full (backpressure)
		}
	}
}

// Stop ends the current stream and waits for the read loop to release it
func (p *portAudioCapture) Stop() error {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.mu.Unlock()

	if done == nil {
		return nil
	}
	cancel()
	<-done
	return nil
}

func (p *portAudioCapture) ListDevices() ([]AudioDevice, error) {
	if p.initErr != nil {
		return nil, p.initErr
	}
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}

	result := make([]AudioDevice, 0, len(devices))
	defaultDevice, _ := portaudio.DefaultInputDevice()

	for _, d := range devices {
		if d.MaxInputChannels > 0 {
			result = append(result, AudioDevice{
				ID:      d.Name,
				Name:    d.Name,
				Default: d == defaultDevice,
			})
		}
	}

	return result, nil
}

func (p *portAudioCapture) Close() error {
	if p.initErr != nil {
		return nil
	}
	p.Stop()
	return portaudio.Terminate()
}

// findInputDevice resolves a device name, or the default input when empty
func findInputDevice(deviceID string) (*portaudio.DeviceInfo, error) {
	if deviceID == "" {
		device, err := portaudio.DefaultInputDevice()
		if err != nil || device == nil {
			return nil, fmt.Errorf("%w: no default input device: %v", ErrDeviceUnavailable, err)
		}
		if device.MaxInputChannels < 1 {
			return nil, fmt.Errorf("%w: %q has no input channels", ErrDeviceUnavailable, device.Name)
		}
		return device, nil
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("%w: enumerate devices: %v", ErrDeviceUnavailable, err)
	}
	for _, d := range devices {
		if d.Name == deviceID && d.MaxInputChannels > 0 {
			return d, nil
		}
	}
	return nil, fmt.Errorf("%w: device not found: %s", ErrDeviceUnavailable, deviceID)
}
