package app

import (
	"context"
	"fmt"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petems/birthday-tray/internal/audio"
	"github.com/petems/birthday-tray/internal/blow"
	"github.com/petems/birthday-tray/internal/candles"
	"github.com/petems/birthday-tray/internal/card"
	"github.com/petems/birthday-tray/internal/config"
	"github.com/petems/birthday-tray/internal/metrics"
)

// Mock implementations for testing
type mockDetector struct {
	mu       sync.Mutex
	startErr error
	running  bool
	starts   int
	stops    int
	listener blow.Listener
	cfg      blow.Config
}

func (m *mockDetector) Start(ctx context.Context, l blow.Listener) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.starts++
	if m.startErr != nil {
		return m.startErr
	}
	m.running = true
	m.listener = l
	return nil
}

func (m *mockDetector) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stops++
	m.running = false
}

func (m *mockDetector) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *mockDetector) Config() blow.Config { return m.cfg }

func (m *mockDetector) Tune(cfg blow.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	m.cfg = cfg
	return nil
}

func (m *mockDetector) stopCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stops
}

type mockStatus struct {
	mu          sync.Mutex
	states      []string
	levels      []int
	candles     [2]int
	celebrating int
	errKind     blow.FailureKind
}

func (m *mockStatus) record(s string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states = append(m.states, s)
}

func (m *mockStatus) SetIdle()      { m.record("idle") }
func (m *mockStatus) SetListening() { m.record("listening") }
func (m *mockStatus) SetLevel(p int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.levels = append(m.levels, p)
}
func (m *mockStatus) SetCandles(blown, total int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.candles = [2]int{blown, total}
}
func (m *mockStatus) SetCelebrating() {
	m.mu.Lock()
	m.celebrating++
	m.mu.Unlock()
	m.record("celebrating")
}
func (m *mockStatus) SetError(kind blow.FailureKind) {
	m.mu.Lock()
	m.errKind = kind
	m.mu.Unlock()
	m.record("error")
}

func (m *mockStatus) last() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.states) == 0 {
		return ""
	}
	return m.states[len(m.states)-1]
}

type mockCard struct {
	delivered []card.Card
}

func (m *mockCard) Deliver(c card.Card) (string, error) {
	m.delivered = append(m.delivered, c)
	return c.Render()
}

type mockCapture struct{}

func (m *mockCapture) Start(ctx context.Context, deviceID string, sampleRate int, out chan<- []float32) error {
	return nil
}
func (m *mockCapture) Stop() error { return nil }
func (m *mockCapture) ListDevices() ([]audio.AudioDevice, error) {
	return []audio.AudioDevice{{ID: "default", Name: "Default", Default: true}}, nil
}
func (m *mockCapture) Close() error { return nil }

type fixture struct {
	app     *App
	det     *mockDetector
	status  *mockStatus
	card    *mockCard
	metrics *metrics.Recorder
}

func newFixture(t *testing.T, total int) *fixture {
	t.Helper()
	cfg := config.Default()
	cfg.Candles.Total = total

	f := &fixture{
		det:     &mockDetector{cfg: blow.ConfigFrom(cfg)},
		status:  &mockStatus{},
		card:    &mockCard{},
		metrics: metrics.New(),
	}
	f.app = New(Config{
		Detector:      f.det,
		Capture:       &mockCapture{},
		Candles:       candles.New(total, candles.WithMaxStep(1)),
		Card:          f.card,
		Metrics:       f.metrics,
		Config:        cfg,
		Logger:        zerolog.Nop(),
		StatusUpdater: f.status,
	})
	return f
}

func TestStartListening(t *testing.T) {
	f := newFixture(t, 17)

	require.NoError(t, f.app.StartListening(context.Background()))
	assert.True(t, f.app.IsListening())
	assert.False(t, f.app.Fallback())
	assert.Equal(t, "listening", f.status.last())

	f.app.StopListening()
	assert.False(t, f.app.IsListening())
	assert.Equal(t, "idle", f.status.last())
}

func TestPermissionDeniedEnablesFallback(t *testing.T) {
	f := newFixture(t, 17)
	f.det.startErr = fmt.Errorf("start listening: %w", audio.ErrPermissionDenied)

	err := f.app.StartListening(context.Background())
	require.Error(t, err)
	assert.True(t, f.app.Fallback())
	assert.False(t, f.app.IsListening())
	assert.Equal(t, blow.FailurePermissionDenied, f.status.errKind)
	assert.Equal(t, "error", f.status.last())
	assert.Contains(t, scrape(t, f.metrics), `birthday_detector_failures_total{kind="permission_denied"} 1`)

	// the experience still advances by hand
	f.app.ManualBlow()
	blown, _ := f.app.Candles()
	assert.Equal(t, 1, blown)
	assert.Equal(t, 1, f.det.starts, "no automatic retry")
}

func TestUnsupportedAudioFallsBackToManual(t *testing.T) {
	f := newFixture(t, 3)
	f.det.startErr = fmt.Errorf("start listening: %w", fmt.Errorf("%w: initialize PortAudio: no host API", audio.ErrUnsupported))

	require.Error(t, f.app.StartListening(context.Background()))
	assert.True(t, f.app.Fallback())
	assert.Equal(t, blow.FailureUnsupported, f.status.errKind)
	assert.Contains(t, scrape(t, f.metrics), `birthday_detector_failures_total{kind="unsupported"} 1`)

	for i := 0; i < 3; i++ {
		f.app.ManualBlow()
	}
	assert.Equal(t, 1, f.status.celebrating)
	assert.Len(t, f.card.delivered, 1)
	assert.Contains(t, scrape(t, f.metrics), `birthday_blows_total{source="manual"} 3`)
}

func TestHotkeyStartsThenBlowsManually(t *testing.T) {
	f := newFixture(t, 17)
	f.det.startErr = fmt.Errorf("%w: unplugged", audio.ErrDeviceUnavailable)

	f.app.OnHotkey(true)
	assert.Equal(t, 1, f.det.starts)
	assert.True(t, f.app.Fallback())

	f.app.OnHotkey(false) // release does nothing
	f.app.OnHotkey(true)
	f.app.OnHotkey(true)

	blown, _ := f.app.Candles()
	assert.Equal(t, 2, blown)
	assert.Equal(t, 1, f.det.starts)
}

func TestHotkeyWhileListeningIsIgnored(t *testing.T) {
	f := newFixture(t, 17)
	f.app.OnHotkey(true)
	require.True(t, f.app.IsListening())

	f.app.OnHotkey(true)
	assert.Equal(t, 1, f.det.starts)
	blown, _ := f.app.Candles()
	assert.Zero(t, blown)
}

func TestMicBlowsCountCandles(t *testing.T) {
	f := newFixture(t, 17)
	require.NoError(t, f.app.StartListening(context.Background()))

	f.det.listener.OnBlow(blow.Event{SessionID: "s", Level: 60, At: time.Now()})
	f.det.listener.OnBlow(blow.Event{SessionID: "s", Level: 60, At: time.Now()})

	assert.Equal(t, [2]int{2, 17}, f.status.candles)

	body := scrape(t, f.metrics)
	assert.Contains(t, body, `birthday_blows_total{source="mic"} 2`)
	assert.Contains(t, body, "birthday_candles_blown 2")
}

func scrape(t *testing.T, m *metrics.Recorder) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	return rec.Body.String()
}

func TestCelebrationFiresExactlyOnce(t *testing.T) {
	f := newFixture(t, 3)
	require.NoError(t, f.app.StartListening(context.Background()))

	for i := 0; i < 6; i++ {
		f.det.listener.OnBlow(blow.Event{Level: 80, At: time.Now()})
	}

	assert.Equal(t, 1, f.status.celebrating)
	assert.Len(t, f.card.delivered, 1)
	assert.Equal(t, "you", f.card.delivered[0].Recipient)
	assert.Equal(t, [2]int{3, 3}, f.status.candles)

	require.Eventually(t, func() bool { return f.det.stopCount() == 1 }, time.Second, 5*time.Millisecond,
		"celebration releases the microphone")
	assert.False(t, f.app.IsListening())

	// the cake stays out until relit
	require.NoError(t, f.app.StartListening(context.Background()))
	assert.Equal(t, 1, f.det.starts)
}

func TestRelightAllowsAnotherCelebration(t *testing.T) {
	f := newFixture(t, 2)
	f.app.ManualBlow()
	f.app.ManualBlow()
	require.Equal(t, 1, f.status.celebrating)

	f.app.Relight()
	blown, total := f.app.Candles()
	assert.Zero(t, blown)
	assert.Equal(t, 2, total)
	assert.Equal(t, "idle", f.status.last())

	f.app.ManualBlow()
	f.app.ManualBlow()
	assert.Equal(t, 2, f.status.celebrating)
}

func TestCardNotDeliveredWhenDisabled(t *testing.T) {
	f := newFixture(t, 1)
	f.app.Config().Card.CopyToClipboard = false

	f.app.ManualBlow()
	assert.Equal(t, 1, f.status.celebrating)
	assert.Empty(t, f.card.delivered)
}

func TestLevelUpdatesOnlyWhenMeterChanges(t *testing.T) {
	f := newFixture(t, 17)
	require.NoError(t, f.app.StartListening(context.Background()))

	f.det.listener.OnLevel(10)
	f.det.listener.OnLevel(10.2) // still 30%
	f.det.listener.OnLevel(20)
	f.det.listener.OnLevel(200)
	f.det.listener.OnLevel(255) // still 100%

	assert.Equal(t, []int{30, 60, 100}, f.status.levels)
}

func TestDeviceLossFallsBack(t *testing.T) {
	f := newFixture(t, 17)
	require.NoError(t, f.app.StartListening(context.Background()))

	f.det.Stop()
	f.det.listener.OnDeviceLost()

	assert.True(t, f.app.Fallback())
	assert.Equal(t, blow.FailureDeviceUnavailable, f.status.errKind)
}

func TestApplyConfigRetunesDetector(t *testing.T) {
	f := newFixture(t, 17)

	cfg := config.Default()
	cfg.Detector.Threshold = 12
	require.NoError(t, f.app.ApplyConfig(cfg))
	assert.Equal(t, 12.0, f.det.cfg.Threshold)
	assert.Same(t, cfg, f.app.Config())

	bad := config.Default()
	bad.Detector.SubBand = 0
	assert.Error(t, f.app.ApplyConfig(bad))
	assert.Same(t, cfg, f.app.Config())
}

func TestSetDeviceRefusedWhileListening(t *testing.T) {
	f := newFixture(t, 17)
	require.NoError(t, f.app.StartListening(context.Background()))
	assert.Error(t, f.app.SetDevice("USB"))
}

func TestListDevices(t *testing.T) {
	f := newFixture(t, 17)
	devices, err := f.app.ListDevices()
	require.NoError(t, err)
	assert.Len(t, devices, 1)
}

func TestShutdownReleasesMicrophone(t *testing.T) {
	f := newFixture(t, 17)
	require.NoError(t, f.app.StartListening(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, f.app.Shutdown(ctx))
	assert.False(t, f.app.IsListening())
}

func TestShutdownWhileCelebrating(t *testing.T) {
	f := newFixture(t, 1)
	require.NoError(t, f.app.StartListening(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		f.det.listener.OnBlow(blow.Event{Level: 80, At: time.Now()})
	}()
	go func() {
		defer wg.Done()
		assert.NoError(t, f.app.Shutdown(ctx))
	}()
	wg.Wait()

	require.Eventually(t, func() bool { return !f.app.IsListening() }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, f.status.celebrating)

	// a relight after both have finished does not block
	f.app.Relight()
	blown, _ := f.app.Candles()
	assert.Zero(t, blown)
}
