package tray

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
	"sync"

	"github.com/getlantern/systray"
	"github.com/rs/zerolog"

	"github.com/petems/birthday-tray/internal/app"
	"github.com/petems/birthday-tray/internal/blow"
	"github.com/petems/birthday-tray/internal/logging"
)

// meterSegments is the width of the level meter in the tray title
const meterSegments = 5

type UI struct {
	app     *app.App
	version string
	commit  string
	log     zerolog.Logger

	mu       sync.Mutex
	status   string
	blown    int
	total    int
	segments int
	title    string

	// nil until the tray is ready
	setTitle   func(string)
	setTooltip func(string)

	// Menu items
	mStart   *systray.MenuItem
	mStop    *systray.MenuItem
	mBlow    *systray.MenuItem
	mRelight *systray.MenuItem
	mDevices *systray.MenuItem
}

func New(application *app.App, version, commit string, log zerolog.Logger) *UI {
	return &UI{
		app:     application,
		version: version,
		commit:  commit,
		log:     log,
		status:  "idle",
	}
}

// Status update methods for the app to call

func (u *UI) SetIdle() {
	u.update(func() {
		u.status = "idle"
		u.segments = 0
	})
	u.setListeningMenu(false)
}

func (u *UI) SetListening() {
	u.update(func() { u.status = "listening" })
	u.setListeningMenu(true)
}

// SetLevel redraws the title only when the meter gains or loses a segment
func (u *UI) SetLevel(percent int) {
	u.update(func() { u.segments = segmentsFor(percent) })
}

func (u *UI) SetCandles(blown, total int) {
	u.update(func() {
		u.blown = blown
		u.total = total
	})
}

func (u *UI) SetCelebrating() {
	u.update(func() {
		u.status = "celebrating"
		u.segments = 0
	})
	u.setListeningMenu(false)
}

func (u *UI) SetError(kind blow.FailureKind) {
	u.update(func() {
		u.status = "error"
		u.segments = 0
	})
	u.setListeningMenu(false)

	u.mu.Lock()
	tooltip := u.setTooltip
	u.mu.Unlock()
	if tooltip != nil {
		tooltip(errorTooltip(kind))
	}
}

// update mutates the display state and pushes a new title if it changed
func (u *UI) update(fn func()) {
	u.mu.Lock()
	fn()
	title := formatTitle(u.status, u.blown, u.total, u.segments)
	if title == u.title || u.setTitle == nil {
		u.title = title
		u.mu.Unlock()
		return
	}
	u.title = title
	set := u.setTitle
	u.mu.Unlock()

	set(title)
}

func (u *UI) setListeningMenu(listening bool) {
	u.mu.Lock()
	start, stop := u.mStart, u.mStop
	u.mu.Unlock()
	if start == nil || stop == nil {
		return
	}
	if listening {
		start.Disable()
		stop.Enable()
	} else {
		start.Enable()
		stop.Disable()
	}
}

// Run blocks on the platform event loop until Quit or ctx is cancelled
func (u *UI) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		systray.Quit()
	}()
	systray.Run(u.onReady, u.onExit)
	return nil
}

func (u *UI) onReady() {
	systray.SetTooltip("Blow out the candles")

	// Build menu
	mStart := systray.AddMenuItem("Start Listening", "Open the microphone")
	mStop := systray.AddMenuItem("Stop Listening", "Release the microphone")
	mStop.Disable()
	systray.AddSeparator()

	u.mBlow = systray.AddMenuItem("Blow", "Blow out candles without the microphone")
	u.mRelight = systray.AddMenuItem("Relight Candles", "Put the candles back")
	systray.AddSeparator()

	u.mDevices = systray.AddMenuItem("Microphone", "Select audio device")
	u.buildDeviceMenu()

	systray.AddSeparator()
	mLogs := systray.AddMenuItem("Open Logs", "View application logs")
	mAbout := systray.AddMenuItem("About", "About BirthdayTray")
	mQuit := systray.AddMenuItem("Quit", "Exit application")

	u.mu.Lock()
	u.mStart, u.mStop = mStart, mStop
	u.setTitle = systray.SetTitle
	u.setTooltip = systray.SetTooltip
	title := u.title
	if title == "" {
		title = formatTitle(u.status, u.blown, u.total, u.segments)
		u.title = title
	}
	u.mu.Unlock()
	systray.SetTitle(title)

	// Event loop
	go u.handleEvents(mStart, mStop, mLogs, mAbout, mQuit)
}

func (u *UI) handleEvents(mStart, mStop, mLogs, mAbout, mQuit *systray.MenuItem) {
	for {
		select {
		case <-mStart.ClickedCh:
			// The error is already surfaced through SetError
			_ = u.app.StartListening(context.Background())
		case <-mStop.ClickedCh:
			u.app.StopListening()
		case <-u.mBlow.ClickedCh:
			u.app.ManualBlow()
		case <-u.mRelight.ClickedCh:
			u.app.Relight()
		case <-mLogs.ClickedCh:
			u.openLogs()
		case <-mAbout.ClickedCh:
			u.showAbout()
		case <-mQuit.ClickedCh:
			systray.Quit()
			return
		}
	}
}

func (u *UI) buildDeviceMenu() {
	// Get devices from app
	devices, err := u.app.ListDevices()
	if err != nil {
		u.log.Error().Err(err).Msg("Failed to list audio devices")
		return
	}

	selected := u.app.Config().Audio.DeviceID
	deviceItems := make(map[string]*systray.MenuItem)

	for _, dev := range devices {
		item := u.mDevices.AddSubMenuItem(dev.Name, "")
		if dev.ID == selected || (selected == "" && dev.Default) {
			item.Check()
		}
		deviceItems[dev.ID] = item

		go func(deviceID, deviceName string, menuItem *systray.MenuItem) {
			for range menuItem.ClickedCh {
				if err := u.app.SetDevice(deviceID); err != nil {
					u.log.Warn().Err(err).Str("device", deviceName).Msg("Could not change audio device")
					continue
				}
				// Uncheck all other items
				for id, itm := range deviceItems {
					if id != deviceID {
						itm.Uncheck()
					}
				}
				menuItem.Check()
				u.log.Info().Str("device", deviceName).Msg("Changed audio device")
			}
		}(dev.ID, dev.Name, item)
	}
}

func (u *UI) openLogs() {
	path := logging.LogPath()
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", path)
	case "windows":
		cmd = exec.Command("cmd", "/c", "start", "", path)
	default:
		cmd = exec.Command("xdg-open", path)
	}
	if err := cmd.Start(); err != nil {
		u.log.Warn().Err(err).Str("path", path).Msg("Could not open log file")
		return
	}
	go cmd.Wait()
}

func (u *UI) showAbout() {
	about := fmt.Sprintf("BirthdayTray %s (%s)", u.version, u.commit)
	systray.SetTooltip(about)
	u.log.Info().Str("version", u.version).Str("commit", u.commit).Msg("About")
}

func (u *UI) onExit() {
	u.mu.Lock()
	u.setTitle = nil
	u.setTooltip = nil
	u.mStart, u.mStop = nil, nil
	u.mu.Unlock()
}

// errorTooltip tells the user why the microphone is off and what still works
func errorTooltip(kind blow.FailureKind) string {
	switch kind {
	case blow.FailurePermissionDenied:
		return "Microphone access was denied. Use Blow or the hotkey instead."
	case blow.FailureUnsupported:
		return "Microphone input is not supported here. Use Blow or the hotkey instead."
	default:
		return "No microphone available. Use Blow or the hotkey instead."
	}
}

// segmentsFor maps a meter percentage onto the lit meter segments. Any
// audible level lights at least one segment.
func segmentsFor(percent int) int {
	if percent <= 0 {
		return 0
	}
	if percent >= 100 {
		return meterSegments
	}
	return (percent*meterSegments + 99) / 100
}

// meterBar renders lit segments followed by unlit ones
func meterBar(segments int) string {
	return strings.Repeat("▮", segments) + strings.Repeat("▯", meterSegments-segments)
}

// formatTitle builds the tray title from the display state
func formatTitle(status string, blown, total, segments int) string {
	title := fmt.Sprintf("%s %d/%d", emojiForStatus(status), total-blown, total)
	switch status {
	case "listening":
		return title + " " + meterBar(segments)
	case "error":
		return title + " ⚪️"
	default:
		return title
	}
}

// emojiForStatus returns the appropriate status emoji
func emojiForStatus(status string) string {
	switch status {
	case "celebrating":
		return "🎉"
	case "listening":
		return "🕯️"
	default:
		return "🎂"
	}
}
