// Package console renders the birthday cake state on a terminal for the
// headless listen command.
package console

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"

	"github.com/petems/birthday-tray/internal/blow"
)

const meterWidth = 20

// Renderer is an app.StatusUpdater drawing a single status line. On a
// terminal the line is redrawn in place; otherwise every change is written
// on its own line.
type Renderer struct {
	mu      sync.Mutex
	w       io.Writer
	inPlace bool

	status  string
	kind    blow.FailureKind
	percent int
	blown   int
	total   int
	last    string
}

// New returns a renderer writing to w
func New(w io.Writer) *Renderer {
	inPlace := false
	if f, ok := w.(*os.File); ok {
		inPlace = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return &Renderer{w: w, inPlace: inPlace, status: "idle"}
}

func (r *Renderer) SetIdle() {
	r.update(func() {
		r.status = "idle"
		r.percent = 0
	})
}

func (r *Renderer) SetListening() {
	r.update(func() { r.status = "listening" })
}

func (r *Renderer) SetLevel(percent int) {
	r.update(func() { r.percent = percent })
}

func (r *Renderer) SetCandles(blown, total int) {
	r.update(func() {
		r.blown = blown
		r.total = total
	})
}

func (r *Renderer) SetCelebrating() {
	r.update(func() {
		r.status = "celebrating"
		r.percent = 0
	})
}

func (r *Renderer) SetError(kind blow.FailureKind) {
	r.update(func() {
		r.status = "error"
		r.kind = kind
		r.percent = 0
	})
}

// Finish ends the in-place line so later output starts on a fresh one
func (r *Renderer) Finish() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.inPlace && r.last != "" {
		fmt.Fprintln(r.w)
	}
}

func (r *Renderer) update(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()

	fn()
	line := Line(r.status, r.kind, r.percent, r.blown, r.total)
	if line == r.last {
		return
	}

	if r.inPlace {
		// pad so a shorter line fully covers the previous one
		pad := len([]rune(r.last)) - len([]rune(line))
		if pad < 0 {
			pad = 0
		}
		fmt.Fprintf(r.w, "\r%s%s", line, strings.Repeat(" ", pad))
	} else {
		fmt.Fprintln(r.w, line)
	}
	r.last = line
}

// Line renders one status line
func Line(status string, kind blow.FailureKind, percent, blown, total int) string {
	candles := fmt.Sprintf("%d/%d candles lit", total-blown, total)
	switch status {
	case "listening":
		return fmt.Sprintf("🕯️  %s [%s] %3d%%", candles, Meter(percent, meterWidth), clampPercent(percent))
	case "celebrating":
		return fmt.Sprintf("🎉 All %d candles are out. Happy birthday!", total)
	case "error":
		return fmt.Sprintf("🎂 %s, microphone unavailable (%s): press Enter to blow", candles, kind)
	default:
		return fmt.Sprintf("🎂 %s, press Enter to start listening", candles)
	}
}

// Meter draws a bar of the given width filled in proportion to percent
func Meter(percent, width int) string {
	filled := clampPercent(percent) * width / 100
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

func clampPercent(p int) int {
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	default:
		return p
	}
}
