//go:build linux

package hotkey

/*
#cgo pkg-config: x11
#include <X11/Xlib.h>
#include <X11/keysym.h>
#include <stdlib.h>

Display* displayPtr = NULL;

// grabKey grabs keysymName with modifiers on the root window and returns
// the keycode, or 0 on failure.
int grabKey(const char* keysymName, unsigned int modifiers) {
    if (displayPtr == NULL) {
        displayPtr = XOpenDisplay(NULL);
    }
    if (displayPtr == NULL) return 0;

    KeySym sym = XStringToKeysym(keysymName);
    if (sym == NoSymbol) return 0;
    KeyCode code = XKeysymToKeycode(displayPtr, sym);
    if (code == 0) return 0;

    Window root = DefaultRootWindow(displayPtr);
    // also grab with CapsLock and NumLock held so the shortcut works either way
    unsigned int extras[] = {0, LockMask, Mod2Mask, LockMask | Mod2Mask};
    for (int i = 0; i < 4; i++) {
        XGrabKey(displayPtr, code, modifiers | extras[i], root, False, GrabModeAsync, GrabModeAsync);
    }
    XSelectInput(displayPtr, root, KeyPressMask | KeyReleaseMask);
    XSync(displayPtr, False);

    return code;
}

void ungrabKey(int keycode, unsigned int modifiers) {
    if (displayPtr == NULL) return;
    Window root = DefaultRootWindow(displayPtr);
    unsigned int extras[] = {0, LockMask, Mod2Mask, LockMask | Mod2Mask};
    for (int i = 0; i < 4; i++) {
        XUngrabKey(displayPtr, keycode, modifiers | extras[i], root);
    }
    XSync(displayPtr, False);
}

int checkEvent(int* keycode, unsigned int* state, int* pressed) {
    if (displayPtr == NULL) return 0;

    XEvent event;
    if (XPending(displayPtr) > 0) {
        XNextEvent(displayPtr, &event);
        if (event.type == KeyPress || event.type == KeyRelease) {
            *keycode = event.xkey.keycode;
            *state = event.xkey.state & (ShiftMask | ControlMask | Mod1Mask | Mod4Mask);
            *pressed = (event.type == KeyPress) ? 1 : 0;
            return 1;
        }
    }
    return 0;
}

void closeDisplay() {
    if (displayPtr != NULL) {
        XCloseDisplay(displayPtr);
        displayPtr = NULL;
    }
}
*/
import "C"

import (
	"fmt"
	"sync"
	"time"
	"unsafe"
)

type grab struct {
	keycode int
	mask    int
}

type linuxManager struct {
	// Xlib is not thread safe; every display call happens under mu
	mu        sync.Mutex
	grabs     map[string]grab
	callbacks map[grab]func(bool)
	stop      chan struct{}
	done      chan struct{}
}

// New creates a new Linux hotkey manager using X11
func New() (Manager, error) {
	mgr := &linuxManager{
		grabs:     make(map[string]grab),
		callbacks: make(map[grab]func(bool)),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}

	go mgr.eventLoop()

	return mgr, nil
}

func (m *linuxManager) Register(accel string, callback func(pressed bool)) error {
	acc, err := ParseAccelerator(accel)
	if err != nil {
		return err
	}

	name := C.CString(x11Keysym(acc.Key))
	defer C.free(unsafe.Pointer(name))
	mask := x11Mask(acc.Mods)

	m.mu.Lock()
	defer m.mu.Unlock()

	keycode := int(C.grabKey(name, C.uint(mask)))
	if keycode == 0 {
		return fmt.Errorf("failed to grab %s (is an X display available?)", acc)
	}

	g := grab{keycode: keycode, mask: mask}
	m.grabs[acc.String()] = g
	m.callbacks[g] = callback
	return nil
}

func (m *linuxManager) eventLoop() {
	defer close(m.done)

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			var keycode, pressed C.int
			var state C.uint

			m.mu.Lock()
			got := C.checkEvent(&keycode, &state, &pressed) != 0
			cb := m.callbacks[grab{keycode: int(keycode), mask: int(state)}]
			m.mu.Unlock()

			if got && cb != nil {
				cb(pressed == 1)
			}
		}
	}
}

func (m *linuxManager) Unregister(accel string) error {
	acc, err := ParseAccelerator(accel)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	g, ok := m.grabs[acc.String()]
	if !ok {
		return nil
	}
	C.ungrabKey(C.int(g.keycode), C.uint(g.mask))
	delete(m.grabs, acc.String())
	delete(m.callbacks, g)
	return nil
}

func (m *linuxManager) Close() error {
	close(m.stop)
	<-m.done

	m.mu.Lock()
	defer m.mu.Unlock()
	C.closeDisplay()
	return nil
}
