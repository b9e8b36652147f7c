//go:build darwin

package hotkey

/*
#cgo LDFLAGS: -framework Carbon
#include <Carbon/Carbon.h>

// Forward declaration for Go callback
extern void goHotkeyCallback(int id, int pressed);

// Event handler for hotkeys
static OSStatus hotkeyHandler(EventHandlerCallRef nextHandler, EventRef theEvent, void* userData) {
    EventHotKeyID hkID;
    GetEventParameter(theEvent, kEventParamDirectObject, typeEventHotKeyID, NULL, sizeof(hkID), NULL, &hkID);

    int pressed = (GetEventKind(theEvent) == kEventHotKeyPressed) ? 1 : 0;
    goHotkeyCallback((int)hkID.id, pressed);

    return noErr;
}

static int handlerInstalled = 0;

// Register hotkey with Carbon; returns NULL on failure
static EventHotKeyRef registerHotkey(UInt32 keyCode, UInt32 modifiers, UInt32 id) {
    if (!handlerInstalled) {
        EventTypeSpec eventTypes[2];
        eventTypes[0].eventClass = kEventClassKeyboard;
        eventTypes[0].eventKind = kEventHotKeyPressed;
        eventTypes[1].eventClass = kEventClassKeyboard;
        eventTypes[1].eventKind = kEventHotKeyReleased;

        InstallApplicationEventHandler(NewEventHandlerUPP(hotkeyHandler), 2, eventTypes, NULL, NULL);
        handlerInstalled = 1;
    }

    EventHotKeyID hotKeyID;
    hotKeyID.signature = 'bday';
    hotKeyID.id = id;

    EventHotKeyRef ref = NULL;
    if (RegisterEventHotKey(keyCode, modifiers, hotKeyID, GetApplicationEventTarget(), 0, &ref) != noErr) {
        return NULL;
    }
    return ref;
}

static void unregisterHotkey(EventHotKeyRef ref) {
    UnregisterEventHotKey(ref);
}
*/
import "C"

import (
	"fmt"
	"sync"
)

type registration struct {
	id       int
	ref      C.EventHotKeyRef
	callback func(bool)
}

// Carbon delivers every hotkey to one C handler; it is routed by id from here
var (
	registryMu sync.Mutex
	registry   = map[int]*registration{}
	nextID     = 1
)

type darwinManager struct {
	mu    sync.Mutex
	byKey map[string]*registration
}

// New creates a new macOS hotkey manager using Carbon
func New() (Manager, error) {
	return &darwinManager{byKey: make(map[string]*registration)}, nil
}

//export goHotkeyCallback
func goHotkeyCallback(id C.int, pressed C.int) {
	registryMu.Lock()
	reg := registry[int(id)]
	registryMu.Unlock()

	if reg != nil && reg.callback != nil {
		reg.callback(pressed == 1)
	}
}

func (m *darwinManager) Register(accel string, callback func(pressed bool)) error {
	acc, err := ParseAccelerator(accel)
	if err != nil {
		return err
	}
	code, ok := carbonKeyCodes[acc.Key]
	if !ok {
		return fmt.Errorf("hotkey %q: no key code for %s", accel, acc.Key)
	}

	registryMu.Lock()
	id := nextID
	nextID++
	registryMu.Unlock()

	ref := C.registerHotkey(C.UInt32(code), C.UInt32(carbonModifiers(acc.Mods)), C.UInt32(id))
	if ref == nil {
		return fmt.Errorf("failed to register hotkey %s", acc)
	}

	reg := &registration{id: id, ref: ref, callback: callback}
	registryMu.Lock()
	registry[id] = reg
	registryMu.Unlock()

	m.mu.Lock()
	m.byKey[acc.String()] = reg
	m.mu.Unlock()
	return nil
}

func (m *darwinManager) Unregister(accel string) error {
	acc, err := ParseAccelerator(accel)
	if err != nil {
		return err
	}

	m.mu.Lock()
	reg, ok := m.byKey[acc.String()]
	delete(m.byKey, acc.String())
	m.mu.Unlock()
	if !ok {
		return nil
	}

	C.unregisterHotkey(reg.ref)
	registryMu.Lock()
	delete(registry, reg.id)
	registryMu.Unlock()
	return nil
}

func (m *darwinManager) Close() error {
	m.mu.Lock()
	keys := make([]string, 0, len(m.byKey))
	for k := range m.byKey {
		keys = append(keys, k)
	}
	m.mu.Unlock()

	for _, k := range keys {
		m.Unregister(k)
	}
	return nil
}
