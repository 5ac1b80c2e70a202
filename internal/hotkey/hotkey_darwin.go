//go:build darwin

package hotkey

/*
#cgo LDFLAGS: -framework Carbon
#include <Carbon/Carbon.h>

// Forward declaration for Go callback
extern void goHotkeyCallback(int id, int pressed);

static EventHandlerRef handlerRef = NULL;

// Event handler for hotkeys
static OSStatus hotkeyHandler(EventHandlerCallRef nextHandler, EventRef theEvent, void* userData) {
    EventHotKeyID hkID;
    GetEventParameter(theEvent, kEventParamDirectObject, typeEventHotKeyID, NULL, sizeof(hkID), NULL, &hkID);

    UInt32 eventKind = GetEventKind(theEvent);
    int pressed = (eventKind == kEventHotKeyPressed) ? 1 : 0;

    goHotkeyCallback((int)hkID.id, pressed);

    return noErr;
}

static void installHandler() {
    if (handlerRef != NULL) return;

    EventTypeSpec eventTypes[2];
    eventTypes[0].eventClass = kEventClassKeyboard;
    eventTypes[0].eventKind = kEventHotKeyPressed;
    eventTypes[1].eventClass = kEventClassKeyboard;
    eventTypes[1].eventKind = kEventHotKeyReleased;

    EventHandlerUPP handlerUPP = NewEventHandlerUPP(hotkeyHandler);
    InstallApplicationEventHandler(handlerUPP, 2, eventTypes, NULL, &handlerRef);
}

// Register hotkey with Carbon
static EventHotKeyRef registerHotkey(UInt32 keyCode, UInt32 modifiers, UInt32 id) {
    installHandler();

    EventHotKeyRef hotKeyRef = NULL;
    EventHotKeyID hotKeyID;
    hotKeyID.signature = 'vclp';
    hotKeyID.id = id;

    OSStatus status = RegisterEventHotKey(keyCode, modifiers, hotKeyID, GetApplicationEventTarget(), 0, &hotKeyRef);
    if (status != noErr) return NULL;
    return hotKeyRef;
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

// macKeyCodes maps normalized keys to ANSI virtual key codes.
var macKeyCodes = map[string]uint32{
	"A": 0x00, "S": 0x01, "D": 0x02, "F": 0x03, "H": 0x04, "G": 0x05, "Z": 0x06,
	"X": 0x07, "C": 0x08, "V": 0x09, "B": 0x0B, "Q": 0x0C, "W": 0x0D, "E": 0x0E,
	"R": 0x0F, "Y": 0x10, "T": 0x11, "O": 0x1F, "U": 0x20, "I": 0x22, "P": 0x23,
	"L": 0x25, "J": 0x26, "K": 0x28, "N": 0x2D, "M": 0x2E,
	"1": 0x12, "2": 0x13, "3": 0x14, "4": 0x15, "5": 0x17, "6": 0x16,
	"7": 0x1A, "8": 0x1C, "9": 0x19, "0": 0x1D,
	"Space": 0x31, "Return": 0x24, "Tab": 0x30, "Escape": 0x35,
	"F1": 0x7A, "F2": 0x78, "F3": 0x63, "F4": 0x76, "F5": 0x60, "F6": 0x61,
	"F7": 0x62, "F8": 0x64, "F9": 0x65, "F10": 0x6D, "F11": 0x67, "F12": 0x6F,
}

// carbonModifiers maps to cmdKey=0x100, shiftKey=0x200, optionKey=0x800, controlKey=0x1000.
func carbonModifiers(m Modifier) uint32 {
	var mask uint32
	if m&ModSuper != 0 {
		mask |= 0x100
	}
	if m&ModShift != 0 {
		mask |= 0x200
	}
	if m&ModAlt != 0 {
		mask |= 0x800
	}
	if m&ModCtrl != 0 {
		mask |= 0x1000
	}
	return mask
}

type registration struct {
	id  int
	ref C.EventHotKeyRef
}

type darwinManager struct {
	mu        sync.Mutex
	nextID    int
	regs      map[string]registration
	callbacks map[int]func(bool)
}

var (
	globalMu      sync.Mutex
	globalManager *darwinManager
)

// New creates a new macOS hotkey manager using Carbon
func New() (Manager, error) {
	mgr := &darwinManager{
		regs:      make(map[string]registration),
		callbacks: make(map[int]func(bool)),
	}
	globalMu.Lock()
	globalManager = mgr
	globalMu.Unlock()
	return mgr, nil
}

//export goHotkeyCallback
func goHotkeyCallback(id C.int, pressed C.int) {
	globalMu.Lock()
	m := globalManager
	globalMu.Unlock()
	if m == nil {
		return
	}

	m.mu.Lock()
	cb := m.callbacks[int(id)]
	m.mu.Unlock()
	if cb != nil {
		cb(pressed == 1)
	}
}

func (m *darwinManager) Register(accel string, callback func(pressed bool)) error {
	a, err := ParseAccel(accel)
	if err != nil {
		return err
	}
	keyCode, ok := macKeyCodes[a.Key]
	if !ok {
		return fmt.Errorf("no key code for %q", a.Key)
	}

	m.mu.Lock()
	m.nextID++
	id := m.nextID
	m.callbacks[id] = callback
	m.mu.Unlock()

	ref := C.registerHotkey(C.UInt32(keyCode), C.UInt32(carbonModifiers(a.Mods)), C.UInt32(id))
	if ref == nil {
		m.mu.Lock()
		delete(m.callbacks, id)
		m.mu.Unlock()
		return fmt.Errorf("failed to register hotkey %s", a)
	}

	m.mu.Lock()
	m.regs[accel] = registration{id: id, ref: ref}
	m.mu.Unlock()
	return nil
}

func (m *darwinManager) Unregister(accel string) error {
	m.mu.Lock()
	reg, ok := m.regs[accel]
	if ok {
		delete(m.regs, accel)
		delete(m.callbacks, reg.id)
	}
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("hotkey %q not registered", accel)
	}
	C.unregisterHotkey(reg.ref)
	return nil
}

func (m *darwinManager) Close() error {
	m.mu.Lock()
	accels := make([]string, 0, len(m.regs))
	for a := range m.regs {
		accels = append(accels, a)
	}
	m.mu.Unlock()

	for _, a := range accels {
		m.Unregister(a)
	}

	globalMu.Lock()
	if globalManager == m {
		globalManager = nil
	}
	globalMu.Unlock()
	return nil
}
