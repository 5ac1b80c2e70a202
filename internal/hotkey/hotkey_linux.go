//go:build linux

package hotkey

/*
#cgo pkg-config: x11
#include <X11/Xlib.h>
#include <X11/keysym.h>
#include <stdlib.h>

Display* displayPtr = NULL;

static int openDisplay() {
    if (displayPtr == NULL) {
        displayPtr = XOpenDisplay(NULL);
    }
    return displayPtr != NULL;
}

static int keycodeFor(const char* name) {
    if (!openDisplay()) return 0;
    KeySym sym = XStringToKeysym(name);
    if (sym == NoSymbol) return 0;
    return XKeysymToKeycode(displayPtr, sym);
}

// Grab with and without CapsLock/NumLock so the hotkey works regardless of lock state.
static int grabKey(int keycode, unsigned int modifiers) {
    if (!openDisplay()) return 0;

    Window root = DefaultRootWindow(displayPtr);
    unsigned int locks[4] = {0, LockMask, Mod2Mask, LockMask | Mod2Mask};
    for (int i = 0; i < 4; i++) {
        XGrabKey(displayPtr, keycode, modifiers | locks[i], root, False, GrabModeAsync, GrabModeAsync);
    }
    XSelectInput(displayPtr, root, KeyPressMask | KeyReleaseMask);
    XSync(displayPtr, False);

    return 1;
}

static void ungrabKey(int keycode, unsigned int modifiers) {
    if (displayPtr == NULL) return;

    Window root = DefaultRootWindow(displayPtr);
    unsigned int locks[4] = {0, LockMask, Mod2Mask, LockMask | Mod2Mask};
    for (int i = 0; i < 4; i++) {
        XUngrabKey(displayPtr, keycode, modifiers | locks[i], root);
    }
    XSync(displayPtr, False);
}

static int checkEvent(int* keycode, int* pressed) {
    if (displayPtr == NULL) return 0;

    XEvent event;
    if (XPending(displayPtr) > 0) {
        XNextEvent(displayPtr, &event);
        if (event.type == KeyPress || event.type == KeyRelease) {
            *keycode = event.xkey.keycode;
            *pressed = (event.type == KeyPress) ? 1 : 0;
            return 1;
        }
    }
    return 0;
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
	keycode   int
	modifiers uint
}

type linuxManager struct {
	mu        sync.Mutex
	grabs     map[string]grab
	callbacks map[int]func(bool)
	stop      chan struct{}
	once      sync.Once
}

// New creates a new Linux hotkey manager using X11
func New() (Manager, error) {
	if C.openDisplay() == 0 {
		return nil, fmt.Errorf("open X display: %w", ErrUnsupported)
	}

	mgr := &linuxManager{
		grabs:     make(map[string]grab),
		callbacks: make(map[int]func(bool)),
		stop:      make(chan struct{}),
	}

	go mgr.eventLoop()

	return mgr, nil
}

// x11Modifiers maps modifiers to X11 masks: ShiftMask, ControlMask, Mod1Mask (Alt), Mod4Mask (Super).
func x11Modifiers(m Modifier) uint {
	var mask uint
	if m&ModShift != 0 {
		mask |= 1
	}
	if m&ModCtrl != 0 {
		mask |= 4
	}
	if m&ModAlt != 0 {
		mask |= 8
	}
	if m&ModSuper != 0 {
		mask |= 64
	}
	return mask
}

// x11KeysymName returns the keysym name X expects for a normalized key.
func x11KeysymName(key string) string {
	if len(key) == 1 && key[0] >= 'A' && key[0] <= 'Z' {
		return string(key[0] + 'a' - 'A')
	}
	if key == "Space" {
		return "space"
	}
	return key
}

func (m *linuxManager) Register(accel string, callback func(pressed bool)) error {
	a, err := ParseAccel(accel)
	if err != nil {
		return err
	}

	name := C.CString(x11KeysymName(a.Key))
	defer C.free(unsafe.Pointer(name))

	keycode := int(C.keycodeFor(name))
	if keycode == 0 {
		return fmt.Errorf("no keycode for %q", a.Key)
	}
	mods := x11Modifiers(a.Mods)

	if C.grabKey(C.int(keycode), C.uint(mods)) == 0 {
		return fmt.Errorf("failed to grab key %s", a)
	}

	m.mu.Lock()
	m.grabs[accel] = grab{keycode: keycode, modifiers: mods}
	m.callbacks[keycode] = callback
	m.mu.Unlock()
	return nil
}

func (m *linuxManager) eventLoop() {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			var keycode, pressed C.int
			if C.checkEvent(&keycode, &pressed) != 0 {
				m.mu.Lock()
				cb, ok := m.callbacks[int(keycode)]
				m.mu.Unlock()
				if ok {
					cb(pressed == 1)
				}
			}
		}
	}
}

func (m *linuxManager) Unregister(accel string) error {
	m.mu.Lock()
	g, ok := m.grabs[accel]
	if ok {
		delete(m.grabs, accel)
		delete(m.callbacks, g.keycode)
	}
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("hotkey %q not registered", accel)
	}
	C.ungrabKey(C.int(g.keycode), C.uint(g.modifiers))
	return nil
}

func (m *linuxManager) Close() error {
	m.once.Do(func() { close(m.stop) })
	return nil
}
