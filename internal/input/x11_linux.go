// SPDX-License-Identifier: MIT

//go:build linux && cgo

package input

/*
#cgo pkg-config: x11 xi
#include <X11/Xlib.h>
#include <X11/XKBlib.h>
#include <X11/extensions/XInput2.h>
#include <stdio.h>
#include <stdlib.h>
#include <string.h>

enum {
	MS_IN_KEY_PRESS      = 1,
	MS_IN_KEY_RELEASE    = 2,
	MS_IN_BUTTON_PRESS   = 3,
	MS_IN_BUTTON_RELEASE = 4,
	MS_IN_POINTER_MOVE   = 5
};

typedef struct {
	int kind;
	int detail;
	int x, y;
} MSRawInput;

typedef struct {
	Display *dpy;
	Window root;
	int opcode;
} MSInputTap;

static MSInputTap* input_tap_open(const char *display_name) {
	Display *dpy = XOpenDisplay(display_name);
	if (!dpy) return NULL;

	int opcode, event, error;
	if (!XQueryExtension(dpy, "XInputExtension", &opcode, &event, &error)) {
		XCloseDisplay(dpy);
		return NULL;
	}
	int major = 2, minor = 0;
	if (XIQueryVersion(dpy, &major, &minor) != Success) {
		XCloseDisplay(dpy);
		return NULL;
	}

	unsigned char bits[XIMaskLen(XI_LASTEVENT)];
	memset(bits, 0, sizeof(bits));
	XISetMask(bits, XI_RawKeyPress);
	XISetMask(bits, XI_RawKeyRelease);
	XISetMask(bits, XI_RawButtonPress);
	XISetMask(bits, XI_RawButtonRelease);
	XISetMask(bits, XI_RawMotion);

	XIEventMask mask;
	mask.deviceid = XIAllMasterDevices;
	mask.mask_len = sizeof(bits);
	mask.mask = bits;

	Window root = DefaultRootWindow(dpy);
	if (XISelectEvents(dpy, root, &mask, 1) != Success) {
		XCloseDisplay(dpy);
		return NULL;
	}
	XSync(dpy, False);

	MSInputTap *t = (MSInputTap*)calloc(1, sizeof(MSInputTap));
	if (!t) {
		XCloseDisplay(dpy);
		return NULL;
	}
	t->dpy = dpy;
	t->root = root;
	t->opcode = opcode;
	return t;
}

// input_tap_poll drains pending raw events into out. Pointer motion is
// coalesced to a single trailing event carrying the current pointer
// position, since raw motion events only hold per-device deltas.
static int input_tap_poll(MSInputTap *t, MSRawInput *out, int max) {
	int n = 0;
	int saw_motion = 0;

	while (n < max && XPending(t->dpy) > 0) {
		XEvent ev;
		XNextEvent(t->dpy, &ev);
		if (ev.xcookie.type != GenericEvent || ev.xcookie.extension != t->opcode) continue;
		if (!XGetEventData(t->dpy, &ev.xcookie)) continue;

		XIRawEvent *raw = (XIRawEvent*)ev.xcookie.data;
		switch (ev.xcookie.evtype) {
		case XI_RawKeyPress:
			out[n].kind = MS_IN_KEY_PRESS;
			out[n].detail = raw->detail;
			n++;
			break;
		case XI_RawKeyRelease:
			out[n].kind = MS_IN_KEY_RELEASE;
			out[n].detail = raw->detail;
			n++;
			break;
		case XI_RawButtonPress:
			out[n].kind = MS_IN_BUTTON_PRESS;
			out[n].detail = raw->detail;
			n++;
			break;
		case XI_RawButtonRelease:
			out[n].kind = MS_IN_BUTTON_RELEASE;
			out[n].detail = raw->detail;
			n++;
			break;
		case XI_RawMotion:
			saw_motion = 1;
			break;
		}
		XFreeEventData(t->dpy, &ev.xcookie);
	}

	if (saw_motion && n < max) {
		Window r, c;
		int rx = -1, ry = -1, wx, wy;
		unsigned int state;
		XQueryPointer(t->dpy, t->root, &r, &c, &rx, &ry, &wx, &wy, &state);
		out[n].kind = MS_IN_POINTER_MOVE;
		out[n].detail = 0;
		out[n].x = rx;
		out[n].y = ry;
		n++;
	}
	return n;
}

static void input_tap_key_name(MSInputTap *t, int keycode, char *buf, int cap) {
	KeySym ks = XkbKeycodeToKeysym(t->dpy, (KeyCode)keycode, 0, 0);
	const char *name = NULL;
	if (ks != NoSymbol) name = XKeysymToString(ks);
	if (!name) {
		snprintf(buf, cap, "keycode:%d", keycode);
		return;
	}
	strncpy(buf, name, cap - 1);
	buf[cap - 1] = '\0';
}

static void input_tap_close(MSInputTap *t) {
	if (!t) return;
	if (t->dpy) XCloseDisplay(t->dpy);
	free(t);
}
*/
import "C"

import (
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"
	"unsafe"

	"github.com/rs/zerolog"

	"github.com/memscreen/memscreen/internal/types"
)

const pollEvery = 5 * time.Millisecond

// x11Source taps XInput2 raw key, button and motion events. All Xlib
// calls happen on the pump goroutine; Start waits until the tap is
// selected before returning.
type x11Source struct {
	logger zerolog.Logger

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

var _ Source = (*x11Source)(nil)

func newPlatformSource(logger zerolog.Logger) Source {
	return &x11Source{logger: logger}
}

func (s *x11Source) Start(emit Emit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop != nil {
		return nil
	}

	display := os.Getenv("DISPLAY")
	if display == "" {
		return fmt.Errorf("%w: DISPLAY is not set", ErrSourceUnavailable)
	}

	ready := make(chan error, 1)
	stop := make(chan struct{})
	done := make(chan struct{})
	go pumpRawEvents(display, emit, ready, stop, done)
	if err := <-ready; err != nil {
		return err
	}

	s.stop = stop
	s.done = done
	s.logger.Info().Str("display", display).Msg("input tap opened")
	return nil
}

func (s *x11Source) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop == nil {
		return
	}
	close(s.stop)
	<-s.done
	s.stop = nil
	s.done = nil
}

func pumpRawEvents(display string, emit Emit, ready chan<- error, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	name := C.CString(display)
	tap := C.input_tap_open(name)
	C.free(unsafe.Pointer(name))
	if tap == nil {
		ready <- fmt.Errorf("%w: cannot select XInput2 raw events on display %q", ErrSourceUnavailable, display)
		return
	}
	defer C.input_tap_close(tap)
	ready <- nil

	ticker := time.NewTicker(pollEvery)
	defer ticker.Stop()

	buf := make([]C.MSRawInput, 64)
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}
		n := int(C.input_tap_poll(tap, &buf[0], C.int(len(buf))))
		for i := 0; i < n; i++ {
			emitRaw(tap, emit, buf[i])
		}
	}
}

func emitRaw(tap *C.MSInputTap, emit Emit, raw C.MSRawInput) {
	switch raw.kind {
	case C.MS_IN_KEY_PRESS:
		emit(types.EventKeyPress, keyName(tap, int(raw.detail)))
	case C.MS_IN_KEY_RELEASE:
		emit(types.EventKeyRelease, keyName(tap, int(raw.detail)))
	case C.MS_IN_BUTTON_PRESS:
		if dir, ok := scrollDirection(int(raw.detail)); ok {
			emit(types.EventScroll, dir)
			return
		}
		emit(types.EventMouseDown, buttonName(int(raw.detail)))
	case C.MS_IN_BUTTON_RELEASE:
		// Scroll pseudo-buttons report press and release per notch;
		// one event per notch is enough.
		if _, ok := scrollDirection(int(raw.detail)); ok {
			return
		}
		emit(types.EventMouseUp, buttonName(int(raw.detail)))
	case C.MS_IN_POINTER_MOVE:
		emit(types.EventMouseMoveSampled, strconv.Itoa(int(raw.x))+","+strconv.Itoa(int(raw.y)))
	}
}

func keyName(tap *C.MSInputTap, code int) string {
	var buf [64]C.char
	C.input_tap_key_name(tap, C.int(code), &buf[0], C.int(len(buf)))
	return C.GoString(&buf[0])
}

// Buttons 4 through 7 are the X11 scroll pseudo-buttons.
func scrollDirection(button int) (string, bool) {
	switch button {
	case 4:
		return "up", true
	case 5:
		return "down", true
	case 6:
		return "left", true
	case 7:
		return "right", true
	}
	return "", false
}

func buttonName(button int) string {
	switch button {
	case 1:
		return "left"
	case 2:
		return "middle"
	case 3:
		return "right"
	}
	return "button:" + strconv.Itoa(button)
}
