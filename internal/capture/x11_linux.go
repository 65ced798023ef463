// SPDX-License-Identifier: MIT

//go:build linux && cgo

package capture

/*
#cgo pkg-config: x11 xext xfixes xrandr
#include <X11/Xlib.h>
#include <X11/Xutil.h>
#include <X11/Xatom.h>
#include <X11/extensions/XShm.h>
#include <X11/extensions/Xfixes.h>
#include <X11/extensions/Xrandr.h>
#include <sys/ipc.h>
#include <sys/shm.h>
#include <stdlib.h>
#include <string.h>

// Protocol errors (BadWindow when a window vanishes mid-call) must not
// abort the process, which is Xlib's default.
static int memscreen_ignore_xerror(Display *d, XErrorEvent *e) { return 0; }

static void x11_install_error_handler() {
	XSetErrorHandler(memscreen_ignore_xerror);
}

// ---------------------------------------------------------------------------
// XShm region grabber
// ---------------------------------------------------------------------------

typedef struct {
	Display *display;
	Window root;
	XShmSegmentInfo shminfo;
	XImage *image;
	int x, y, width, height; // capture region in root coordinates
} X11Grabber;

static X11Grabber* x11_grabber_init(const char *display_name, int x, int y, int w, int h) {
	X11Grabber *g = (X11Grabber*)calloc(1, sizeof(X11Grabber));
	if (!g) return NULL;

	g->display = XOpenDisplay(display_name);
	if (!g->display) { free(g); return NULL; }

	int screen = DefaultScreen(g->display);
	g->root = RootWindow(g->display, screen);
	g->x = x;
	g->y = y;
	g->width = w;
	g->height = h;

	g->image = XShmCreateImage(g->display,
		DefaultVisual(g->display, screen),
		DefaultDepth(g->display, screen),
		ZPixmap, NULL, &g->shminfo, w, h);
	if (!g->image) {
		XCloseDisplay(g->display);
		free(g);
		return NULL;
	}

	g->shminfo.shmid = shmget(IPC_PRIVATE,
		g->image->bytes_per_line * g->image->height,
		IPC_CREAT | 0600);
	if (g->shminfo.shmid < 0) {
		XDestroyImage(g->image);
		XCloseDisplay(g->display);
		free(g);
		return NULL;
	}

	g->shminfo.shmaddr = g->image->data = (char*)shmat(g->shminfo.shmid, NULL, 0);
	g->shminfo.readOnly = False;

	if (!XShmAttach(g->display, &g->shminfo)) {
		shmdt(g->shminfo.shmaddr);
		shmctl(g->shminfo.shmid, IPC_RMID, NULL);
		XDestroyImage(g->image);
		XCloseDisplay(g->display);
		free(g);
		return NULL;
	}

	// Mark for removal so the segment is reclaimed when we detach.
	shmctl(g->shminfo.shmid, IPC_RMID, NULL);

	return g;
}

static int x11_grabber_grab(X11Grabber *g) {
	if (!XShmGetImage(g->display, g->root, g->image, g->x, g->y, AllPlanes)) {
		return -1;
	}
	XSync(g->display, False);
	return 0;
}

static void x11_grabber_composite_cursor(X11Grabber *g) {
	XFixesCursorImage *cursor = XFixesGetCursorImage(g->display);
	if (!cursor) return;

	int cx = cursor->x - cursor->xhot - g->x;
	int cy = cursor->y - cursor->yhot - g->y;

	for (int y = 0; y < (int)cursor->height; y++) {
		int dy = cy + y;
		if (dy < 0 || dy >= g->height) continue;
		for (int x = 0; x < (int)cursor->width; x++) {
			int dx = cx + x;
			if (dx < 0 || dx >= g->width) continue;

			// Cursor pixels are premultiplied ARGB.
			unsigned long pixel = cursor->pixels[y * cursor->width + x];
			unsigned char a = (pixel >> 24) & 0xFF;
			if (a == 0) continue;

			unsigned char cr = (pixel >> 16) & 0xFF;
			unsigned char cg = (pixel >> 8) & 0xFF;
			unsigned char cb = (pixel >> 0) & 0xFF;

			int offset = dy * g->image->bytes_per_line + dx * 4;
			unsigned char *dst = (unsigned char*)g->image->data + offset;

			if (a == 255) {
				dst[0] = cb;
				dst[1] = cg;
				dst[2] = cr;
			} else {
				dst[0] = cb + dst[0] * (255 - a) / 255;
				dst[1] = cg + dst[1] * (255 - a) / 255;
				dst[2] = cr + dst[2] * (255 - a) / 255;
			}
		}
	}
	XFree(cursor);
}

static void x11_grabber_root_size(X11Grabber *g, int *w, int *h) {
	XWindowAttributes attr;
	if (XGetWindowAttributes(g->display, g->root, &attr)) {
		*w = attr.width;
		*h = attr.height;
	} else {
		*w = 0;
		*h = 0;
	}
}

static int x11_grabber_window_alive(X11Grabber *g, unsigned long id) {
	XWindowAttributes attr;
	return XGetWindowAttributes(g->display, (Window)id, &attr) ? 1 : 0;
}

static void x11_grabber_destroy(X11Grabber *g) {
	if (!g) return;
	XShmDetach(g->display, &g->shminfo);
	shmdt(g->shminfo.shmaddr);
	XDestroyImage(g->image);
	XCloseDisplay(g->display);
	free(g);
}

// ---------------------------------------------------------------------------
// Enumeration
// ---------------------------------------------------------------------------

static int x11_root_size(const char *display_name, int *w, int *h) {
	Display *d = XOpenDisplay(display_name);
	if (!d) return -1;
	int screen = DefaultScreen(d);
	*w = DisplayWidth(d, screen);
	*h = DisplayHeight(d, screen);
	XCloseDisplay(d);
	return 0;
}

typedef struct {
	char name[128];
	int x, y, width, height;
	int primary;
} X11Monitor;

// Caller frees *out.
static int x11_list_monitors(const char *display_name, X11Monitor **out) {
	*out = NULL;
	Display *d = XOpenDisplay(display_name);
	if (!d) return -1;
	Window root = DefaultRootWindow(d);

	int n = 0;
	XRRMonitorInfo *mons = XRRGetMonitors(d, root, True, &n);
	if (!mons || n <= 0) {
		// No RandR monitor info; expose the whole root as one display.
		if (mons) XRRFreeMonitors(mons);
		X11Monitor *res = (X11Monitor*)calloc(1, sizeof(X11Monitor));
		if (!res) { XCloseDisplay(d); return -1; }
		int screen = DefaultScreen(d);
		strncpy(res[0].name, "screen-0", sizeof(res[0].name)-1);
		res[0].width = DisplayWidth(d, screen);
		res[0].height = DisplayHeight(d, screen);
		res[0].primary = 1;
		XCloseDisplay(d);
		*out = res;
		return 1;
	}

	X11Monitor *res = (X11Monitor*)calloc(n, sizeof(X11Monitor));
	if (!res) { XRRFreeMonitors(mons); XCloseDisplay(d); return -1; }
	for (int i = 0; i < n; i++) {
		char *name = XGetAtomName(d, mons[i].name);
		if (name) {
			strncpy(res[i].name, name, sizeof(res[i].name)-1);
			XFree(name);
		}
		res[i].x = mons[i].x;
		res[i].y = mons[i].y;
		res[i].width = mons[i].width;
		res[i].height = mons[i].height;
		res[i].primary = mons[i].primary ? 1 : 0;
	}
	XRRFreeMonitors(mons);
	XCloseDisplay(d);
	*out = res;
	return n;
}

static void x11_fill_title(Display *d, Window w, char *buf, size_t cap) {
	Atom netName = XInternAtom(d, "_NET_WM_NAME", False);
	Atom utf8 = XInternAtom(d, "UTF8_STRING", False);

	Atom actual_type;
	int actual_format;
	unsigned long n = 0, after = 0;
	unsigned char *data = NULL;
	if (XGetWindowProperty(d, w, netName, 0, 1024, False, utf8,
			&actual_type, &actual_format, &n, &after, &data) == Success && data) {
		strncpy(buf, (char*)data, cap-1);
		XFree(data);
		return;
	}

	char *wmName = NULL;
	if (XFetchName(d, w, &wmName) && wmName) {
		strncpy(buf, wmName, cap-1);
		XFree(wmName);
	}
}

static void x11_fill_class(Display *d, Window w, char *buf, size_t cap) {
	XClassHint hint;
	memset(&hint, 0, sizeof(hint));
	if (XGetClassHint(d, w, &hint)) {
		if (hint.res_class) strncpy(buf, hint.res_class, cap-1);
		if (hint.res_name) XFree(hint.res_name);
		if (hint.res_class) XFree(hint.res_class);
	}
}

typedef struct {
	unsigned long id;
	int x, y, width, height;
	char title[256];
	char app[128];
} X11WindowInfo;

// Visible top-level clients via EWMH _NET_CLIENT_LIST. Caller frees *out.
// Returns 0 with no list when the window manager lacks EWMH support.
static int x11_list_windows(const char *display_name, X11WindowInfo **out) {
	*out = NULL;
	Display *d = XOpenDisplay(display_name);
	if (!d) return -1;
	Window root = DefaultRootWindow(d);

	Atom prop = XInternAtom(d, "_NET_CLIENT_LIST", True);
	if (prop == None) { XCloseDisplay(d); return 0; }

	Atom actual_type;
	int actual_format;
	unsigned long n = 0, after = 0;
	unsigned char *data = NULL;
	if (XGetWindowProperty(d, root, prop, 0, 4096, False, XA_WINDOW,
			&actual_type, &actual_format, &n, &after, &data) != Success || !data) {
		XCloseDisplay(d);
		return 0;
	}

	Window *wins = (Window*)data;
	X11WindowInfo *res = (X11WindowInfo*)calloc(n > 0 ? n : 1, sizeof(X11WindowInfo));
	if (!res) { XFree(data); XCloseDisplay(d); return -1; }

	int count = 0;
	for (unsigned long i = 0; i < n; i++) {
		XWindowAttributes attr;
		if (!XGetWindowAttributes(d, wins[i], &attr)) continue;
		if (attr.map_state != IsViewable) continue;

		int rx = 0, ry = 0;
		Window child;
		XTranslateCoordinates(d, wins[i], root, 0, 0, &rx, &ry, &child);

		res[count].id = (unsigned long)wins[i];
		res[count].x = rx;
		res[count].y = ry;
		res[count].width = attr.width;
		res[count].height = attr.height;
		x11_fill_title(d, wins[i], res[count].title, sizeof(res[count].title));
		x11_fill_class(d, wins[i], res[count].app, sizeof(res[count].app));
		count++;
	}

	XFree(data);
	XCloseDisplay(d);
	*out = res;
	return count;
}
*/
import "C"
import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
	"unsafe"

	"github.com/rs/zerolog"
)

type x11Backend struct {
	displayName string
	logger      zerolog.Logger
}

var _ Backend = (*x11Backend)(nil)

func newPlatformBackend(logger zerolog.Logger) (Backend, error) {
	name := os.Getenv("DISPLAY")
	if name == "" {
		return nil, fmt.Errorf("%w: DISPLAY is not set", ErrBackendUnavailable)
	}
	C.x11_install_error_handler()

	cName := C.CString(name)
	defer C.free(unsafe.Pointer(cName))
	var w, h C.int
	if C.x11_root_size(cName, &w, &h) != 0 {
		return nil, fmt.Errorf("%w: cannot open display %s", ErrBackendUnavailable, name)
	}

	logger.Info().
		Str("display", name).
		Int("width", int(w)).
		Int("height", int(h)).
		Msg("x11 capture backend ready")
	return &x11Backend{displayName: name, logger: logger}, nil
}

// x11Monitor keeps the root-space origin that the public Display type does
// not carry; region targets need it.
type x11Monitor struct {
	disp Display
	x, y int
}

func (b *x11Backend) listMonitors() ([]x11Monitor, error) {
	cName := C.CString(b.displayName)
	defer C.free(unsafe.Pointer(cName))

	var mons *C.X11Monitor
	n := int(C.x11_list_monitors(cName, &mons))
	if n < 0 {
		return nil, fmt.Errorf("%w: cannot open display %s", ErrBackendUnavailable, b.displayName)
	}
	defer C.free(unsafe.Pointer(mons))

	out := make([]x11Monitor, 0, n)
	for i, m := range unsafe.Slice(mons, n) {
		out = append(out, x11Monitor{
			disp: Display{
				Index:     i,
				DisplayID: C.GoString(&m.name[0]),
				Name:      C.GoString(&m.name[0]),
				Width:     int(m.width),
				Height:    int(m.height),
				IsPrimary: m.primary != 0,
			},
			x: int(m.x),
			y: int(m.y),
		})
	}
	return out, nil
}

func (b *x11Backend) ListDisplays() ([]Display, error) {
	mons, err := b.listMonitors()
	if err != nil {
		return nil, err
	}
	out := make([]Display, len(mons))
	for i, m := range mons {
		out[i] = m.disp
	}
	return out, nil
}

type x11WindowRef struct {
	win Window
	id  C.ulong
}

func (b *x11Backend) listWindowRefs() ([]x11WindowRef, error) {
	cName := C.CString(b.displayName)
	defer C.free(unsafe.Pointer(cName))

	var wins *C.X11WindowInfo
	n := int(C.x11_list_windows(cName, &wins))
	if n < 0 {
		return nil, fmt.Errorf("%w: cannot open display %s", ErrBackendUnavailable, b.displayName)
	}
	defer C.free(unsafe.Pointer(wins))

	out := make([]x11WindowRef, 0, n)
	for _, w := range unsafe.Slice(wins, n) {
		title := C.GoString(&w.title[0])
		if title == "" {
			continue
		}
		out = append(out, x11WindowRef{
			win: Window{
				Title:   title,
				AppName: C.GoString(&w.app[0]),
				Bounds:  Rect{X: int(w.x), Y: int(w.y), Width: int(w.width), Height: int(w.height)},
			},
			id: w.id,
		})
	}
	return out, nil
}

func (b *x11Backend) ListWindows() ([]Window, error) {
	refs, err := b.listWindowRefs()
	if err != nil {
		return nil, err
	}
	out := make([]Window, len(refs))
	for i, r := range refs {
		out[i] = r.win
	}
	return out, nil
}

func (b *x11Backend) Open(target Target, interval time.Duration) (FrameStream, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("%w: interval must be positive", ErrInvalidTarget)
	}
	region, windowID, err := b.resolve(target)
	if err != nil {
		return nil, err
	}

	cName := C.CString(b.displayName)
	defer C.free(unsafe.Pointer(cName))
	g := C.x11_grabber_init(cName, C.int(region.X), C.int(region.Y), C.int(region.Width), C.int(region.Height))
	if g == nil {
		return nil, fmt.Errorf("%w: XShm init failed on %s", ErrBackendUnavailable, b.displayName)
	}
	if int(g.image.bits_per_pixel) != 32 {
		bpp := int(g.image.bits_per_pixel)
		C.x11_grabber_destroy(g)
		return nil, fmt.Errorf("%w: unsupported X visual (%d bpp)", ErrBackendUnavailable, bpp)
	}

	b.logger.Info().
		Stringer("target", target).
		Int("width", region.Width).
		Int("height", region.Height).
		Msg("x11 stream opened")
	grab := &x11Grabber{g: g, region: region, windowID: windowID}
	return newStream(grab, region.Width, region.Height, interval, target.modeLabel(), b.logger), nil
}

// resolve maps a target onto a root-space region, plus the window id to
// watch for window targets.
func (b *x11Backend) resolve(target Target) (Rect, C.ulong, error) {
	switch target.kind {
	case targetFull, targetDisplay, targetRegion:
		mons, err := b.listMonitors()
		if err != nil {
			return Rect{}, 0, err
		}
		if len(mons) == 0 {
			return Rect{}, 0, ErrBackendUnavailable
		}

		var mon *x11Monitor
		if target.kind == targetFull || target.displayID == "" {
			mon = &mons[0]
			for i := range mons {
				if mons[i].disp.IsPrimary {
					mon = &mons[i]
					break
				}
			}
		} else {
			for i := range mons {
				if mons[i].disp.DisplayID == target.displayID {
					mon = &mons[i]
					break
				}
			}
			if mon == nil {
				return Rect{}, 0, fmt.Errorf("%w: display %q", ErrTargetNotFound, target.displayID)
			}
		}

		if target.kind == targetRegion {
			region, err := clampRegion(target.region, mon.disp.Width, mon.disp.Height)
			if err != nil {
				return Rect{}, 0, err
			}
			region.X += mon.x
			region.Y += mon.y
			return region, 0, nil
		}
		return Rect{X: mon.x, Y: mon.y, Width: mon.disp.Width, Height: mon.disp.Height}, 0, nil

	case targetWindow:
		refs, err := b.listWindowRefs()
		if err != nil {
			return Rect{}, 0, err
		}
		ref, ok := matchWindow(refs, target.title)
		if !ok {
			return Rect{}, 0, fmt.Errorf("%w: window %q", ErrTargetNotFound, target.title)
		}

		cName := C.CString(b.displayName)
		defer C.free(unsafe.Pointer(cName))
		var rootW, rootH C.int
		if C.x11_root_size(cName, &rootW, &rootH) != 0 {
			return Rect{}, 0, ErrBackendUnavailable
		}
		region, err := clampRegion(ref.win.Bounds, int(rootW), int(rootH))
		if err != nil {
			return Rect{}, 0, err
		}
		return region, ref.id, nil

	default:
		return Rect{}, 0, ErrInvalidTarget
	}
}

// matchWindow prefers exact titles, then a case-insensitive substring.
func matchWindow(refs []x11WindowRef, title string) (x11WindowRef, bool) {
	for _, r := range refs {
		if r.win.Title == title {
			return r, true
		}
	}
	needle := strings.ToLower(title)
	for _, r := range refs {
		if strings.Contains(strings.ToLower(r.win.Title), needle) {
			return r, true
		}
	}
	return x11WindowRef{}, false
}

type x11Grabber struct {
	g        *C.X11Grabber
	region   Rect
	windowID C.ulong
}

func (x *x11Grabber) grab() (*Frame, error) {
	if x.windowID != 0 && C.x11_grabber_window_alive(x.g, x.windowID) == 0 {
		return nil, errTargetGone
	}
	var rootW, rootH C.int
	C.x11_grabber_root_size(x.g, &rootW, &rootH)
	if int(rootW) > 0 && (x.region.X+x.region.Width > int(rootW) || x.region.Y+x.region.Height > int(rootH)) {
		// Resolution changed under us and the region fell off the root.
		return nil, errTargetGone
	}

	if C.x11_grabber_grab(x.g) != 0 {
		return nil, errors.New("XShmGetImage failed")
	}
	C.x11_grabber_composite_cursor(x.g)

	w, h := x.region.Width, x.region.Height
	stride := int(x.g.image.bytes_per_line)
	src := unsafe.Slice((*byte)(unsafe.Pointer(x.g.image.data)), stride*h)

	// The SHM image is BGRX; frames are RGBA.
	pixels := make([]byte, w*h*4)
	for row := 0; row < h; row++ {
		s := row * stride
		d := row * w * 4
		for col := 0; col < w; col++ {
			pixels[d] = src[s+2]
			pixels[d+1] = src[s+1]
			pixels[d+2] = src[s]
			pixels[d+3] = 0xFF
			s += 4
			d += 4
		}
	}
	return &Frame{Pixels: pixels, Width: w, Height: h}, nil
}

func (x *x11Grabber) close() error {
	C.x11_grabber_destroy(x.g)
	x.g = nil
	return nil
}
