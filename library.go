/*Package gofprint is a userspace library for hosting USB fingerprint sensor drivers.

A Library owns the driver registry, the single-threaded event loop, the set of open devices, and
the loaded Config. There is no process-wide mutable state; every caller holds its own Library and
passes it explicitly, the way the corpus this module draws its idioms from passes a receiver or an
explicit context rather than relying on globals.
*/
package gofprint

import (
	"sync"
	"time"

	"github.com/openfprint/gofprint/device"
	"github.com/openfprint/gofprint/eventloop"
	"github.com/openfprint/gofprint/ferrors"
	"github.com/openfprint/gofprint/usbxfer"
	"github.com/openfprint/gofprint/util"
)

// Library is the single owner of a registry, an event loop, and the set of currently open
// devices. The zero value is not usable; construct one with New.
type Library struct {
	Config   Config
	Registry *device.Registry
	Loop     *eventloop.Loop

	mu   sync.Mutex
	open map[*device.Open]struct{}
	stop chan struct{}
	wg   sync.WaitGroup
}

// New creates a Library with an empty registry and a fresh event loop. Register drivers with
// l.Registry.Register before calling Run.
func New(cfg Config) *Library {
	return &Library{
		Config:   cfg,
		Registry: device.NewRegistry(),
		Loop:     eventloop.New(),
		open:     make(map[*device.Open]struct{}),
	}
}

// Run drives the Library's event loop on the calling goroutine until Stop is called. Most callers
// instead use RunInBackground, which does this on a dedicated goroutine it owns.
func (l *Library) Run() {
	stop := make(chan struct{})
	l.mu.Lock()
	l.stop = stop
	l.mu.Unlock()
	l.Loop.Run(stop)
}

// RunInBackground starts the event loop on a dedicated goroutine and returns immediately. Stop
// waits for that goroutine to exit.
func (l *Library) RunInBackground() {
	stop := make(chan struct{})
	l.mu.Lock()
	l.stop = stop
	l.mu.Unlock()
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		l.Loop.Run(stop)
	}()
}

// Stop halts the event loop started by Run or RunInBackground, blocking until it has exited if it
// was started with RunInBackground.
func (l *Library) Stop() {
	l.mu.Lock()
	stop := l.stop
	l.mu.Unlock()
	if stop != nil {
		close(stop)
	}
	l.wg.Wait()
}

// Discover enumerates usb against the registry, returning one descriptor per matched driver. seen
// is supplied by the caller (typically from a platform-specific USB enumeration call) rather than
// performed by this package, so Discover itself stays free of any transport dependency.
func (l *Library) Discover(seen []device.USBID) []device.Descriptor {
	return l.Registry.Discover(seen)
}

// OpenDevice claims desc's USB resources via claim and opens it through its driver, tracking it in
// the Library's open-devices set for the lifetime between open-complete and close-complete.
// transfers may be nil for a driver that submits no bulk/interrupt I/O of its own.
func (l *Library) OpenDevice(desc device.Descriptor, claim device.ClaimFunc, transfers *usbxfer.Adapter, cb func(*device.Open, error)) error {
	drv, ok := l.Registry.ByID(desc.DriverID)
	if !ok {
		return ferrors.Newf(ferrors.Invalid, "no driver registered for id %#04x", desc.DriverID)
	}
	debounce := time.Duration(l.Config.DebounceMillis) * time.Millisecond
	device.OpenDevice(desc, drv, l.Loop, transfers, debounce, claim, func(o *device.Open, err error) {
		if err == nil {
			l.mu.Lock()
			l.open[o] = struct{}{}
			l.mu.Unlock()
		}
		cb(o, err)
	})
	return nil
}

// OpenAll attempts OpenDevice for every descriptor in descs, typically the result of a prior
// Discover call. cb fires once per descriptor exactly as it would from an individual OpenDevice
// call. The returned error merges every descriptor's synchronous registry-lookup failure (an
// unregistered driver id); it is nil if every descriptor at least started opening.
func (l *Library) OpenAll(descs []device.Descriptor, claim device.ClaimFunc, transfers *usbxfer.Adapter, cb func(*device.Open, error)) error {
	var errs []error
	for _, desc := range descs {
		if err := l.OpenDevice(desc, claim, transfers, cb); err != nil {
			errs = append(errs, err)
		}
	}
	return util.MergeErrors(errs)
}

// CloseDevice closes o, removing it from the open-devices set once its close callback fires.
func (l *Library) CloseDevice(o *device.Open, cb func()) {
	o.Close(func() {
		l.mu.Lock()
		delete(l.open, o)
		l.mu.Unlock()
		cb()
	})
}

// OpenDevices returns every device currently open under this Library.
func (l *Library) OpenDevices() []*device.Open {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*device.Open, 0, len(l.open))
	for o := range l.open {
		out = append(out, o)
	}
	return out
}
