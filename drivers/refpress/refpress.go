/*Package refpress is a reference primitive driver for a press sensor, exercising the driver
contract's non-imaging surface (PrimitiveDriver) against simulated hardware rather than a real
device: a mutex-guarded state struct with a background goroutine standing in for the sensor's own
capture timing.
*/
package refpress

import (
	"sync"
	"time"

	"github.com/openfprint/gofprint/device"
	"github.com/openfprint/gofprint/ferrors"
)

// ID is this driver's registry identity.
const ID = 0x08ef

// captureDelay simulates the time a press sensor takes to settle and capture one placement.
const captureDelay = 30 * time.Millisecond

// Driver implements device.PrimitiveDriver against a simulated press sensor.
type Driver struct{}

func New() *Driver { return &Driver{} }

func (d *Driver) ID() uint16                { return ID }
func (d *Driver) Name() string              { return "refpress" }
func (d *Driver) FullName() string          { return "Reference Press Sensor" }
func (d *Driver) ScanType() device.ScanType { return device.ScanPress }
func (d *Driver) Kind() device.DriverKind   { return device.KindPrimitive }

func (d *Driver) USBIDs() []device.USBID {
	return []device.USBID{{Vendor: 0x08ef, Product: 0x1010}}
}

func (d *Driver) Discover(device.Descriptor) uint32 { return 1 }

// mock is the simulated hardware this driver drives: a lock-guarded enrollment count and a cancel
// channel for whatever capture is currently in flight, in the style of a mock instrument backing a
// real device's getter/setter pairs.
type mock struct {
	mu        sync.Mutex
	enrolled  int
	cancel    chan struct{}
	capturing bool
}

func (m *mock) beginCapture() chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := make(chan struct{})
	m.cancel = c
	m.capturing = true
	return c
}

func (m *mock) endCapture() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.capturing = false
	m.cancel = nil
}

func (m *mock) requestCancel() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.capturing && m.cancel != nil {
		close(m.cancel)
		m.cancel = nil
	}
}

func (m *mock) recordEnroll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enrolled++
}

func (m *mock) isEnrolled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enrolled > 0
}

func (d *Driver) Open(h device.Handle, desc device.Descriptor) {
	h.SetData(&mock{})
	h.OpenComplete(nil)
}

func (d *Driver) Close(h device.Handle) {
	h.CloseComplete()
}

// runCapture simulates one sensor placement: it blocks captureDelay on a background goroutine (or
// returns early if cancelled), then posts the outcome back through the event loop so SessionError
// always runs on the loop goroutine like every other driver callback in this module.
func runCapture(h device.Handle, m *mock, onDone func() error) {
	cancel := m.beginCapture()
	go func() {
		select {
		case <-time.After(captureDelay):
			h.Loop().Post(func() {
				m.endCapture()
				h.SessionError(onDone())
			})
		case <-cancel:
			h.Loop().Post(func() {
				m.endCapture()
				h.SessionError(ferrors.New(ferrors.Cancelled, "capture cancelled"))
			})
		}
	}()
}

func (d *Driver) EnrollStart(h device.Handle) {
	m := h.Data().(*mock)
	runCapture(h, m, func() error {
		m.recordEnroll()
		return nil
	})
}

func (d *Driver) EnrollStop(h device.Handle) {
	h.Data().(*mock).requestCancel()
}

func (d *Driver) VerifyStart(h device.Handle) {
	m := h.Data().(*mock)
	runCapture(h, m, func() error {
		if m.isEnrolled() {
			return ferrors.New(ferrors.Match, "fingerprint matched")
		}
		return ferrors.New(ferrors.NoMatch, "no matching fingerprint")
	})
}

func (d *Driver) VerifyStop(h device.Handle) {
	h.Data().(*mock).requestCancel()
}

func (d *Driver) IdentifyStart(h device.Handle) {
	m := h.Data().(*mock)
	runCapture(h, m, func() error {
		if m.isEnrolled() {
			return ferrors.New(ferrors.Match, "fingerprint matched")
		}
		return ferrors.New(ferrors.NoMatch, "no matching fingerprint")
	})
}

func (d *Driver) IdentifyStop(h device.Handle) {
	h.Data().(*mock).requestCancel()
}
