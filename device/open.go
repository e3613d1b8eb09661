package device

import (
	"log"
	"time"

	"github.com/cenkalti/backoff"

	"github.com/openfprint/gofprint/eventloop"
	"github.com/openfprint/gofprint/ferrors"
	"github.com/openfprint/gofprint/fpimage"
	"github.com/openfprint/gofprint/storedprint"
	"github.com/openfprint/gofprint/usbxfer"
)

// ClaimFunc acquires the USB resources a driver needs (context, device handle, interface claim)
// for desc, returning a closer that releases them. It is supplied by the caller wiring a real
// gousb-backed device so this package never imports gousb directly.
type ClaimFunc func(desc Descriptor) (closer func() error, err error)

// Open is a device between open-complete and close-complete: exclusively owned by its caller,
// carrying the driver contract, current state, and the orchestrator's imaging sub-state.
type Open struct {
	desc   Descriptor
	driver Driver

	loop      *eventloop.Loop
	transfers *usbxfer.Adapter
	claim     ClaimFunc
	release   func() error

	state     HighLevelState
	imaging   *orchestrator
	primitive *primitiveSession

	data interface{}

	pendingTimers map[eventloop.TimerID]struct{}

	onOpenComplete  func(error)
	onCloseComplete func()
}

// DriverID, DevType, and ExpectedDataType implement storedprint.CompatibleDevice.
func (o *Open) DriverID() uint16 { return o.desc.DriverID }
func (o *Open) DevType() uint32  { return o.desc.DevType }
func (o *Open) ExpectedDataType() storedprint.DataType {
	if o.driver.Kind() == KindImaging {
		return storedprint.DataMinutiae
	}
	return storedprint.DataRaw
}

// State returns the device's current high-level state.
func (o *Open) State() HighLevelState { return o.state }

// Driver returns the device's driver.
func (o *Open) Driver() Driver { return o.driver }

// newOpen constructs an Open in the Initial state, not yet claimed.
func newOpen(desc Descriptor, driver Driver, loop *eventloop.Loop, claim ClaimFunc) *Open {
	return &Open{
		desc:          desc,
		driver:        driver,
		loop:          loop,
		claim:         claim,
		state:         Initial,
		pendingTimers: make(map[eventloop.TimerID]struct{}),
	}
}

// OpenDevice claims the device's USB interface with backoff, then invokes the driver's Open. cb
// fires with a nil error on success or a non-nil ferrors.Error (Kind IoError on an exhausted claim
// retry) on failure. A failure at any step releases whatever was already acquired. debounce
// overrides the imaging orchestrator's sub-state debounce window (typically Config.DebounceMillis);
// zero selects the built-in default and is ignored entirely for a non-imaging driver.
func OpenDevice(desc Descriptor, driver Driver, loop *eventloop.Loop, transfers *usbxfer.Adapter, debounce time.Duration, claim ClaimFunc, cb func(*Open, error)) {
	o := newOpen(desc, driver, loop, claim)
	o.transfers = transfers
	o.state = Initializing

	go func() {
		var release func() error
		op := func() error {
			r, err := claim(desc)
			if err != nil {
				return err
			}
			release = r
			return nil
		}
		err := backoff.Retry(op, &backoff.ExponentialBackOff{
			InitialInterval:     25 * time.Millisecond,
			RandomizationFactor: 0,
			Multiplier:          2,
			MaxInterval:         500 * time.Millisecond,
			MaxElapsedTime:      3 * time.Second,
			Clock:               backoff.SystemClock,
		})
		loop.Post(func() {
			if err != nil {
				o.state = StateError
				log.Printf("device: claiming usb interface for driver %#04x failed: %v", desc.DriverID, err)
				cb(nil, ferrors.Wrap(ferrors.IoError, err, "claiming usb interface"))
				return
			}
			o.release = release
			o.onOpenComplete = func(openErr error) {
				if openErr != nil {
					o.release()
					o.state = StateError
					log.Printf("device: open failed for driver %#04x devtype %#08x: %v", desc.DriverID, desc.DevType, openErr)
					cb(nil, openErr)
					return
				}
				o.state = Initialized
				if driver.Kind() == KindImaging {
					o.imaging = newOrchestrator(o, driver.(ImagingDriver), debounce)
				} else {
					o.primitive = newPrimitiveSession(o, driver.(PrimitiveDriver))
				}
				log.Printf("device: opened driver %#04x devtype %#08x", desc.DriverID, desc.DevType)
				cb(o, nil)
			}
			driver.Open(o, desc)
		})
	}()
}

// Close invokes the driver's Close, cancels every outstanding timer owned by this device, releases
// the USB interface, and removes the device from the open-devices set (the caller, typically
// Library, does the removal once cb fires).
func (o *Open) Close(cb func()) {
	o.state = Deinitializing
	o.onCloseComplete = func() {
		for id := range o.pendingTimers {
			o.loop.TimerCancel(id)
		}
		o.pendingTimers = make(map[eventloop.TimerID]struct{})
		if o.release != nil {
			o.release()
		}
		o.state = Deinitialized
		log.Printf("device: closed driver %#04x devtype %#08x", o.desc.DriverID, o.desc.DevType)
		cb()
	}
	o.driver.Close(o)
}

// StartEnroll, StartVerify, StartIdentify, and StartCapture begin the corresponding imaging
// operation. onImage fires for every image assembled during the session; onAbort fires for a
// per-scan soft failure (the session continues); cb fires once when the operation as a whole
// finishes, successfully or not. Returns an error synchronously if called from the wrong state or
// against a non-imaging driver.
func (o *Open) StartEnroll(onImage func(*fpimage.Image), onAbort func(RetryHint), cb func(error)) error {
	return o.startImaging(EnrollStarting, onImage, onAbort, cb)
}

func (o *Open) StartVerify(onImage func(*fpimage.Image), onAbort func(RetryHint), cb func(error)) error {
	return o.startImaging(VerifyStarting, onImage, onAbort, cb)
}

func (o *Open) StartIdentify(onImage func(*fpimage.Image), onAbort func(RetryHint), cb func(error)) error {
	return o.startImaging(IdentifyStarting, onImage, onAbort, cb)
}

func (o *Open) StartCapture(onImage func(*fpimage.Image), onAbort func(RetryHint), cb func(error)) error {
	return o.startImaging(CaptureStarting, onImage, onAbort, cb)
}

func (o *Open) startImaging(target HighLevelState, onImage func(*fpimage.Image), onAbort func(RetryHint), cb func(error)) error {
	if o.imaging == nil {
		return ferrors.New(ferrors.Unsupported, "device does not have an imaging driver")
	}
	return o.imaging.start(target, onImage, onAbort, cb)
}

// StopOperation requests the current imaging operation end. The completion callback passed to the
// matching Start call fires once the driver has deactivated and the device has returned to
// Initialized.
func (o *Open) StopOperation() error {
	if o.imaging == nil {
		return ferrors.New(ferrors.Unsupported, "device does not have an imaging driver")
	}
	o.imaging.stop()
	return nil
}

// BeginEnroll, BeginVerify, and BeginIdentify start the corresponding operation against a
// PrimitiveDriver. cb fires exactly once, when the driver reports a terminal result via
// SessionError: a ferrors.Match/ferrors.NoMatch Kind for a completed verify/identify, or any other
// error for a hard failure or a requested cancellation.
func (o *Open) BeginEnroll(cb func(error)) error {
	return o.startPrimitive(EnrollStarting, func(h Handle) { o.primitive.driver.EnrollStart(h) }, cb)
}

func (o *Open) BeginVerify(cb func(error)) error {
	return o.startPrimitive(VerifyStarting, func(h Handle) { o.primitive.driver.VerifyStart(h) }, cb)
}

func (o *Open) BeginIdentify(cb func(error)) error {
	return o.startPrimitive(IdentifyStarting, func(h Handle) { o.primitive.driver.IdentifyStart(h) }, cb)
}

// EndEnroll, EndVerify, and EndIdentify request the running primitive operation stop. The cb passed
// to the matching Begin call fires once the driver acknowledges via SessionError.
func (o *Open) EndEnroll() error {
	return o.stopPrimitive(func(h Handle) { o.primitive.driver.EnrollStop(h) })
}

func (o *Open) EndVerify() error {
	return o.stopPrimitive(func(h Handle) { o.primitive.driver.VerifyStop(h) })
}

func (o *Open) EndIdentify() error {
	return o.stopPrimitive(func(h Handle) { o.primitive.driver.IdentifyStop(h) })
}

func (o *Open) startPrimitive(target HighLevelState, begin func(Handle), cb func(error)) error {
	if o.primitive == nil {
		return ferrors.New(ferrors.Unsupported, "device does not have a primitive driver")
	}
	return o.primitive.start(target, begin, cb)
}

func (o *Open) stopPrimitive(end func(Handle)) error {
	if o.primitive == nil {
		return ferrors.New(ferrors.Unsupported, "device does not have a primitive driver")
	}
	return o.primitive.stop(end)
}

// --- Handle implementation ---

func (o *Open) FingerOn(present bool) {
	if o.imaging != nil {
		o.imaging.fingerOn(present)
	}
}

func (o *Open) ImageCaptured(img *fpimage.Image) {
	if o.imaging != nil {
		o.imaging.imageCaptured(img)
	}
}

func (o *Open) AbortScan(hint RetryHint) {
	if o.imaging != nil {
		o.imaging.abortScan(hint)
	}
}

func (o *Open) SessionError(err error) {
	switch {
	case o.imaging != nil:
		o.imaging.sessionError(err)
	case o.primitive != nil:
		o.primitive.result(err)
	default:
		o.state = StateError
	}
}

func (o *Open) ActivateComplete(err error) {
	if o.imaging != nil {
		o.imaging.activateComplete(err)
	}
}

func (o *Open) DeactivateComplete() {
	if o.imaging != nil {
		o.imaging.deactivateComplete()
	}
}

func (o *Open) OpenComplete(err error) {
	if o.onOpenComplete != nil {
		cb := o.onOpenComplete
		o.onOpenComplete = nil
		cb(err)
	}
}

func (o *Open) CloseComplete() {
	if o.onCloseComplete != nil {
		cb := o.onCloseComplete
		o.onCloseComplete = nil
		cb()
	}
}

func (o *Open) Loop() *eventloop.Loop { return o.loop }

func (o *Open) Transfers() *usbxfer.Adapter { return o.transfers }

func (o *Open) Data() interface{} { return o.data }

func (o *Open) SetData(v interface{}) { o.data = v }

// trackTimer records a timer as owned by this device so Close can cancel it.
func (o *Open) trackTimer(id eventloop.TimerID) {
	o.pendingTimers[id] = struct{}{}
}

func (o *Open) untrackTimer(id eventloop.TimerID) {
	delete(o.pendingTimers, id)
}
