package device

import (
	"time"

	"github.com/openfprint/gofprint/eventloop"
	"github.com/openfprint/gofprint/ferrors"
	"github.com/openfprint/gofprint/fpimage"
)

// defaultDebounceDelay is how long a requested imaging sub-state change is held before being
// delivered to the driver's ChangeState, so a currently executing SSM can unwind before the
// orchestrator switches direction, when the caller supplies no debounce override (e.g. a zero
// Config.DebounceMillis). Requests arriving within the window replace the pending one
// (last-requested-wins); only the most recent request observed when the timer fires is delivered.
const defaultDebounceDelay = 10 * time.Millisecond

// orchestrator is the image-device orchestrator (C5): it drives HighLevelState and
// ImagingSubState for one imaging Open, in response to caller-initiated start/stop requests and
// the driver's own callbacks.
type orchestrator struct {
	dev    *Open
	driver ImagingDriver

	debounce time.Duration

	subState ImagingSubState

	fingerPresent bool

	pendingTarget  ImagingSubState
	pendingTimer   eventloop.TimerID
	pendingPending bool

	onOperationComplete func(error)
	onImageCaptured     func(*fpimage.Image)
	onAbortScan         func(RetryHint)

	deactivating bool
}

func newOrchestrator(dev *Open, driver ImagingDriver, debounce time.Duration) *orchestrator {
	if debounce <= 0 {
		debounce = defaultDebounceDelay
	}
	return &orchestrator{dev: dev, driver: driver, subState: Inactive, debounce: debounce}
}

// start begins an operation (enroll/verify/identify/capture), moving HighLevelState to the
// corresponding *Starting state and invoking the driver's Activate.
func (o *orchestrator) start(target HighLevelState, onImage func(*fpimage.Image), onAbort func(RetryHint), cb func(error)) error {
	if o.dev.state != Initialized {
		return ferrors.Newf(ferrors.Invalid, "cannot start %v from state %v", target, o.dev.state)
	}
	o.dev.state = target
	o.onOperationComplete = cb
	o.onImageCaptured = onImage
	o.onAbortScan = onAbort
	o.subState = AwaitFingerOn
	o.deactivating = false
	o.driver.Activate(o.dev, AwaitFingerOn)
	return nil
}

// activateComplete is the driver's acknowledgement of Activate.
func (o *orchestrator) activateComplete(err error) {
	if err != nil {
		o.dev.state = StateError
		o.finish(err)
		return
	}
	o.dev.state = o.dev.state.steadyState()
}

// stop requests the current operation end: the target sub-state becomes Inactive, any outstanding
// transfer is left to the driver to cancel via its own Deactivate implementation, and the driver's
// Deactivate is invoked once the debounce settles.
func (o *orchestrator) stop() {
	o.deactivating = true
	o.requestSubState(Inactive)
}

// requestSubState enqueues a sub-state change via the debounce timer. A request arriving before
// the pending timer fires replaces the prior target; only the last one observed wins.
func (o *orchestrator) requestSubState(target ImagingSubState) {
	o.pendingTarget = target
	if o.pendingPending {
		o.dev.loop.TimerCancel(o.pendingTimer)
		o.dev.untrackTimer(o.pendingTimer)
	}
	o.pendingPending = true
	o.pendingTimer = o.dev.loop.TimerAdd(o.debounce, o.deliverSubState)
	o.dev.trackTimer(o.pendingTimer)
}

func (o *orchestrator) deliverSubState() {
	o.pendingPending = false
	o.dev.untrackTimer(o.pendingTimer)
	target := o.pendingTarget

	if target == Inactive {
		o.driver.Deactivate(o.dev)
		return
	}
	o.subState = target
	o.driver.ChangeState(o.dev, target)
}

// deactivateComplete is the driver's acknowledgement that it has gone quiescent after Deactivate.
func (o *orchestrator) deactivateComplete() {
	o.subState = Inactive
	o.dev.state = Initialized
	o.deactivating = false
	o.finish(nil)
}

// fingerOn is the driver's edge-triggered finger-presence report.
func (o *orchestrator) fingerOn(present bool) {
	if present == o.fingerPresent {
		return
	}
	o.fingerPresent = present
	if present {
		o.subState = ImageCapture
	} else {
		o.subState = AwaitFingerOn
	}
}

// imageCaptured hands off one fully-assembled image, always preceded by finger_on(true) and
// always followed eventually by finger_on(false), per the universal invariant.
func (o *orchestrator) imageCaptured(img *fpimage.Image) {
	o.subState = AwaitFingerOff
	if o.onImageCaptured != nil {
		o.onImageCaptured(img)
	}
}

// abortScan reports a per-scan soft failure; the session continues running.
func (o *orchestrator) abortScan(hint RetryHint) {
	if o.onAbortScan != nil {
		o.onAbortScan(hint)
	}
}

// sessionError aborts the current operation with a hard failure.
func (o *orchestrator) sessionError(err error) {
	o.dev.state = o.dev.state.stoppingState()
	o.driver.Deactivate(o.dev)
	o.finish(err)
}

func (o *orchestrator) finish(err error) {
	if o.onOperationComplete != nil {
		cb := o.onOperationComplete
		o.onOperationComplete = nil
		cb(err)
	}
}
