package device

import "github.com/openfprint/gofprint/ferrors"

// primitiveSession is the alternate driver-contract surface's session wrapper. Unlike the image-
// device orchestrator, a PrimitiveDriver has no sub-state or debounce to manage: one start call
// begins the operation, and exactly one terminal result arrives later through SessionError, whether
// that result is a hard failure, a stop-requested cancellation, or a match/no-match outcome encoded
// as a ferrors.Match/ferrors.NoMatch Kind.
type primitiveSession struct {
	dev    *Open
	driver PrimitiveDriver

	onComplete func(error)
}

func newPrimitiveSession(dev *Open, driver PrimitiveDriver) *primitiveSession {
	return &primitiveSession{dev: dev, driver: driver}
}

// start moves dev.state directly to target's steady state (there is no driver acknowledgement step
// between *Starting and steady for primitive drivers) and invokes begin.
func (p *primitiveSession) start(target HighLevelState, begin func(Handle), cb func(error)) error {
	if p.dev.state != Initialized {
		return ferrors.Newf(ferrors.Invalid, "cannot start %v from state %v", target, p.dev.state)
	}
	p.dev.state = target.steadyState()
	p.onComplete = cb
	begin(p.dev)
	return nil
}

// stop requests the running operation end by invoking end; the driver is expected to call back
// SessionError (typically with a ferrors.Cancelled error) once it has wound down.
func (p *primitiveSession) stop(end func(Handle)) error {
	if p.onComplete == nil {
		return ferrors.New(ferrors.Invalid, "no primitive operation in progress")
	}
	p.dev.state = p.dev.state.stoppingState()
	end(p.dev)
	return nil
}

// result delivers the one terminal SessionError call a primitive operation ends with.
func (p *primitiveSession) result(err error) {
	p.dev.state = Initialized
	if p.onComplete != nil {
		cb := p.onComplete
		p.onComplete = nil
		cb(err)
	}
}
