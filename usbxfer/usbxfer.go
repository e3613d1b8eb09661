/*Package usbxfer implements the USB transfer adapter (C2): a thin wrapper that submits reads and
writes on an endpoint pair and routes completions back through the library's event loop to an SSM
callback. Every transfer submitted through SubmitRead or SubmitWrite is recorded as Kind Bulk;
there is no separate submission path for interrupt or control transfers.

Only one transfer may be outstanding on a given endpoint for a given device at a time; callers
enforce this by construction, exactly as the reference drivers in this module's corpus never issue
a second InEndpoint.Read before the first one's callback has fired.
*/
package usbxfer

import (
	"time"

	"github.com/openfprint/gofprint/eventloop"
	"github.com/openfprint/gofprint/ferrors"
)

// Kind identifies the USB transfer type being submitted.
type Kind int

const (
	Bulk Kind = iota
	Interrupt
	Control
)

func (k Kind) String() string {
	switch k {
	case Bulk:
		return "bulk"
	case Interrupt:
		return "interrupt"
	case Control:
		return "control"
	default:
		return "unknown"
	}
}

// Status is the outcome delivered to a transfer's completion callback.
type Status int

const (
	Completed Status = iota
	CancelledStatus
	TimedOut
	Stall
	OtherError
)

func (s Status) String() string {
	switch s {
	case Completed:
		return "completed"
	case CancelledStatus:
		return "cancelled"
	case TimedOut:
		return "timed out"
	case Stall:
		return "stall"
	default:
		return "other error"
	}
}

// Completion is delivered to a transfer's callback when it finishes, one way or another.
type Completion struct {
	Status       Status
	ActualLength int
	Buffer       []byte
	Err          error
}

// CompletionFunc is invoked on the event loop goroutine exactly once per submitted Transfer.
type CompletionFunc func(Completion)

// InEndpoint reads bytes from a device into buf, blocking until data arrives, the timeout
// elapses, or the read is interrupted. It models the blocking semantics of gousb.InEndpoint.Read.
type InEndpoint interface {
	Read(buf []byte) (int, error)
}

// OutEndpoint writes buf to a device, blocking until the write completes or the timeout elapses.
// It models the blocking semantics of gousb.OutEndpoint.Write.
type OutEndpoint interface {
	Write(buf []byte) (int, error)
}

// Transfer is a pending USB I/O. It is created just before submission and discarded after its
// completion callback fires.
type Transfer struct {
	Kind     Kind
	Buffer   []byte
	Length   int
	Timeout  time.Duration
	cancel   chan struct{}
	done     chan struct{}
}

// Adapter submits transfers against a single endpoint pair and delivers completions through loop.
type Adapter struct {
	loop *eventloop.Loop
	in   InEndpoint
	out  OutEndpoint
}

// New creates an Adapter that submits reads against in and writes against out, delivering every
// completion as a closure posted to loop.
func New(loop *eventloop.Loop, in InEndpoint, out OutEndpoint) *Adapter {
	return &Adapter{loop: loop, in: in, out: out}
}

// SubmitRead issues a blocking read for up to len(buf) bytes on a background goroutine and
// delivers the result to cb on the event loop. It returns the Transfer so the caller may Cancel it.
func (a *Adapter) SubmitRead(buf []byte, timeout time.Duration, cb CompletionFunc) *Transfer {
	t := &Transfer{Kind: Bulk, Buffer: buf, Length: len(buf), Timeout: timeout, cancel: make(chan struct{}), done: make(chan struct{})}
	go a.runRead(t, cb)
	return t
}

// SubmitWrite issues a blocking write of buf on a background goroutine and delivers the result to
// cb on the event loop.
func (a *Adapter) SubmitWrite(buf []byte, timeout time.Duration, cb CompletionFunc) *Transfer {
	t := &Transfer{Kind: Bulk, Buffer: buf, Length: len(buf), Timeout: timeout, cancel: make(chan struct{}), done: make(chan struct{})}
	go a.runWrite(t, cb)
	return t
}

func (a *Adapter) runRead(t *Transfer, cb CompletionFunc) {
	defer close(t.done)
	n, err := a.in.Read(t.Buffer)
	a.deliver(t, n, err, cb)
}

func (a *Adapter) runWrite(t *Transfer, cb CompletionFunc) {
	defer close(t.done)
	n, err := a.out.Write(t.Buffer)
	a.deliver(t, n, err, cb)
}

func (a *Adapter) deliver(t *Transfer, n int, err error, cb CompletionFunc) {
	select {
	case <-t.cancel:
		// Cancel already posted a synthetic Cancelled completion; the real result, good or
		// bad, is discarded per the adapter's documented cancellation simplification.
		return
	default:
	}

	a.loop.Post(func() {
		select {
		case <-t.cancel:
			// Cancel ran after this result was posted but before it was delivered.
			return
		default:
		}
		if err != nil {
			a.deliverError(t, n, err, cb)
			return
		}
		if n < t.Length {
			cb(Completion{Status: Stall, ActualLength: n, Buffer: t.Buffer,
				Err: ferrors.New(ferrors.Protocol, "short transfer")})
			return
		}
		cb(Completion{Status: Completed, ActualLength: n, Buffer: t.Buffer})
	})
}

func (a *Adapter) deliverError(t *Transfer, n int, err error, cb CompletionFunc) {
	if err == errTimedOut {
		cb(Completion{Status: TimedOut, ActualLength: n, Buffer: t.Buffer, Err: ferrors.Wrap(ferrors.Timeout, err, "transfer timed out")})
		return
	}
	cb(Completion{Status: OtherError, ActualLength: n, Buffer: t.Buffer, Err: ferrors.Wrap(ferrors.IoError, err, "transfer failed")})
}

// Cancel marks t cancelled and immediately posts a synthetic Cancelled completion to the event
// loop; whatever real result the background read/write eventually produces is dropped. This
// mirrors gousb's lack of a native async-cancel primitive: the underlying blocking call cannot be
// interrupted mid-flight, so cancellation is simulated rather than propagated down to the
// transport.
func (a *Adapter) Cancel(t *Transfer, cb CompletionFunc) {
	select {
	case <-t.cancel:
		return // already cancelled
	default:
		close(t.cancel)
	}
	a.loop.Post(func() {
		cb(Completion{Status: CancelledStatus, Err: ferrors.New(ferrors.Cancelled, "transfer cancelled")})
	})
}

var errTimedOut = ferrors.New(ferrors.Timeout, "deadline exceeded")
