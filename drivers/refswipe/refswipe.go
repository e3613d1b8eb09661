/*Package refswipe is a reference imaging driver for a swipe sensor, built entirely from this
module's own primitives (ssm, usbxfer, assembly) against a simulated USB endpoint rather than real
hardware. It exists to exercise the device contract end to end and as a worked example for anyone
writing a real driver against this library.
*/
package refswipe

import (
	"time"

	"github.com/openfprint/gofprint/assembly"
	"github.com/openfprint/gofprint/device"
	"github.com/openfprint/gofprint/ferrors"
	"github.com/openfprint/gofprint/ssm"
	"github.com/openfprint/gofprint/usbxfer"
)

// ID is this driver's registry identity.
const ID = 0x08ff

const (
	frameWidth  = 8
	frameHeight = 4
)

// pollRetryDelay is how long pollForFinger waits before resubmitting after the poll limiter
// denies a poll.
const pollRetryDelay = 5 * time.Millisecond

// Driver implements device.ImagingDriver against a simulated swipe sensor.
type Driver struct {
	devType uint32

	bulkTimeout time.Duration
	pollRateHz  float64
	pollBurst   int

	assemblyDropLastN int
	assemblyMinFrames int
	assemblyMaxFrames int
}

// New creates a Driver with the given devtype discriminator (e.g. distinguishing sensor
// sub-models sharing one USB VID/PID behind different bcdDevice values), using the same
// timeout/poll-rate/assembly defaults as gofprint.DefaultConfig.
func New(devType uint32) *Driver {
	return &Driver{
		devType:           devType,
		bulkTimeout:       4 * time.Second,
		pollRateHz:        20,
		pollBurst:         4,
		assemblyDropLastN: 1,
		assemblyMinFrames: 3,
		assemblyMaxFrames: 64,
	}
}

// Configure overrides the transfer timeout and finger-poll rate limit, typically from a loaded
// gofprint.Config's BulkTimeoutMillis/PollRateHz/PollBurst rather than this driver's built-in
// defaults. Call before Open.
func (d *Driver) Configure(bulkTimeout time.Duration, pollRateHz float64, pollBurst int) {
	d.bulkTimeout = bulkTimeout
	d.pollRateHz = pollRateHz
	d.pollBurst = pollBurst
}

// ConfigureAssembly overrides the stripe-assembly policy, typically from a loaded gofprint.Config's
// AssemblyDropLastN/AssemblyMinFrames/AssemblyMaxFrames rather than this driver's built-in
// defaults. Call before Open.
func (d *Driver) ConfigureAssembly(dropLastN, minFrames, maxFrames int) {
	d.assemblyDropLastN = dropLastN
	d.assemblyMinFrames = minFrames
	d.assemblyMaxFrames = maxFrames
}

func (d *Driver) ID() uint16                { return ID }
func (d *Driver) Name() string              { return "refswipe" }
func (d *Driver) FullName() string          { return "Reference Swipe Sensor" }
func (d *Driver) ScanType() device.ScanType { return device.ScanSwipe }
func (d *Driver) Kind() device.DriverKind   { return device.KindImaging }

func (d *Driver) USBIDs() []device.USBID {
	return []device.USBID{{Vendor: 0x08ff, Product: 0x2580}}
}

func (d *Driver) Discover(device.Descriptor) uint32 { return d.devType }

// state is the per-device blob this driver stores via Handle.SetData.
type state struct {
	adapter      *usbxfer.Adapter
	endpoint     *usbxfer.FakeEndpoint
	activateSSM  *ssm.Machine
	stripes      []assembly.Stripe
	deactivating bool
	pollLimiter  *usbxfer.PollLimiter
}

func (d *Driver) Open(h device.Handle, desc device.Descriptor) {
	ep := &usbxfer.FakeEndpoint{}
	h.SetData(&state{
		adapter:     usbxfer.New(h.Loop(), ep, ep),
		endpoint:    ep,
		pollLimiter: usbxfer.NewPollLimiter(d.pollRateHz, d.pollBurst),
	})
	h.OpenComplete(nil)
}

func (d *Driver) Close(h device.Handle) {
	h.CloseComplete()
}

// Activate runs a 2-state activation SSM: state 0 sends an init command, state 1 waits for the
// device's ack, then begins the finger-poll cycle.
func (d *Driver) Activate(h device.Handle, initial device.ImagingSubState) {
	st := h.Data().(*state)
	st.deactivating = false
	st.stripes = nil

	ack := usbxfer.AppendXMODEM([]byte{0x01})
	st.endpoint.Responses = append(st.endpoint.Responses,
		usbxfer.FakeResponse{Data: []byte{0x01}}, // ack for the init write
		usbxfer.FakeResponse{Data: ack},           // ack for the follow-up read, CRC-trailed
	)

	st.activateSSM = ssm.New("refswipe-activate", 2, func(m *ssm.Machine) {
		switch m.CurState() {
		case 0:
			st.adapter.SubmitWrite([]byte{0xA0}, d.bulkTimeout, func(c usbxfer.Completion) {
				if c.Err != nil {
					m.MarkFailed(c.Err)
					return
				}
				m.NextState()
			})
		case 1:
			st.adapter.SubmitRead(make([]byte, len(ack)), d.bulkTimeout, func(c usbxfer.Completion) {
				if c.Err != nil {
					m.MarkFailed(c.Err)
					return
				}
				if err := usbxfer.VerifyXMODEM(c.Buffer[:c.ActualLength]); err != nil {
					m.MarkFailed(err)
					return
				}
				m.NextState()
			})
		}
	})

	st.activateSSM.Start(func(m *ssm.Machine, err error) {
		h.ActivateComplete(err)
		if err == nil {
			d.pollForFinger(h, st)
		}
	})
}

// pollForFinger simulates waiting for a finger by queuing a canned "finger present" interrupt
// reply and submitting a read for it; a real driver would resubmit this against a hardware
// interrupt endpoint. The poll limiter throttles resubmission so a finger that bounces on and off
// cannot drive this into a resubmit-as-fast-as-possible loop.
func (d *Driver) pollForFinger(h device.Handle, st *state) {
	if st.deactivating {
		h.DeactivateComplete()
		return
	}
	if !st.pollLimiter.Allow() {
		h.Loop().TimerAdd(pollRetryDelay, func() { d.pollForFinger(h, st) })
		return
	}
	st.endpoint.Responses = append(st.endpoint.Responses, usbxfer.FakeResponse{Data: []byte{0x01}})
	st.adapter.SubmitRead(make([]byte, 1), d.bulkTimeout, func(c usbxfer.Completion) {
		if st.deactivating {
			h.DeactivateComplete()
			return
		}
		if c.Err != nil {
			h.SessionError(c.Err)
			return
		}
		h.FingerOn(true)
		d.captureStripes(h, st)
	})
}

// captureStripes simulates a finger swipe by pulling a fixed number of stripe frames, then
// assembling them and reporting finger-off.
func (d *Driver) captureStripes(h device.Handle, st *state) {
	const nStripes = 4
	for i := 0; i < nStripes; i++ {
		frame := make([]byte, frameWidth*frameHeight)
		for p := range frame {
			frame[p] = byte((i * 10) + p%4)
		}
		st.endpoint.Responses = append(st.endpoint.Responses, usbxfer.FakeResponse{Data: frame})
	}

	var pullOne func(remaining int)
	pullOne = func(remaining int) {
		if remaining == 0 {
			d.finishScan(h, st)
			return
		}
		buf := make([]byte, frameWidth*frameHeight)
		st.adapter.SubmitRead(buf, d.bulkTimeout, func(c usbxfer.Completion) {
			if st.deactivating {
				h.DeactivateComplete()
				return
			}
			if c.Err != nil {
				h.SessionError(c.Err)
				return
			}
			data := append([]byte{}, c.Buffer[:c.ActualLength]...)
			st.stripes = append(st.stripes, assembly.Stripe{
				PixelAt: func(x, y int) byte { return data[y*frameWidth+x] },
			})
			pullOne(remaining - 1)
		})
	}
	pullOne(nStripes)
}

func (d *Driver) finishScan(h device.Handle, st *state) {
	policy := assembly.Policy{
		FrameWidth:  frameWidth,
		FrameHeight: frameHeight,
		DropLastN:   d.assemblyDropLastN,
		MinFrames:   d.assemblyMinFrames,
		MaxFrames:   d.assemblyMaxFrames,
	}
	img, err := assembly.AssembleOverlap(st.stripes, policy)
	st.stripes = nil
	if err != nil {
		h.FingerOn(false)
		hint := device.RetryTooShort
		if fe, ok := err.(*ferrors.Error); ok {
			hint = device.RetryHint(fe.Hint)
		}
		h.AbortScan(hint)
		d.pollForFinger(h, st)
		return
	}
	h.ImageCaptured(img)
	h.FingerOn(false)
	d.pollForFinger(h, st)
}

// ChangeState is a no-op for this reference driver: it has no meaningful per-frame hint to act on
// between stripes.
func (d *Driver) ChangeState(h device.Handle, newState device.ImagingSubState) {}

// Deactivate marks the driver quiescent. A successfully activated device always has exactly one
// read outstanding or one poll-limiter retry timer pending, in pollForFinger or captureStripes;
// that read's completion (or the retry timer's next call to pollForFinger) observes deactivating
// and calls back h.DeactivateComplete itself, so Deactivate never calls it directly and never
// double-fires the completion.
func (d *Driver) Deactivate(h device.Handle) {
	st := h.Data().(*state)
	st.deactivating = true
}
