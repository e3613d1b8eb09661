package device_test

import (
	"testing"
	"time"

	"github.com/openfprint/gofprint/device"
	"github.com/openfprint/gofprint/eventloop"
	"github.com/openfprint/gofprint/fpimage"
)

type fakeImagingDriver struct {
	stubDriver
	activateCalls   int
	deactivateCalls int
	changeStates    []device.ImagingSubState
}

func (f *fakeImagingDriver) Activate(h device.Handle, initial device.ImagingSubState) {
	f.activateCalls++
	h.ActivateComplete(nil)
}

func (f *fakeImagingDriver) Deactivate(h device.Handle) {
	f.deactivateCalls++
	h.DeactivateComplete()
}

func (f *fakeImagingDriver) ChangeState(h device.Handle, newState device.ImagingSubState) {
	f.changeStates = append(f.changeStates, newState)
}

func openFakeImagingDevice(t *testing.T, loop *eventloop.Loop) (*device.Open, *fakeImagingDriver) {
	t.Helper()
	drv := &fakeImagingDriver{stubDriver: stubDriver{id: 1, usbIDs: []device.USBID{{Vendor: 1, Product: 1}}}}
	desc := device.Descriptor{DriverID: 1, DevType: 1}
	claim := func(device.Descriptor) (func() error, error) {
		return func() error { return nil }, nil
	}

	var opened *device.Open
	var openErr error
	done := make(chan struct{})
	device.OpenDevice(desc, drv, loop, nil, 0, claim, func(o *device.Open, err error) {
		opened, openErr = o, err
		close(done)
	})

	deadline := time.Now().Add(2 * time.Second)
	for {
		select {
		case <-done:
			if openErr != nil {
				t.Fatalf("open: %v", openErr)
			}
			return opened, drv
		default:
		}
		if time.Now().After(deadline) {
			t.Fatal("device never finished opening")
		}
		loop.RunOnce(time.Now().Add(20 * time.Millisecond))
	}
}

func TestOrchestratorActivateThenDeactivate(t *testing.T) {
	loop := eventloop.New()
	dev, drv := openFakeImagingDevice(t, loop)

	var finalErr error
	opDone := make(chan struct{})
	if err := dev.StartEnroll(nil, nil, func(err error) {
		finalErr = err
		close(opDone)
	}); err != nil {
		t.Fatalf("start enroll: %v", err)
	}

	if drv.activateCalls != 1 {
		t.Fatalf("expected Activate called once, got %d", drv.activateCalls)
	}
	if dev.State() != device.Enrolling {
		t.Errorf("expected state Enrolling after activate_complete, got %v", dev.State())
	}

	if err := dev.StopOperation(); err != nil {
		t.Fatalf("stop: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		select {
		case <-opDone:
			if finalErr != nil {
				t.Fatalf("expected clean stop, got error %v", finalErr)
			}
			if drv.deactivateCalls != 1 {
				t.Errorf("expected Deactivate called once, got %d", drv.deactivateCalls)
			}
			if dev.State() != device.Initialized {
				t.Errorf("expected state Initialized after stop, got %v", dev.State())
			}
			return
		default:
		}
		if time.Now().After(deadline) {
			t.Fatal("stop never completed: debounce timer may not have fired")
		}
		loop.RunOnce(time.Now().Add(20 * time.Millisecond))
	}
}

func TestOrchestratorDebounceCoalescesRapidRequests(t *testing.T) {
	loop := eventloop.New()
	dev, drv := openFakeImagingDevice(t, loop)

	done := make(chan struct{})
	if err := dev.StartCapture(nil, nil, func(error) { close(done) }); err != nil {
		t.Fatalf("start capture: %v", err)
	}

	// Stop twice in rapid succession, well within the debounce window; only the last request
	// should be delivered, and Deactivate should fire exactly once.
	if err := dev.StopOperation(); err != nil {
		t.Fatalf("stop 1: %v", err)
	}
	if err := dev.StopOperation(); err != nil {
		t.Fatalf("stop 2: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		select {
		case <-done:
			if drv.deactivateCalls != 1 {
				t.Errorf("expected exactly one Deactivate despite two rapid stop requests, got %d", drv.deactivateCalls)
			}
			return
		default:
		}
		if time.Now().After(deadline) {
			t.Fatal("operation never completed")
		}
		loop.RunOnce(time.Now().Add(20 * time.Millisecond))
	}
}

func TestOrchestratorImageCapturedInvokesCallback(t *testing.T) {
	loop := eventloop.New()
	dev, _ := openFakeImagingDevice(t, loop)

	var got *fpimage.Image
	if err := dev.StartVerify(func(img *fpimage.Image) { got = img }, nil, func(error) {}); err != nil {
		t.Fatalf("start verify: %v", err)
	}

	want := fpimage.New(2, 2)
	dev.ImageCaptured(want)

	if got != want {
		t.Error("expected the orchestrator to forward the captured image to the session callback")
	}
}
