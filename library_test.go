package gofprint_test

import (
	"testing"
	"time"

	gofprint "github.com/openfprint/gofprint"
	"github.com/openfprint/gofprint/device"
)

type noopDriver struct {
	id     uint16
	usbIDs []device.USBID
}

func (d noopDriver) ID() uint16                            { return d.id }
func (d noopDriver) Name() string                          { return "noop" }
func (d noopDriver) FullName() string                      { return "No-op Driver" }
func (d noopDriver) USBIDs() []device.USBID                { return d.usbIDs }
func (d noopDriver) ScanType() device.ScanType              { return device.ScanPress }
func (d noopDriver) Kind() device.DriverKind                { return device.KindPrimitive }
func (d noopDriver) Discover(device.Descriptor) uint32      { return 1 }
func (d noopDriver) Open(h device.Handle, _ device.Descriptor) { h.OpenComplete(nil) }
func (d noopDriver) Close(h device.Handle)                  { h.CloseComplete() }

func TestLibraryOpenTracksDeviceUntilClose(t *testing.T) {
	lib := gofprint.New(gofprint.DefaultConfig())
	lib.Registry.Register(noopDriver{id: 1, usbIDs: []device.USBID{{Vendor: 1, Product: 1}}})

	desc := device.Descriptor{DriverID: 1, DevType: 1}
	claim := func(device.Descriptor) (func() error, error) {
		return func() error { return nil }, nil
	}

	opened := make(chan *device.Open, 1)
	if err := lib.OpenDevice(desc, claim, nil, func(o *device.Open, err error) {
		if err != nil {
			t.Errorf("open: %v", err)
		}
		opened <- o
	}); err != nil {
		t.Fatalf("open: %v", err)
	}

	var dev *device.Open
	deadline := time.Now().Add(2 * time.Second)
	for {
		select {
		case dev = <-opened:
		default:
		}
		if dev != nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("device never opened")
		}
		lib.Loop.RunOnce(time.Now().Add(20 * time.Millisecond))
	}

	if len(lib.OpenDevices()) != 1 {
		t.Fatalf("expected exactly one tracked open device, got %d", len(lib.OpenDevices()))
	}

	closed := make(chan struct{})
	lib.CloseDevice(dev, func() { close(closed) })

	deadline = time.Now().Add(2 * time.Second)
	for {
		select {
		case <-closed:
			if len(lib.OpenDevices()) != 0 {
				t.Errorf("expected the open-devices set to be empty after close, got %d", len(lib.OpenDevices()))
			}
			return
		default:
		}
		if time.Now().After(deadline) {
			t.Fatal("device never closed")
		}
		lib.Loop.RunOnce(time.Now().Add(20 * time.Millisecond))
	}
}

func TestLibraryOpenUnknownDriverIDFails(t *testing.T) {
	lib := gofprint.New(gofprint.DefaultConfig())
	desc := device.Descriptor{DriverID: 99}
	err := lib.OpenDevice(desc, func(device.Descriptor) (func() error, error) { return nil, nil }, nil, func(*device.Open, error) {})
	if err == nil {
		t.Fatal("expected opening an unregistered driver id to fail")
	}
}

func TestLibraryRunInBackgroundStop(t *testing.T) {
	lib := gofprint.New(gofprint.DefaultConfig())
	lib.RunInBackground()

	done := make(chan struct{})
	lib.Loop.Post(func() { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("posted closure never ran on background loop")
	}

	stopDone := make(chan struct{})
	go func() {
		lib.Stop()
		close(stopDone)
	}()
	select {
	case <-stopDone:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return")
	}
}
