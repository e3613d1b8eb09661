package device_test

import (
	"testing"

	"github.com/openfprint/gofprint/device"
)

type stubDriver struct {
	id      uint16
	usbIDs  []device.USBID
	devtype uint32
}

func (s stubDriver) ID() uint16               { return s.id }
func (s stubDriver) Name() string             { return "stub" }
func (s stubDriver) FullName() string         { return "Stub Driver" }
func (s stubDriver) USBIDs() []device.USBID   { return s.usbIDs }
func (s stubDriver) ScanType() device.ScanType { return device.ScanSwipe }
func (s stubDriver) Kind() device.DriverKind   { return device.KindImaging }
func (s stubDriver) Discover(device.Descriptor) uint32 { return s.devtype }
func (s stubDriver) Open(h device.Handle, desc device.Descriptor) { h.OpenComplete(nil) }
func (s stubDriver) Close(h device.Handle)                        { h.CloseComplete() }

func TestRegisterRejectsDuplicateID(t *testing.T) {
	r := device.NewRegistry()
	a := stubDriver{id: 1, usbIDs: []device.USBID{{Vendor: 0x1, Product: 0x1}}}
	b := stubDriver{id: 1, usbIDs: []device.USBID{{Vendor: 0x2, Product: 0x2}}}

	if err := r.Register(a); err != nil {
		t.Fatalf("register a: %v", err)
	}
	if err := r.Register(b); err == nil {
		t.Fatal("expected duplicate driver id to be rejected")
	}
}

func TestMatchFindsRegisteredDriverAndDevtype(t *testing.T) {
	r := device.NewRegistry()
	d := stubDriver{id: 7, usbIDs: []device.USBID{{Vendor: 0x08ff, Product: 0x2580}}, devtype: 0x00002580}
	if err := r.Register(d); err != nil {
		t.Fatalf("register: %v", err)
	}

	desc, ok := r.Match(device.USBID{Vendor: 0x08ff, Product: 0x2580}, nil)
	if !ok {
		t.Fatal("expected a match")
	}
	if desc.DriverID != 7 || desc.DevType != 0x00002580 {
		t.Errorf("unexpected descriptor: %+v", desc)
	}
}

func TestMatchNoMatch(t *testing.T) {
	r := device.NewRegistry()
	r.Register(stubDriver{id: 1, usbIDs: []device.USBID{{Vendor: 1, Product: 1}}})
	if _, ok := r.Match(device.USBID{Vendor: 9, Product: 9}, nil); ok {
		t.Error("expected no match for an unregistered USB identity")
	}
}

func TestDiscoverSkipsUnmatchedIdentities(t *testing.T) {
	r := device.NewRegistry()
	r.Register(stubDriver{id: 1, usbIDs: []device.USBID{{Vendor: 1, Product: 1}}})

	descs := r.Discover([]device.USBID{{Vendor: 1, Product: 1}, {Vendor: 9, Product: 9}})
	if len(descs) != 1 {
		t.Fatalf("expected exactly one discovered descriptor, got %d", len(descs))
	}
}
