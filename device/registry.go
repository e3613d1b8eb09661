package device

import (
	"log"

	"github.com/openfprint/gofprint/ferrors"
)

// Registry is the process-wide table of known drivers. It is owned by a Library, never global.
type Registry struct {
	drivers []Driver
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a driver. Registering two drivers with the same ID is a configuration error.
func (r *Registry) Register(d Driver) error {
	for _, existing := range r.drivers {
		if existing.ID() == d.ID() {
			return ferrors.Newf(ferrors.Invalid, "driver id %#04x already registered by %q", d.ID(), existing.Name())
		}
	}
	r.drivers = append(r.drivers, d)
	log.Printf("device: registered driver %q (id %#04x, %v)", d.Name(), d.ID(), d.ScanType())
	return nil
}

// Drivers returns every registered driver.
func (r *Registry) Drivers() []Driver {
	out := make([]Driver, len(r.drivers))
	copy(out, r.drivers)
	return out
}

// ByID looks up a registered driver by its registry identity.
func (r *Registry) ByID(id uint16) (Driver, bool) {
	for _, d := range r.drivers {
		if d.ID() == id {
			return d, true
		}
	}
	return nil, false
}

// Match finds the driver, if any, whose USB ID table contains usb, invoking that driver's Discover
// hook to compute the descriptor's devtype.
func (r *Registry) Match(usb USBID, driverData interface{}) (Descriptor, bool) {
	for _, d := range r.drivers {
		for _, candidate := range d.USBIDs() {
			if candidate == usb {
				desc := Descriptor{DriverID: d.ID(), USB: usb, DriverData: driverData}
				desc.DevType = d.Discover(desc)
				return desc, true
			}
		}
	}
	return Descriptor{}, false
}

// Discover matches every usb identity in seen against the registry, returning one descriptor per
// match. Identities matching no driver are silently skipped, mirroring real USB enumeration where
// unrelated devices on the bus are expected and not an error.
func (r *Registry) Discover(seen []USBID) []Descriptor {
	var out []Descriptor
	for _, usb := range seen {
		if desc, ok := r.Match(usb, nil); ok {
			out = append(out, desc)
		}
	}
	return out
}
