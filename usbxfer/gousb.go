package usbxfer

import (
	"github.com/google/gousb"
)

// GousbIn wraps a gousb.InEndpoint to satisfy InEndpoint. The Adapter only sees the InEndpoint
// interface, so tests drive it with FakeEndpoint instead of a real device.
type GousbIn struct {
	EP *gousb.InEndpoint
}

// Read implements InEndpoint.
func (g GousbIn) Read(buf []byte) (int, error) {
	return g.EP.Read(buf)
}

// GousbOut wraps a gousb.OutEndpoint to satisfy OutEndpoint.
type GousbOut struct {
	EP *gousb.OutEndpoint
}

// Write implements OutEndpoint.
func (g GousbOut) Write(buf []byte) (int, error) {
	return g.EP.Write(buf)
}

// OpenBulkPair claims the default interface of the device at (vid, pid) and returns its bulk
// in/out endpoint numbers in/out wrapped for use with New. The returned closer releases the
// interface and the device and must be called from the driver's close handler.
func OpenBulkPair(vid, pid gousb.ID, in, out int) (GousbIn, GousbOut, func() error, error) {
	ctx := gousb.NewContext()
	dev, err := ctx.OpenDeviceWithVIDPID(vid, pid)
	if err != nil {
		ctx.Close()
		return GousbIn{}, GousbOut{}, nil, err
	}
	if err := dev.SetAutoDetach(true); err != nil {
		dev.Close()
		ctx.Close()
		return GousbIn{}, GousbOut{}, nil, err
	}
	iface, ifaceDone, err := dev.DefaultInterface()
	if err != nil {
		dev.Close()
		ctx.Close()
		return GousbIn{}, GousbOut{}, nil, err
	}
	inEP, err := iface.InEndpoint(in)
	if err != nil {
		ifaceDone()
		dev.Close()
		ctx.Close()
		return GousbIn{}, GousbOut{}, nil, err
	}
	outEP, err := iface.OutEndpoint(out)
	if err != nil {
		ifaceDone()
		dev.Close()
		ctx.Close()
		return GousbIn{}, GousbOut{}, nil, err
	}
	closer := func() error {
		ifaceDone()
		err := dev.Close()
		ctx.Close()
		return err
	}
	return GousbIn{EP: inEP}, GousbOut{EP: outEP}, closer, nil
}
