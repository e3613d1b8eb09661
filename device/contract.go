package device

import (
	"github.com/openfprint/gofprint/eventloop"
	"github.com/openfprint/gofprint/fpimage"
	"github.com/openfprint/gofprint/usbxfer"
)

// ScanType distinguishes a driver's physical sensor shape.
type ScanType int

const (
	ScanPress ScanType = iota
	ScanSwipe
)

func (s ScanType) String() string {
	switch s {
	case ScanPress:
		return "press"
	case ScanSwipe:
		return "swipe"
	default:
		return "unknown"
	}
}

// DriverKind distinguishes the two driver surfaces described in the driver contract: imaging
// drivers hand off assembled images; primitive drivers hand off raw match/enroll results.
type DriverKind int

const (
	KindImaging DriverKind = iota
	KindPrimitive
)

// USBID is one (vendor, product) pair a driver's ID table matches against.
type USBID struct {
	Vendor  uint16
	Product uint16
}

// Descriptor is the discovered-but-not-opened representation of a device: driver_id, devtype,
// USB identity, and an opaque driver_data blob. Immutable post-discovery.
type Descriptor struct {
	DriverID   uint16
	DevType    uint32
	USB        USBID
	DriverData interface{}
}

// Handle is the surface the core exposes to a driver: the callbacks it consumes from drivers plus
// the SSM/transfer/timer APIs every driver protocol is built from.
type Handle interface {
	// FingerOn reports an edge-triggered finger presence change.
	FingerOn(present bool)

	// ImageCaptured hands off one fully-assembled image. Imaging drivers only.
	ImageCaptured(img *fpimage.Image)

	// AbortScan reports a per-scan soft failure; the session continues running.
	AbortScan(hint RetryHint)

	// SessionError reports a hard failure that aborts the current operation.
	SessionError(err error)

	// ActivateComplete acknowledges an activate() call. Imaging drivers only.
	ActivateComplete(err error)

	// DeactivateComplete acknowledges a deactivate() call. Imaging drivers only.
	DeactivateComplete()

	// OpenComplete acknowledges an open() call.
	OpenComplete(err error)

	// CloseComplete acknowledges a close() call.
	CloseComplete()

	// Loop gives the driver access to the timer service.
	Loop() *eventloop.Loop

	// Transfers gives the driver access to the USB transfer adapter for this device.
	Transfers() *usbxfer.Adapter

	// Data returns the driver's opaque per-device blob, set with SetData during open.
	Data() interface{}

	// SetData stores the driver's opaque per-device blob.
	SetData(v interface{})
}

// RetryHint mirrors ferrors.RetryHint at the driver-contract boundary, with the same values in the
// same order. A driver converts a ferrors hint to this type itself before calling AbortScan (see
// refswipe's finishScan); the orchestrator passes the value through unchanged.
type RetryHint int

const (
	RetryTooShort RetryHint = iota
	RetryOffCenter
	RetryRemoveFinger
	RetryGeneral
)

// Driver is the subset of the driver contract both imaging and primitive drivers implement.
type Driver interface {
	// ID returns the driver's registry identity.
	ID() uint16
	Name() string
	FullName() string
	USBIDs() []USBID
	ScanType() ScanType
	Kind() DriverKind

	// Discover inspects a matched descriptor to disambiguate sub-models, returning a devtype.
	// Drivers with a single sub-model may always return the same constant.
	Discover(desc Descriptor) uint32

	// Open claims resources and allocates the driver's per-device blob, calling back
	// h.OpenComplete when ready.
	Open(h Handle, desc Descriptor)

	// Close releases resources, calling back h.CloseComplete when quiescent.
	Close(h Handle)
}

// ImagingDriver is the driver surface for swipe/press sensors that hand off assembled images.
type ImagingDriver interface {
	Driver

	// Activate begins imaging at the given initial sub-state (always AwaitFingerOn), calling
	// back h.ActivateComplete when the activation SSM finishes.
	Activate(h Handle, initial ImagingSubState)

	// Deactivate ends imaging, calling back h.DeactivateComplete when quiescent.
	Deactivate(h Handle)

	// ChangeState hints a requested sub-state change, delivered between frames once the
	// orchestrator's debounce timer has settled.
	ChangeState(h Handle, newState ImagingSubState)
}

// PrimitiveDriver is the alternate surface non-imaging drivers expose: paired start/stop
// operations with staged result callbacks, built from the same SSM/transfer/timer primitives.
type PrimitiveDriver interface {
	Driver

	EnrollStart(h Handle)
	EnrollStop(h Handle)
	VerifyStart(h Handle)
	VerifyStop(h Handle)
	IdentifyStart(h Handle)
	IdentifyStop(h Handle)
}
