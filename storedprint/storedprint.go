/*Package storedprint implements the stored-print object model (C9): the FP1/FP2 wire format,
compatibility checking against an open device, and the on-disk layout under $HOME/.fprint/prints.

Persistence is otherwise external to this module; this package only defines the serialized shape
and where it lives on disk.
*/
package storedprint

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"

	"github.com/openfprint/gofprint/ferrors"
)

// DataType tags the payload class a Print carries.
type DataType uint8

const (
	// DataRaw is the opaque-blob payload primitive drivers store.
	DataRaw DataType = iota

	// DataMinutiae is the minutiae-template payload imaging drivers store.
	DataMinutiae
)

// Print is a stored fingerprint template: driver identity, device sub-model, a data type tag, and
// one or more opaque items.
type Print struct {
	DriverID uint16
	DevType  uint32
	DataType DataType
	Items    [][]byte
}

// CompatibleDevice is the subset of an open device a Print is checked against. Implemented by
// *device.Open; kept minimal here to avoid an import cycle.
type CompatibleDevice interface {
	DriverID() uint16
	DevType() uint32
	ExpectedDataType() DataType
}

// Compatible reports whether p may be used with dev: driver_id, devtype, and data_type must all
// match.
func Compatible(p *Print, dev CompatibleDevice) bool {
	return p.DriverID == dev.DriverID() && p.DevType == dev.DevType() && p.DataType == dev.ExpectedDataType()
}

const (
	magicFP1 = "FP1"
	magicFP2 = "FP2"
	hdrLen   = 10
)

// Encode serializes p. A single-item print encodes as "FP1" with the bare payload; a multi-item
// print (or an explicit choice by the caller, via EncodeAs) encodes as "FP2" with a
// length-prefixed sequence.
func Encode(p *Print) ([]byte, error) {
	if len(p.Items) == 1 {
		return EncodeAs(p, magicFP1)
	}
	return EncodeAs(p, magicFP2)
}

// EncodeAs serializes p using the given magic ("FP1" or "FP2") explicitly.
func EncodeAs(p *Print, magic string) ([]byte, error) {
	switch magic {
	case magicFP1:
		if len(p.Items) != 1 {
			return nil, ferrors.Newf(ferrors.Invalid, "FP1 requires exactly one item, got %d", len(p.Items))
		}
		buf := make([]byte, hdrLen, hdrLen+len(p.Items[0]))
		writeHeader(buf, magic, p)
		buf = append(buf, p.Items[0]...)
		return buf, nil
	case magicFP2:
		size := hdrLen
		for _, it := range p.Items {
			size += 4 + len(it)
		}
		buf := make([]byte, hdrLen, size)
		writeHeader(buf, magic, p)
		for _, it := range p.Items {
			var lenBuf [4]byte
			binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(it)))
			buf = append(buf, lenBuf[:]...)
			buf = append(buf, it...)
		}
		return buf, nil
	default:
		return nil, ferrors.Newf(ferrors.Invalid, "unknown stored-print magic %q", magic)
	}
}

func writeHeader(buf []byte, magic string, p *Print) {
	copy(buf[0:3], magic)
	binary.LittleEndian.PutUint16(buf[3:5], p.DriverID)
	binary.LittleEndian.PutUint32(buf[5:9], p.DevType)
	buf[9] = byte(p.DataType)
}

// Decode parses a stored print from its wire form. Corrupted FP2 payloads (an item's declared
// length exceeds the remaining buffer) fail with ferrors.Protocol rather than attempting partial
// recovery beyond the last complete item.
func Decode(buf []byte) (*Print, error) {
	if len(buf) < hdrLen {
		return nil, ferrors.Newf(ferrors.Protocol, "stored print header truncated: got %d bytes, need %d", len(buf), hdrLen)
	}
	magic := string(buf[0:3])
	p := &Print{
		DriverID: binary.LittleEndian.Uint16(buf[3:5]),
		DevType:  binary.LittleEndian.Uint32(buf[5:9]),
		DataType: DataType(buf[9]),
	}
	payload := buf[hdrLen:]
	switch magic {
	case magicFP1:
		p.Items = [][]byte{append([]byte{}, payload...)}
		return p, nil
	case magicFP2:
		for len(payload) > 0 {
			if len(payload) < 4 {
				return nil, ferrors.New(ferrors.Protocol, "FP2 item length truncated")
			}
			n := binary.LittleEndian.Uint32(payload[:4])
			payload = payload[4:]
			if uint64(n) > uint64(len(payload)) {
				return nil, ferrors.Newf(ferrors.Protocol, "FP2 item declares length %d exceeding remaining %d bytes", n, len(payload))
			}
			p.Items = append(p.Items, append([]byte{}, payload[:n]...))
			payload = payload[n:]
		}
		return p, nil
	default:
		return nil, ferrors.Newf(ferrors.Protocol, "unrecognized stored print magic %q", magic)
	}
}

// Path returns the on-disk path for the given finger under root ($HOME/.fprint/prints if root is
// empty). finger is 1..10 (both thumbs through both little fingers).
func Path(root string, driverID uint16, devType uint32, finger int) (string, error) {
	if finger < 1 || finger > 10 {
		return "", ferrors.Newf(ferrors.Invalid, "finger code %d out of range [1,10]", finger)
	}
	if root == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", ferrors.Wrap(ferrors.IoError, err, "resolving home directory")
		}
		root = filepath.Join(home, ".fprint", "prints")
	}
	return filepath.Join(root,
		fmt.Sprintf("%04x", driverID),
		fmt.Sprintf("%08x", devType),
		fmt.Sprintf("%x", finger)), nil
}

// Save writes p to its on-disk path under root, creating parent directories with user-private
// permissions.
func Save(root string, driverID uint16, devType uint32, finger int, p *Print) error {
	path, err := Path(root, driverID, devType, finger)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return ferrors.Wrap(ferrors.IoError, err, "creating stored print directory")
	}
	buf, err := Encode(p)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, buf, 0o600); err != nil {
		return ferrors.Wrap(ferrors.IoError, err, "writing stored print")
	}
	return nil
}

// Load reads and decodes the print stored at root for (driverID, devType, finger). A missing file
// surfaces as ferrors.NotFound.
func Load(root string, driverID uint16, devType uint32, finger int) (*Print, error) {
	path, err := Path(root, driverID, devType, finger)
	if err != nil {
		return nil, err
	}
	buf, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ferrors.Wrap(ferrors.NotFound, err, "stored print not found")
		}
		return nil, ferrors.Wrap(ferrors.IoError, err, "reading stored print")
	}
	return Decode(buf)
}
