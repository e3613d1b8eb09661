package usbxfer

import (
	"github.com/snksoft/crc"

	"github.com/openfprint/gofprint/ferrors"
)

var xmodemTable = crc.NewTable(crc.XMODEM)

func xmodemCRC(data []byte) uint16 {
	c := xmodemTable.InitCrc()
	c = xmodemTable.UpdateCrc(c, data)
	return xmodemTable.CRC16(c)
}

// VerifyXMODEM checks that the trailing two bytes of frame (big-endian) match the XMODEM CRC16 of
// everything preceding them, returning a ferrors.Protocol error on mismatch. Reference drivers use
// this to validate device replies that carry a trailing checksum.
func VerifyXMODEM(frame []byte) error {
	if len(frame) < 2 {
		return ferrors.New(ferrors.Protocol, "frame too short to carry a checksum")
	}
	body, want := frame[:len(frame)-2], frame[len(frame)-2:]
	got := uint16(want[0])<<8 | uint16(want[1])
	sum := xmodemCRC(body)
	if sum != got {
		return ferrors.Newf(ferrors.Protocol, "crc mismatch: frame says %#04x, computed %#04x", got, sum)
	}
	return nil
}

// AppendXMODEM appends the big-endian XMODEM CRC16 of body to it.
func AppendXMODEM(body []byte) []byte {
	sum := xmodemCRC(body)
	return append(body, byte(sum>>8), byte(sum))
}
