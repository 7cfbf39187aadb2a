package protocol

import (
	"encoding/binary"
	"fmt"
	"strconv"
)

// IMEILen is the wire size of the device id.
const IMEILen = 8

// ParseIMEI decodes an 8-byte little-endian device id to its decimal form.
func ParseIMEI(b []byte) (string, error) {
	if len(b) != IMEILen {
		return "", newError(StageIMEI, ReasonInvalidIMEIBytesLength, Details{"length": len(b)})
	}
	return strconv.FormatUint(binary.LittleEndian.Uint64(b), 10), nil
}

// AppendIMEI appends the wire form of a decimal device id to dst.
func AppendIMEI(dst []byte, imei string) ([]byte, error) {
	v, err := strconv.ParseUint(imei, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("imei %q: %w", imei, err)
	}
	return binary.LittleEndian.AppendUint64(dst, v), nil
}
