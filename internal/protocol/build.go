package protocol

import (
	"encoding/binary"

	"rtu-receiver/internal/crc16"
	"rtu-receiver/internal/xtea"
)

// PreparePlaintext zero-pads payload so that the padded length plus the
// 2-byte checksum trailer is a multiple of the cipher block size, then
// appends the little-endian CRC16 of the padded bytes.
func PreparePlaintext(payload []byte) []byte {
	pad := (xtea.BlockSize - (len(payload)+2)%xtea.BlockSize) % xtea.BlockSize
	out := make([]byte, len(payload)+pad, len(payload)+pad+2)
	copy(out, payload)
	return binary.LittleEndian.AppendUint16(out, crc16.Checksum(out))
}

// BuildFrame prefixes the encrypted body with the device id, stuffs the
// result and wraps it in start/end markers.
func BuildFrame(imei string, encrypted []byte) ([]byte, error) {
	body, err := AppendIMEI(make([]byte, 0, IMEILen+len(encrypted)), imei)
	if err != nil {
		return nil, err
	}
	body = append(body, encrypted...)

	stuffed := Stuff(body)
	out := make([]byte, 0, len(stuffed)+2)
	out = append(out, FrameStart)
	out = append(out, stuffed...)
	out = append(out, FrameEnd)
	return out, nil
}

// EncodeDatagram runs the full encode path: plaintext preparation, XTEA-ECB
// encryption under key, and framing.
func EncodeDatagram(imei string, payload, key []byte) ([]byte, error) {
	c, err := xtea.NewCipher(key)
	if err != nil {
		return nil, err
	}
	encrypted, err := c.EncryptECB(PreparePlaintext(payload))
	if err != nil {
		return nil, err
	}
	return BuildFrame(imei, encrypted)
}
