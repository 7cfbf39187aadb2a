package protocol

import (
	"encoding/binary"

	"rtu-receiver/internal/crc16"
	"rtu-receiver/internal/xtea"
)

// minBodyLen is the IMEI plus one cipher block.
const minBodyLen = IMEILen + xtea.BlockSize

// KeyResolver maps a device id to its 16-byte XTEA key. Implementations must
// be safe for concurrent use when decodes run in parallel.
type KeyResolver interface {
	Resolve(imei string) ([]byte, bool)
}

// KeyResolverFunc adapts a function to KeyResolver.
type KeyResolverFunc func(imei string) ([]byte, bool)

func (f KeyResolverFunc) Resolve(imei string) ([]byte, bool) { return f(imei) }

// Outcome is a successfully decoded datagram.
type Outcome struct {
	IMEI       string   `json:"imei"`
	FrameOK    bool     `json:"frame_ok"`
	CRCOK      bool     `json:"crc_ok"`
	Payload    HexBytes `json:"payload_hex"`
	PaddingLen int      `json:"padding_len"`
	Records    []Record `json:"records"`
	Warnings   []string `json:"warnings"`
	Issues     []Issue  `json:"nonfatal_errors"`
}

// Decoder runs the decode pipeline. The zero value uses 32 XTEA rounds.
type Decoder struct {
	Keys   KeyResolver
	Rounds int
}

// Decode decodes datagram with keys from resolver using the default round
// count.
func Decode(datagram []byte, resolver KeyResolver) (*Outcome, error) {
	return Decoder{Keys: resolver}.Decode(datagram)
}

// Decode runs frame → unstuff → imei → xtea → key_lookup → crc →
// payload_parse. Any error returned is a *Error.
func (d Decoder) Decode(datagram []byte) (*Outcome, error) {
	if len(datagram) < 2 {
		return nil, newError(StageFrame, ReasonTooShort, Details{"length": len(datagram)})
	}
	first, last := datagram[0], datagram[len(datagram)-1]
	if first != FrameStart || last != FrameEnd {
		return nil, newError(StageFrame, ReasonInvalidBoundaries, Details{
			"start": int(first),
			"end":   int(last),
		})
	}

	body, err := Unstuff(datagram[1 : len(datagram)-1])
	if err != nil {
		return nil, err
	}
	if len(body) < minBodyLen {
		return nil, newError(StageFrame, ReasonBodyTooShort, Details{"body_len": len(body)})
	}

	imei, err := ParseIMEI(body[:IMEILen])
	if err != nil {
		return nil, err
	}
	ciphertext := body[IMEILen:]
	if len(ciphertext) == 0 || len(ciphertext)%xtea.BlockSize != 0 {
		return nil, newError(StageXTEA, ReasonInvalidCiphertextLength, Details{
			"cipher_len": len(ciphertext),
		}).withIMEI(imei)
	}

	plaintext, err := d.decrypt(imei, ciphertext)
	if err != nil {
		return nil, err
	}

	if len(plaintext) < 2 {
		return nil, newError(StageCRC, ReasonPlaintextTooShort, Details{
			"plain_len": len(plaintext),
		}).withIMEI(imei)
	}
	payload := plaintext[:len(plaintext)-2]
	received := binary.LittleEndian.Uint16(plaintext[len(plaintext)-2:])
	calculated := crc16.Checksum(payload)
	if received != calculated {
		return nil, newError(StageCRC, ReasonCRCMismatch, Details{
			"received":   int(received),
			"calculated": int(calculated),
		}).withIMEI(imei)
	}

	parsed := ParsePayload(payload)
	return &Outcome{
		IMEI:       imei,
		FrameOK:    true,
		CRCOK:      true,
		Payload:    HexBytes(parsed.Used),
		PaddingLen: parsed.PaddingLen,
		Records:    parsed.Records,
		Warnings:   parsed.Warnings,
		Issues:     parsed.Issues,
	}, nil
}

func (d Decoder) decrypt(imei string, ciphertext []byte) ([]byte, error) {
	var (
		key []byte
		ok  bool
	)
	if d.Keys != nil {
		key, ok = d.Keys.Resolve(imei)
	}
	if !ok || key == nil {
		return nil, newError(StageKeyLookup, ReasonMissingKeyForIMEI, Details{"imei": imei}).withIMEI(imei)
	}
	if len(key) != xtea.KeySize {
		return nil, newError(StageKeyLookup, ReasonInvalidKeyLength, Details{
			"imei":    imei,
			"key_len": len(key),
		}).withIMEI(imei)
	}

	rounds := d.Rounds
	if rounds == 0 {
		rounds = xtea.DefaultRounds
	}
	c, err := xtea.NewCipherRounds(key, rounds)
	if err != nil {
		return nil, newError(StageXTEA, ReasonDecryptFailed, Details{"message": err.Error()}).withIMEI(imei)
	}
	plaintext, err := c.DecryptECB(ciphertext)
	if err != nil {
		return nil, newError(StageXTEA, ReasonDecryptFailed, Details{"message": err.Error()}).withIMEI(imei)
	}
	return plaintext, nil
}
