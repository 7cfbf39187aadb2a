// Package xtea implements the XTEA block cipher with little-endian word
// order and a configurable round count, plus ECB helpers over whole buffers.
//
// Devices load both the 64-bit block and the 128-bit key as little-endian
// 32-bit words, which is why golang.org/x/crypto/xtea (big-endian) cannot be
// used on the wire directly.
package xtea

import (
	"crypto/cipher"
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	BlockSize     = 8
	KeySize       = 16
	DefaultRounds = 32

	delta uint32 = 0x9E3779B9
)

var (
	ErrKeySize      = errors.New("xtea: key must be 16 bytes")
	ErrRounds       = errors.New("xtea: rounds must be positive")
	ErrBufferLength = errors.New("xtea: buffer length must be positive and divisible by 8")
)

// Cipher is an XTEA instance bound to one key. It is immutable after
// construction and safe for concurrent use.
type Cipher struct {
	k      [4]uint32
	rounds uint32
}

var _ cipher.Block = (*Cipher)(nil)

// NewCipher returns a 32-round cipher for key.
func NewCipher(key []byte) (*Cipher, error) {
	return NewCipherRounds(key, DefaultRounds)
}

// NewCipherRounds returns a cipher for key running the given number of
// rounds (cycles of the two half-round updates).
func NewCipherRounds(key []byte, rounds int) (*Cipher, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w (got %d)", ErrKeySize, len(key))
	}
	if rounds <= 0 {
		return nil, fmt.Errorf("%w (got %d)", ErrRounds, rounds)
	}
	c := &Cipher{rounds: uint32(rounds)}
	for i := range c.k {
		c.k[i] = binary.LittleEndian.Uint32(key[i*4:])
	}
	return c, nil
}

func (c *Cipher) BlockSize() int { return BlockSize }

// Encrypt encrypts the first block of src into dst. dst and src may overlap
// entirely.
func (c *Cipher) Encrypt(dst, src []byte) {
	if len(src) < BlockSize || len(dst) < BlockSize {
		panic("xtea: input not full block")
	}
	v0 := binary.LittleEndian.Uint32(src[0:4])
	v1 := binary.LittleEndian.Uint32(src[4:8])

	var sum uint32
	for i := uint32(0); i < c.rounds; i++ {
		v0 += (((v1 << 4) ^ (v1 >> 5)) + v1) ^ (sum + c.k[sum&3])
		sum += delta
		v1 += (((v0 << 4) ^ (v0 >> 5)) + v0) ^ (sum + c.k[(sum>>11)&3])
	}

	binary.LittleEndian.PutUint32(dst[0:4], v0)
	binary.LittleEndian.PutUint32(dst[4:8], v1)
}

// Decrypt decrypts the first block of src into dst. dst and src may overlap
// entirely.
func (c *Cipher) Decrypt(dst, src []byte) {
	if len(src) < BlockSize || len(dst) < BlockSize {
		panic("xtea: input not full block")
	}
	v0 := binary.LittleEndian.Uint32(src[0:4])
	v1 := binary.LittleEndian.Uint32(src[4:8])

	sum := delta * c.rounds
	for i := uint32(0); i < c.rounds; i++ {
		v1 -= (((v0 << 4) ^ (v0 >> 5)) + v0) ^ (sum + c.k[(sum>>11)&3])
		sum -= delta
		v0 -= (((v1 << 4) ^ (v1 >> 5)) + v1) ^ (sum + c.k[sum&3])
	}

	binary.LittleEndian.PutUint32(dst[0:4], v0)
	binary.LittleEndian.PutUint32(dst[4:8], v1)
}

// EncryptECB encrypts each 8-byte block of plaintext independently and
// returns a new buffer.
func (c *Cipher) EncryptECB(plaintext []byte) ([]byte, error) {
	if err := checkLength(plaintext); err != nil {
		return nil, err
	}
	out := make([]byte, len(plaintext))
	for i := 0; i < len(plaintext); i += BlockSize {
		c.Encrypt(out[i:i+BlockSize], plaintext[i:i+BlockSize])
	}
	return out, nil
}

// DecryptECB is the inverse of EncryptECB.
func (c *Cipher) DecryptECB(ciphertext []byte) ([]byte, error) {
	if err := checkLength(ciphertext); err != nil {
		return nil, err
	}
	out := make([]byte, len(ciphertext))
	for i := 0; i < len(ciphertext); i += BlockSize {
		c.Decrypt(out[i:i+BlockSize], ciphertext[i:i+BlockSize])
	}
	return out, nil
}

func checkLength(b []byte) error {
	if len(b) == 0 || len(b)%BlockSize != 0 {
		return fmt.Errorf("%w (got %d)", ErrBufferLength, len(b))
	}
	return nil
}
