package protocol

import (
	"bytes"
	"errors"
	"math/rand"
	"testing"
)

func TestStuff_EscapesMarkers(t *testing.T) {
	got := Stuff([]byte{0x00, 0xC0, 0x01, 0xC2, 0x02, 0xC4, 0x03})
	want := []byte{0x00, 0xC4, 0xC1, 0x01, 0xC4, 0xC3, 0x02, 0xC4, 0xC4, 0x03}
	if !bytes.Equal(got, want) {
		t.Fatalf("Stuff()=%x want %x", got, want)
	}
	for _, b := range got {
		if b == FrameStart || b == FrameEnd {
			t.Fatalf("unescaped marker 0x%02x in %x", b, got)
		}
	}
}

func TestUnstuff_RoundTrip(t *testing.T) {
	raw := []byte{0x00, 0xC0, 0x01, 0xC2, 0x02, 0xC4, 0x03}
	got, err := Unstuff(Stuff(raw))
	if err != nil {
		t.Fatalf("Unstuff() error: %v", err)
	}
	if !bytes.Equal(got, raw) {
		t.Fatalf("round trip=%x want %x", got, raw)
	}
}

func TestUnstuff_RoundTripRandom(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	// Bias towards marker bytes so escapes are common.
	alphabet := []byte{0x00, 0xC0, 0xC1, 0xC2, 0xC3, 0xC4, 0xFF, 0x7E}
	for i := 0; i < 500; i++ {
		raw := make([]byte, rng.Intn(64))
		for j := range raw {
			if rng.Intn(2) == 0 {
				raw[j] = alphabet[rng.Intn(len(alphabet))]
			} else {
				raw[j] = byte(rng.Intn(256))
			}
		}
		got, err := Unstuff(Stuff(raw))
		if err != nil {
			t.Fatalf("Unstuff(Stuff(%x)) error: %v", raw, err)
		}
		if !bytes.Equal(got, raw) {
			t.Fatalf("Unstuff(Stuff(%x))=%x", raw, got)
		}
	}
}

func TestUnstuff_Errors(t *testing.T) {
	cases := []struct {
		name    string
		in      []byte
		reason  Reason
		offset  int
		escByte int
	}{
		{name: "DanglingOnly", in: []byte{0xC4}, reason: ReasonDanglingEscapeByte, offset: 0},
		{name: "DanglingAfterData", in: []byte{0x01, 0x02, 0xC4}, reason: ReasonDanglingEscapeByte, offset: 2},
		{name: "InvalidEscape", in: []byte{0x01, 0xC4, 0x05}, reason: ReasonInvalidEscapeSequence, offset: 1, escByte: 0x05},
		{name: "EscapedStartMarker", in: []byte{0xC4, 0xC0}, reason: ReasonInvalidEscapeSequence, offset: 0, escByte: 0xC0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Unstuff(tc.in)
			var perr *Error
			if !errors.As(err, &perr) {
				t.Fatalf("err=%v want *Error", err)
			}
			if perr.Stage != StageUnstuff || perr.Reason != tc.reason {
				t.Fatalf("got %s:%s want unstuff:%s", perr.Stage, perr.Reason, tc.reason)
			}
			if perr.Details["offset"] != tc.offset {
				t.Fatalf("offset=%v want %d", perr.Details["offset"], tc.offset)
			}
			if tc.reason == ReasonInvalidEscapeSequence && perr.Details["escape_byte"] != tc.escByte {
				t.Fatalf("escape_byte=%v want %d", perr.Details["escape_byte"], tc.escByte)
			}
		})
	}
}

func TestParseIMEI_Vector(t *testing.T) {
	got, err := ParseIMEI(mustHex(t, "cb9b558888110300"))
	if err != nil {
		t.Fatalf("ParseIMEI() error: %v", err)
	}
	if got != testIMEI {
		t.Fatalf("ParseIMEI()=%q want %q", got, testIMEI)
	}
}

func TestParseIMEI_InvalidLength(t *testing.T) {
	_, err := ParseIMEI([]byte{1, 2, 3})
	var perr *Error
	if !errors.As(err, &perr) {
		t.Fatalf("err=%v want *Error", err)
	}
	if perr.Stage != StageIMEI || perr.Reason != ReasonInvalidIMEIBytesLength || perr.Details["length"] != 3 {
		t.Fatalf("unexpected error: %+v", perr)
	}
}

func TestAppendIMEI_RoundTrip(t *testing.T) {
	b, err := AppendIMEI(nil, testIMEI)
	if err != nil {
		t.Fatalf("AppendIMEI() error: %v", err)
	}
	if !bytes.Equal(b, mustHex(t, "cb9b558888110300")) {
		t.Fatalf("AppendIMEI()=%x", b)
	}
	if _, err := AppendIMEI(nil, "86370303066823x"); err == nil {
		t.Fatalf("expected error for non-decimal imei")
	}
}
