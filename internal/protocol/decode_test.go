package protocol

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"rtu-receiver/internal/xtea"
)

func encryptPlain(t *testing.T, plain []byte) []byte {
	t.Helper()
	c, err := xtea.NewCipher(mustHex(t, testKeyHex))
	if err != nil {
		t.Fatalf("NewCipher() error: %v", err)
	}
	enc, err := c.EncryptECB(plain)
	if err != nil {
		t.Fatalf("EncryptECB() error: %v", err)
	}
	return enc
}

func buildFrame(t *testing.T, imei string, body []byte) []byte {
	t.Helper()
	f, err := BuildFrame(imei, body)
	if err != nil {
		t.Fatalf("BuildFrame() error: %v", err)
	}
	return f
}

func requireProtocolError(t *testing.T, err error, stage Stage, reason Reason) *Error {
	t.Helper()
	var perr *Error
	if !errors.As(err, &perr) {
		t.Fatalf("err=%v want *Error %s:%s", err, stage, reason)
	}
	if perr.Stage != stage || perr.Reason != reason {
		t.Fatalf("got %s:%s want %s:%s", perr.Stage, perr.Reason, stage, reason)
	}
	return perr
}

func TestDecode_RoundTrip(t *testing.T) {
	payload := mustHex(t, mixedPayloadHex)
	datagram, err := EncodeDatagram(testIMEI, payload, mustHex(t, testKeyHex))
	if err != nil {
		t.Fatalf("EncodeDatagram() error: %v", err)
	}

	out, err := Decode(datagram, staticKeys(t, map[string]string{testIMEI: testKeyHex}))
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	if out.IMEI != testIMEI || !out.FrameOK || !out.CRCOK {
		t.Fatalf("unexpected outcome header: %+v", out)
	}
	if !bytes.Equal(out.Payload, payload) {
		t.Fatalf("payload=%x want %x", []byte(out.Payload), payload)
	}
	// 31 payload bytes + 2 crc bytes round up to 40: 7 bytes of padding.
	if out.PaddingLen != 7 {
		t.Fatalf("padding=%d want 7", out.PaddingLen)
	}
	if got, want := recordIDs(out.Records), []int{1, 2, 4, 6, 7, 9}; !reflect.DeepEqual(got, want) {
		t.Fatalf("ids=%v want %v", got, want)
	}
}

func TestDecode_DocumentVector(t *testing.T) {
	datagram := buildFrame(t, testIMEI, mustHex(t, docCiphertextHex))

	out, err := Decode(datagram, staticKeys(t, map[string]string{testIMEI: testKeyHex}))
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	if len(out.Records) != 1 {
		t.Fatalf("records=%d want 1", len(out.Records))
	}
	tm, ok := out.Records[0].(Telemetry)
	if !ok {
		t.Fatalf("record=%T want Telemetry", out.Records[0])
	}
	if tm.Count != 48 || len(tm.Items) != 48 {
		t.Fatalf("count=%d items=%d want 48", tm.Count, len(tm.Items))
	}
	if tm.Items[0].ParamID != 0 || tm.Items[0].Data.String() != "100e0000" {
		t.Fatalf("first item=%+v", tm.Items[0])
	}
	if out.PaddingLen != 1 || len(out.Warnings) != 0 {
		t.Fatalf("padding=%d warnings=%v", out.PaddingLen, out.Warnings)
	}
}

func TestEncodeDatagram_GoldenFrame(t *testing.T) {
	got, err := EncodeDatagram(testIMEI, []byte{0x09, 0x00}, mustHex(t, testKeyHex))
	if err != nil {
		t.Fatalf("EncodeDatagram() error: %v", err)
	}
	want := mustHex(t, "c0cb9b558888110300ee2fd31b2a07e2f1c2")
	if !bytes.Equal(got, want) {
		t.Fatalf("frame=%x want %x", got, want)
	}
}

func TestPreparePlaintext(t *testing.T) {
	for n := 0; n < 20; n++ {
		plain := PreparePlaintext(bytes.Repeat([]byte{0x5A}, n))
		if len(plain)%8 != 0 || len(plain) < n+2 {
			t.Fatalf("n=%d: len=%d", n, len(plain))
		}
	}
	if got := PreparePlaintext([]byte{0x09, 0x00}); !bytes.Equal(got, mustHex(t, "090000000000f246")) {
		t.Fatalf("PreparePlaintext(0900)=%x", got)
	}
}

func TestDecode_FatalErrors(t *testing.T) {
	good := encryptPlain(t, PreparePlaintext([]byte{0x09, 0x00}))
	keys := staticKeys(t, map[string]string{testIMEI: testKeyHex})

	cases := []struct {
		name     string
		datagram []byte
		keys     KeyResolver
		stage    Stage
		reason   Reason
		withIMEI bool
	}{
		{name: "Empty", datagram: nil, stage: StageFrame, reason: ReasonTooShort},
		{name: "OneByte", datagram: []byte{0xC0}, stage: StageFrame, reason: ReasonTooShort},
		{name: "NoMarkers", datagram: []byte{0x00, 0x01, 0x02}, stage: StageFrame, reason: ReasonInvalidBoundaries},
		{name: "DanglingEscape", datagram: []byte{0xC0, 0xC4, 0xC2}, stage: StageUnstuff, reason: ReasonDanglingEscapeByte},
		{name: "InvalidEscape", datagram: []byte{0xC0, 0xC4, 0x10, 0xC2}, stage: StageUnstuff, reason: ReasonInvalidEscapeSequence},
		{name: "ShortBody", datagram: buildFrame(t, testIMEI, []byte{1, 2, 3}), stage: StageFrame, reason: ReasonBodyTooShort},
		{
			name:     "CiphertextNotBlockAligned",
			datagram: buildFrame(t, testIMEI, make([]byte, 9)),
			keys:     keys,
			stage:    StageXTEA,
			reason:   ReasonInvalidCiphertextLength,
			withIMEI: true,
		},
		{
			name:     "MissingKey",
			datagram: buildFrame(t, "1", good),
			keys:     keys,
			stage:    StageKeyLookup,
			reason:   ReasonMissingKeyForIMEI,
			withIMEI: true,
		},
		{
			name:     "NilResolver",
			datagram: buildFrame(t, testIMEI, good),
			stage:    StageKeyLookup,
			reason:   ReasonMissingKeyForIMEI,
			withIMEI: true,
		},
		{
			name:     "ShortKey",
			datagram: buildFrame(t, testIMEI, good),
			keys:     staticKeys(t, map[string]string{testIMEI: "0011223344556677"}),
			stage:    StageKeyLookup,
			reason:   ReasonInvalidKeyLength,
			withIMEI: true,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out, err := Decode(tc.datagram, tc.keys)
			if out != nil {
				t.Fatalf("expected no outcome, got %+v", out)
			}
			perr := requireProtocolError(t, err, tc.stage, tc.reason)
			if tc.withIMEI && perr.IMEI == "" {
				t.Fatalf("expected imei on error")
			}
			if !tc.withIMEI && perr.IMEI != "" {
				t.Fatalf("unexpected imei %q before device id stage", perr.IMEI)
			}
		})
	}
}

func TestDecode_InvalidBoundariesDetails(t *testing.T) {
	_, err := Decode([]byte{0x00, 0x01, 0x02}, nil)
	perr := requireProtocolError(t, err, StageFrame, ReasonInvalidBoundaries)
	if perr.Details["start"] != 0 || perr.Details["end"] != 2 {
		t.Fatalf("details=%v", perr.Details)
	}
}

func TestDecode_CRCMismatch(t *testing.T) {
	plain := PreparePlaintext([]byte{0x09, 0x00})
	stored := binary.LittleEndian.Uint16(plain[len(plain)-2:])
	binary.LittleEndian.PutUint16(plain[len(plain)-2:], stored^0xFFFF)
	datagram := buildFrame(t, testIMEI, encryptPlain(t, plain))

	_, err := Decode(datagram, staticKeys(t, map[string]string{testIMEI: testKeyHex}))
	perr := requireProtocolError(t, err, StageCRC, ReasonCRCMismatch)
	if perr.IMEI != testIMEI {
		t.Fatalf("imei=%q want %q", perr.IMEI, testIMEI)
	}
	if perr.Details["received"] != int(stored^0xFFFF) || perr.Details["calculated"] != int(stored) {
		t.Fatalf("details=%v", perr.Details)
	}
}

func TestDecoder_InvalidRoundsIsDecryptFailure(t *testing.T) {
	datagram, err := EncodeDatagram(testIMEI, []byte{0x09, 0x00}, mustHex(t, testKeyHex))
	if err != nil {
		t.Fatalf("EncodeDatagram() error: %v", err)
	}
	d := Decoder{Keys: staticKeys(t, map[string]string{testIMEI: testKeyHex}), Rounds: -1}
	_, err = d.Decode(datagram)
	perr := requireProtocolError(t, err, StageXTEA, ReasonDecryptFailed)
	if _, ok := perr.Details["message"].(string); !ok {
		t.Fatalf("details=%v", perr.Details)
	}
}

func TestDecode_NonFatalIssuesKeepOutcome(t *testing.T) {
	payload := mustHex(t, "0407"+"0c0102")
	datagram, err := EncodeDatagram(testIMEI, payload, mustHex(t, testKeyHex))
	if err != nil {
		t.Fatalf("EncodeDatagram() error: %v", err)
	}
	out, err := Decode(datagram, staticKeys(t, map[string]string{testIMEI: testKeyHex}))
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	if got, want := recordIDs(out.Records), []int{4, 12}; !reflect.DeepEqual(got, want) {
		t.Fatalf("ids=%v want %v", got, want)
	}
	if len(out.Issues) != 1 || out.Issues[0].Reason != ReasonRTU800ExtendedID {
		t.Fatalf("issues=%+v", out.Issues)
	}
	// The extended record swallows the zero padding as part of its raw tail.
	if out.PaddingLen != 0 {
		t.Fatalf("padding=%d want 0", out.PaddingLen)
	}
}

func TestOutcome_JSONShape(t *testing.T) {
	datagram, err := EncodeDatagram(testIMEI, []byte{0x09, 0x00}, mustHex(t, testKeyHex))
	if err != nil {
		t.Fatalf("EncodeDatagram() error: %v", err)
	}
	out, err := Decode(datagram, staticKeys(t, map[string]string{testIMEI: testKeyHex}))
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	got, err := json.Marshal(out)
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}
	want := `{"imei":"863703030668235","frame_ok":true,"crc_ok":true,"payload_hex":"0900","padding_len":4,` +
		`"records":[{"id":9,"type":"telemetry","count":0,"items":[]}],"warnings":[],"nonfatal_errors":[]}`
	if string(got) != want {
		t.Fatalf("json=%s\nwant %s", got, want)
	}
}
