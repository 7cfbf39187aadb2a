package protocol

import "fmt"

// Stage names the pipeline step that produced an Error or Issue.
type Stage string

const (
	StageFrame        Stage = "frame"
	StageUnstuff      Stage = "unstuff"
	StageIMEI         Stage = "imei"
	StageXTEA         Stage = "xtea"
	StageKeyLookup    Stage = "key_lookup"
	StageCRC          Stage = "crc"
	StagePayloadParse Stage = "payload_parse"
)

// Reason is the machine-readable cause within a Stage.
type Reason string

// Fatal reasons.
const (
	ReasonTooShort                Reason = "too_short"
	ReasonInvalidBoundaries       Reason = "invalid_boundaries"
	ReasonBodyTooShort            Reason = "body_too_short"
	ReasonDanglingEscapeByte      Reason = "dangling_escape_byte"
	ReasonInvalidEscapeSequence   Reason = "invalid_escape_sequence"
	ReasonInvalidIMEIBytesLength  Reason = "invalid_imei_bytes_length"
	ReasonInvalidCiphertextLength Reason = "invalid_ciphertext_length"
	ReasonDecryptFailed           Reason = "decrypt_failed"
	ReasonMissingKeyForIMEI       Reason = "missing_key_for_imei"
	ReasonInvalidKeyLength        Reason = "invalid_key_length"
	ReasonPlaintextTooShort       Reason = "plaintext_too_short"
	ReasonCRCMismatch             Reason = "crc_mismatch"
)

// Non-fatal reasons.
const (
	ReasonRecordParseFailed    Reason = "record_parse_failed"
	ReasonUnknownDataID        Reason = "unknown_data_id"
	ReasonRTU800ExtendedID     Reason = "rtu800_extended_id"
	ReasonUnknownTypeID        Reason = "unknown_type_id"
	ReasonEventTypeLenMismatch Reason = "event_type_len_mismatch"
)

// WarningPayloadParseError is the warning tag recorded next to a
// record_parse_failed issue.
const WarningPayloadParseError = "payload_parse_error"

// Details carries the structured context of an Error or Issue. Values are
// ints or strings so they encode to plain JSON.
type Details map[string]any

// Error is a fatal decode failure. IMEI is empty until the device id has been
// read from the frame.
type Error struct {
	Stage   Stage
	Reason  Reason
	Details Details
	IMEI    string
}

func (e *Error) Error() string {
	if e.IMEI != "" {
		return fmt.Sprintf("%s:%s (imei %s)", e.Stage, e.Reason, e.IMEI)
	}
	return fmt.Sprintf("%s:%s", e.Stage, e.Reason)
}

func newError(stage Stage, reason Reason, details Details) *Error {
	if details == nil {
		details = Details{}
	}
	return &Error{Stage: stage, Reason: reason, Details: details}
}

func (e *Error) withIMEI(imei string) *Error {
	e.IMEI = imei
	return e
}

// Issue is a non-fatal anomaly found while walking a decrypted payload.
type Issue struct {
	Stage   Stage   `json:"stage"`
	Reason  Reason  `json:"reason"`
	Details Details `json:"details"`
}

// diagnostics accumulates warning tags and issues in order of occurrence.
type diagnostics struct {
	warnings []string
	issues   []Issue
}

func (d *diagnostics) add(warning string, reason Reason, details Details) {
	d.warnings = append(d.warnings, warning)
	d.issues = append(d.issues, Issue{Stage: StagePayloadParse, Reason: reason, Details: details})
}

func (d *diagnostics) merge(o diagnostics) {
	d.warnings = append(d.warnings, o.warnings...)
	d.issues = append(d.issues, o.issues...)
}
