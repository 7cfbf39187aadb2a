package protocol

import (
	"encoding/hex"
	"time"
)

// Kind is the record variant name as it appears in decoded output.
type Kind string

const (
	KindConfigCommand  Kind = "config_command"
	KindConfigResponse Kind = "config_response"
	KindArchive        Kind = "archive"
	KindArchiveAck     Kind = "archive_ack"
	KindReadCommand    Kind = "read_command"
	KindReadResponse   Kind = "read_response"
	KindAuth           Kind = "auth"
	KindTelemetry      Kind = "telemetry"
	KindRTU800Extended Kind = "rtu800_extended"
	KindUnknown        Kind = "unknown"
)

// Data ids carried in the first byte of every record.
const (
	IDConfigCommand  byte = 1
	IDConfigResponse byte = 2
	IDArchive        byte = 3
	IDArchiveAck     byte = 4
	IDReadCommand    byte = 6
	IDReadResponse   byte = 7
	IDAuth           byte = 8
	IDTelemetry      byte = 9
	IDExtendedFirst  byte = 10
	IDExtendedLast   byte = 14
)

// HexBytes encodes as a lowercase hex string in JSON.
type HexBytes []byte

func (h HexBytes) MarshalText() ([]byte, error) {
	out := make([]byte, hex.EncodedLen(len(h)))
	hex.Encode(out, h)
	return out, nil
}

func (h *HexBytes) UnmarshalText(text []byte) error {
	b := make([]byte, hex.DecodedLen(len(text)))
	n, err := hex.Decode(b, text)
	if err != nil {
		return err
	}
	*h = b[:n]
	return nil
}

func (h HexBytes) String() string { return hex.EncodeToString(h) }

// Record is one decoded entry of a payload. The concrete types below are the
// complete set.
type Record interface {
	DataID() byte
	Kind() Kind
	isRecord()
}

// Header is embedded in every record so the JSON form always leads with id
// and type.
type Header struct {
	ID   byte `json:"id"`
	Type Kind `json:"type"`
}

func (h Header) DataID() byte { return h.ID }
func (h Header) Kind() Kind   { return h.Type }

// ParamCommand is a config_command (id 1) or read_command (id 6).
type ParamCommand struct {
	Header
	ParamID byte     `json:"param_id"`
	Len     int      `json:"len"`
	Data    HexBytes `json:"data_hex"`
}

type ConfigResponse struct {
	Header
	ParamID    byte `json:"param_id"`
	ResultCode byte `json:"result_code"`
}

type Archive struct {
	Header
	Seq    byte           `json:"seq"`
	Events []ArchiveEvent `json:"events"`
}

type ArchiveEvent struct {
	Code    byte         `json:"event_code"`
	Time    uint32       `json:"event_time"`
	DataLen int          `json:"event_data_len"`
	Entries []EventEntry `json:"event_data"`
}

// Timestamp interprets Time as Unix seconds.
func (e ArchiveEvent) Timestamp() time.Time {
	return time.Unix(int64(e.Time), 0).UTC()
}

// EventEntry is one typed value inside an archive event. Exactly one of the
// three shapes applies: a known fixed-length value (Len > 0), an unknown type
// id, or a length mismatch. In the last two cases Raw holds everything that
// remained in the event data.
type EventEntry struct {
	TypeID      byte     `json:"type_id"`
	Len         int      `json:"len,omitempty"`
	Raw         HexBytes `json:"raw_hex"`
	Unknown     bool     `json:"unknown,omitempty"`
	LenMismatch bool     `json:"len_mismatch,omitempty"`
}

type ArchiveAck struct {
	Header
	Seq byte `json:"seq"`
}

type ReadResponse struct {
	Header
	ParamID    byte     `json:"param_id"`
	ResultCode byte     `json:"result_code"`
	Len        int      `json:"len"`
	Data       HexBytes `json:"data_hex"`
}

type Auth struct {
	Header
	Raw HexBytes `json:"raw_hex"`
}

type Telemetry struct {
	Header
	Count int             `json:"count"`
	Items []TelemetryItem `json:"items"`
}

type TelemetryItem struct {
	ParamID byte     `json:"param_id"`
	Len     int      `json:"len"`
	Data    HexBytes `json:"data_hex"`
}

// Extended is an RTU800 data id (10..14) carried opaquely.
type Extended struct {
	Header
	Raw HexBytes `json:"raw_hex"`
}

// Unknown holds bytes that could not be decoded: an unrecognised data id, or
// the tail of the buffer after a record failed to parse (ParseError set).
type Unknown struct {
	Header
	Raw        HexBytes `json:"raw_hex"`
	ParseError string   `json:"parse_error,omitempty"`
}

func (ParamCommand) isRecord()   {}
func (ConfigResponse) isRecord() {}
func (Archive) isRecord()        {}
func (ArchiveAck) isRecord()     {}
func (ReadResponse) isRecord()   {}
func (Auth) isRecord()           {}
func (Telemetry) isRecord()      {}
func (Extended) isRecord()       {}
func (Unknown) isRecord()        {}
