package jsonl

import (
	"time"

	"rtu-receiver/internal/protocol"
)

// TimeFormat is used for ts_utc in every stream.
const TimeFormat = "2006-01-02T15:04:05.000000Z07:00"

// Stream names one of the daily-rotated output files.
type Stream string

const (
	StreamRaw     Stream = "raw"
	StreamDecoded Stream = "decoded"
	StreamErrors  Stream = "errors"
)

// Source identifies where a datagram came from.
type Source struct {
	IP   string `json:"src_ip"`
	Port int    `json:"src_port"`
}

// Meta is shared by all records for one received datagram.
type Meta struct {
	TS   string `json:"ts_utc"`
	RxID string `json:"rx_id"`
	Source
}

func NewMeta(at time.Time, rxID string, src Source) Meta {
	return Meta{TS: FormatTime(at), RxID: rxID, Source: src}
}

func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeFormat)
}

// RawRecord is written for every datagram before decoding.
type RawRecord struct {
	Meta
	Len      int               `json:"len"`
	Datagram protocol.HexBytes `json:"datagram_hex"`
}

// DecodedRecord is a successful decode.
type DecodedRecord struct {
	Meta
	*protocol.Outcome
}

// ErrorRecord is either a fatal decode failure or one non-fatal issue of a
// successful decode. IMEI is null when the device id was never read.
type ErrorRecord struct {
	Meta
	Stage    protocol.Stage    `json:"stage"`
	Reason   protocol.Reason   `json:"reason"`
	IMEI     *string           `json:"imei"`
	Datagram protocol.HexBytes `json:"datagram_hex"`
	Details  protocol.Details  `json:"details"`
}

func NewRawRecord(meta Meta, datagram []byte) RawRecord {
	return RawRecord{Meta: meta, Len: len(datagram), Datagram: datagram}
}

// NewErrorRecord builds the record for a fatal decode error.
func NewErrorRecord(meta Meta, datagram []byte, err *protocol.Error) ErrorRecord {
	rec := ErrorRecord{
		Meta:     meta,
		Stage:    err.Stage,
		Reason:   err.Reason,
		Datagram: datagram,
		Details:  nonNilDetails(err.Details),
	}
	if err.IMEI != "" {
		imei := err.IMEI
		rec.IMEI = &imei
	}
	return rec
}

// NewIssueRecord builds the record for a non-fatal issue found while decoding
// a frame from imei.
func NewIssueRecord(meta Meta, datagram []byte, imei string, issue protocol.Issue) ErrorRecord {
	return ErrorRecord{
		Meta:     meta,
		Stage:    issue.Stage,
		Reason:   issue.Reason,
		IMEI:     &imei,
		Datagram: datagram,
		Details:  nonNilDetails(issue.Details),
	}
}

func nonNilDetails(d protocol.Details) protocol.Details {
	if d == nil {
		return protocol.Details{}
	}
	return d
}
