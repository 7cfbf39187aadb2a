package protocol

import (
	"encoding/binary"
	"errors"
)

// Payload is the result of walking a checksum-stripped plaintext.
type Payload struct {
	// Used is the prefix of the buffer consumed by records; the rest is
	// zero padding.
	Used       []byte
	PaddingLen int
	Records    []Record
	Warnings   []string
	Issues     []Issue
}

// truncatedError reports a fixed-size read past the end of the buffer. Its
// message is the name of the field being read.
type truncatedError struct {
	field     string
	need      int
	available int
}

func (e *truncatedError) Error() string { return e.field }

// cursor reads forward through a payload buffer.
type cursor struct {
	buf []byte
	off int
}

func (c *cursor) remaining() int { return len(c.buf) - c.off }

func (c *cursor) require(n int, field string) error {
	if c.off+n > len(c.buf) {
		return &truncatedError{field: field, need: n, available: c.remaining()}
	}
	return nil
}

// take returns the next n bytes; require must have succeeded.
func (c *cursor) take(n int) []byte {
	b := c.buf[c.off : c.off+n]
	c.off += n
	return b
}

func (c *cursor) rest() []byte {
	b := c.buf[c.off:]
	c.off = len(c.buf)
	return b
}

// atPadding reports whether the cursor sits on an all-zero tail.
func (c *cursor) atPadding() bool {
	for _, b := range c.buf[c.off:] {
		if b != 0 {
			return false
		}
	}
	return true
}

// ParsePayload decodes records from buf until the buffer ends or only zero
// padding remains. A truncated record stops the walk: the failure is recorded
// as an issue and the bytes after its data id are kept as a final Unknown
// record.
func ParsePayload(buf []byte) Payload {
	p := Payload{
		Records:  make([]Record, 0, 4),
		Warnings: make([]string, 0),
		Issues:   make([]Issue, 0),
	}
	var diag diagnostics

	c := &cursor{buf: buf}
	for c.remaining() > 0 {
		if c.buf[c.off] == 0 && c.atPadding() {
			break
		}

		id := c.take(1)[0]
		start := c.off
		rec, recDiag, err := parseRecord(id, c)
		if err != nil {
			details := Details{
				"data_id": int(id),
				"offset":  start,
				"message": err.Error(),
			}
			var te *truncatedError
			if errors.As(err, &te) {
				details["needed"] = te.need
				details["available"] = te.available
			}
			diag.add(WarningPayloadParseError, ReasonRecordParseFailed, details)
			p.Records = append(p.Records, Unknown{
				Header:     Header{ID: id, Type: KindUnknown},
				Raw:        clone(buf[start:]),
				ParseError: err.Error(),
			})
			c.off = len(buf)
			break
		}
		p.Records = append(p.Records, rec)
		diag.merge(recDiag)
	}

	p.Used = buf[:c.off]
	p.PaddingLen = len(buf) - c.off
	p.Warnings = append(p.Warnings, diag.warnings...)
	p.Issues = append(p.Issues, diag.issues...)
	return p
}

// parseRecord decodes the body of one record whose data id has already been
// consumed. On error the cursor position is unspecified.
func parseRecord(id byte, c *cursor) (Record, diagnostics, error) {
	var diag diagnostics

	switch {
	case id == IDConfigCommand || id == IDReadCommand:
		kind := KindConfigCommand
		if id == IDReadCommand {
			kind = KindReadCommand
		}
		if err := c.require(2, "truncated_param_len_data_header"); err != nil {
			return nil, diag, err
		}
		hdr := c.take(2)
		n := int(hdr[1])
		if err := c.require(n, "truncated_param_len_data_value"); err != nil {
			return nil, diag, err
		}
		return ParamCommand{
			Header:  Header{ID: id, Type: kind},
			ParamID: hdr[0],
			Len:     n,
			Data:    clone(c.take(n)),
		}, diag, nil

	case id == IDConfigResponse:
		if err := c.require(2, "truncated_response"); err != nil {
			return nil, diag, err
		}
		b := c.take(2)
		return ConfigResponse{
			Header:     Header{ID: id, Type: KindConfigResponse},
			ParamID:    b[0],
			ResultCode: b[1],
		}, diag, nil

	case id == IDArchive:
		return parseArchive(c)

	case id == IDArchiveAck:
		if err := c.require(1, "truncated_archive_ack"); err != nil {
			return nil, diag, err
		}
		return ArchiveAck{
			Header: Header{ID: id, Type: KindArchiveAck},
			Seq:    c.take(1)[0],
		}, diag, nil

	case id == IDReadResponse:
		if err := c.require(3, "truncated_read_response_header"); err != nil {
			return nil, diag, err
		}
		hdr := c.take(3)
		n := int(hdr[2])
		if err := c.require(n, "truncated_read_response_data"); err != nil {
			return nil, diag, err
		}
		return ReadResponse{
			Header:     Header{ID: id, Type: KindReadResponse},
			ParamID:    hdr[0],
			ResultCode: hdr[1],
			Len:        n,
			Data:       clone(c.take(n)),
		}, diag, nil

	case id == IDAuth:
		return Auth{
			Header: Header{ID: id, Type: KindAuth},
			Raw:    clone(c.rest()),
		}, diag, nil

	case id == IDTelemetry:
		return parseTelemetry(c)

	case id >= IDExtendedFirst && id <= IDExtendedLast:
		diag.add(string(ReasonRTU800ExtendedID), ReasonRTU800ExtendedID, Details{"data_id": int(id)})
		return Extended{
			Header: Header{ID: id, Type: KindRTU800Extended},
			Raw:    clone(c.rest()),
		}, diag, nil

	default:
		diag.add(string(ReasonUnknownDataID), ReasonUnknownDataID, Details{"data_id": int(id)})
		return Unknown{
			Header: Header{ID: id, Type: KindUnknown},
			Raw:    clone(c.rest()),
		}, diag, nil
	}
}

// parseArchive reads a sequence number followed by events until the buffer
// ends or only padding remains. Problems inside one event's data are reported
// as issues and do not change how far the cursor advances.
func parseArchive(c *cursor) (Record, diagnostics, error) {
	var diag diagnostics
	if err := c.require(1, "truncated_archive_seq"); err != nil {
		return nil, diag, err
	}
	rec := Archive{
		Header: Header{ID: IDArchive, Type: KindArchive},
		Seq:    c.take(1)[0],
		Events: make([]ArchiveEvent, 0, 2),
	}

	for c.remaining() > 0 {
		if c.buf[c.off] == 0 && c.atPadding() {
			break
		}
		if err := c.require(6, "truncated_event_header"); err != nil {
			return nil, diag, err
		}
		hdr := c.take(6)
		n := int(hdr[5])
		if err := c.require(n, "truncated_event_data"); err != nil {
			return nil, diag, err
		}
		entries, eventDiag := parseEventData(c.take(n))
		diag.merge(eventDiag)
		rec.Events = append(rec.Events, ArchiveEvent{
			Code:    hdr[0],
			Time:    binary.LittleEndian.Uint32(hdr[1:5]),
			DataLen: n,
			Entries: entries,
		})
	}
	return rec, diag, nil
}

func parseTelemetry(c *cursor) (Record, diagnostics, error) {
	var diag diagnostics
	if err := c.require(1, "truncated_telemetry_count"); err != nil {
		return nil, diag, err
	}
	count := int(c.take(1)[0])
	rec := Telemetry{
		Header: Header{ID: IDTelemetry, Type: KindTelemetry},
		Count:  count,
		Items:  make([]TelemetryItem, 0, count),
	}
	for i := 0; i < count; i++ {
		if err := c.require(2, "truncated_telemetry_item_header"); err != nil {
			return nil, diag, err
		}
		hdr := c.take(2)
		n := int(hdr[1])
		if err := c.require(n, "truncated_telemetry_item_data"); err != nil {
			return nil, diag, err
		}
		rec.Items = append(rec.Items, TelemetryItem{
			ParamID: hdr[0],
			Len:     n,
			Data:    clone(c.take(n)),
		})
	}
	return rec, diag, nil
}
