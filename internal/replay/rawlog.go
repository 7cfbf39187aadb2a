package replay

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"rtu-receiver/internal/jsonl"
)

// Raw logs are the raw-*.jsonl files written by the receiver: one JSON object
// per line with ts_utc, rx_id, src_ip, src_port, len and datagram_hex. Blank
// lines are ignored.

type Record struct {
	At       time.Time
	RxID     string
	Source   jsonl.Source
	Datagram []byte
}

type Reader struct {
	r io.Reader
}

func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

// ReadFile reads every record of a raw log file.
func ReadFile(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return NewReader(f).ReadAll()
}

func (rr *Reader) ReadAll() ([]Record, error) {
	s := bufio.NewScanner(rr.r)
	// A 65535-byte datagram is 131070 hex characters.
	s.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	recs := make([]Record, 0, 1024)
	lineNo := 0
	for s.Scan() {
		lineNo++
		line := strings.TrimSpace(s.Text())
		if line == "" {
			continue
		}

		var raw jsonl.RawRecord
		if err := json.Unmarshal([]byte(line), &raw); err != nil {
			return nil, fmt.Errorf("invalid raw log line %d: %w", lineNo, err)
		}
		at, err := time.Parse(time.RFC3339Nano, raw.TS)
		if err != nil {
			return nil, fmt.Errorf("invalid raw log timestamp on line %d: %w", lineNo, err)
		}
		if raw.Len != 0 && raw.Len != len(raw.Datagram) {
			return nil, fmt.Errorf("raw log line %d: len=%d but datagram has %d bytes", lineNo, raw.Len, len(raw.Datagram))
		}

		recs = append(recs, Record{
			At:       at,
			RxID:     raw.RxID,
			Source:   raw.Source,
			Datagram: []byte(raw.Datagram),
		})
	}
	if err := s.Err(); err != nil {
		return nil, err
	}
	return recs, nil
}

// ToRaw converts a record back into the sink shape.
func (r Record) ToRaw() jsonl.RawRecord {
	return jsonl.NewRawRecord(jsonl.NewMeta(r.At, r.RxID, r.Source), r.Datagram)
}

type Sleeper interface {
	Sleep(d time.Duration)
}

type realSleeper struct{}

func (realSleeper) Sleep(d time.Duration) { time.Sleep(d) }

// Play invokes cb for each record, waiting the gap between consecutive
// ts_utc values divided by speedMultiplier. Out-of-order timestamps do not
// wait. Play stops early when ctx is done.
//
// speedMultiplier: 1.0 = real time, 2.0 = 2x speed (half waits), 0.5 = half speed.
func Play(ctx context.Context, records []Record, speedMultiplier float64, sleeper Sleeper, cb func(Record) error) error {
	if speedMultiplier <= 0 {
		return fmt.Errorf("speedMultiplier must be > 0")
	}
	if sleeper == nil {
		sleeper = realSleeper{}
	}
	if cb == nil {
		return errors.New("callback is nil")
	}
	if len(records) == 0 {
		return errors.New("no records")
	}

	var last time.Time
	for i, r := range records {
		if err := ctx.Err(); err != nil {
			return err
		}
		if i > 0 {
			wait := r.At.Sub(last)
			if wait > 0 {
				sleeper.Sleep(time.Duration(float64(wait) / speedMultiplier))
			}
		}
		if err := cb(r); err != nil {
			return err
		}
		last = r.At
	}
	return nil
}
