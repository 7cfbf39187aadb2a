package jsonl

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

var ErrClosed = errors.New("jsonl writer is closed")

// Sink receives the three output streams of the receiver.
type Sink interface {
	WriteRaw(RawRecord) error
	WriteDecoded(DecodedRecord) error
	WriteError(ErrorRecord) error
}

// Writer appends one JSON object per line to <dir>/<stream>-YYYYMMDD.jsonl.
// Files stay open and are swapped when the UTC date changes. Safe for
// concurrent use.
type Writer struct {
	dir string
	now func() time.Time

	mu     sync.Mutex
	files  map[Stream]*dayFile
	closed bool
}

type dayFile struct {
	day string
	f   *os.File
}

func NewWriter(dir string) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	return &Writer{dir: dir, now: time.Now, files: map[Stream]*dayFile{}}, nil
}

// Path is the file a record written at t lands in.
func (w *Writer) Path(stream Stream, t time.Time) string {
	return filepath.Join(w.dir, fmt.Sprintf("%s-%s.jsonl", stream, t.UTC().Format("20060102")))
}

func (w *Writer) WriteRaw(rec RawRecord) error         { return w.write(StreamRaw, rec) }
func (w *Writer) WriteDecoded(rec DecodedRecord) error { return w.write(StreamDecoded, rec) }
func (w *Writer) WriteError(rec ErrorRecord) error     { return w.write(StreamErrors, rec) }

func (w *Writer) write(stream Stream, rec any) error {
	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal %s record: %w", stream, err)
	}
	line = append(line, '\n')

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}
	f, err := w.fileLocked(stream)
	if err != nil {
		return err
	}
	if _, err := f.Write(line); err != nil {
		return fmt.Errorf("write %s: %w", f.Name(), err)
	}
	return nil
}

func (w *Writer) fileLocked(stream Stream) (*os.File, error) {
	now := w.now().UTC()
	day := now.Format("20060102")
	if cur := w.files[stream]; cur != nil {
		if cur.day == day {
			return cur.f, nil
		}
		_ = cur.f.Close()
		delete(w.files, stream)
	}
	path := w.Path(stream, now)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	w.files[stream] = &dayFile{day: day, f: f}
	return f, nil
}

func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	var errs []error
	for stream, df := range w.files {
		if err := df.f.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(w.files, stream)
	}
	return errors.Join(errs...)
}

// Tee fans every record out to all sinks and returns the first error after
// trying each one.
func Tee(sinks ...Sink) Sink { return tee(sinks) }

type tee []Sink

func (t tee) WriteRaw(rec RawRecord) error {
	return t.each(func(s Sink) error { return s.WriteRaw(rec) })
}

func (t tee) WriteDecoded(rec DecodedRecord) error {
	return t.each(func(s Sink) error { return s.WriteDecoded(rec) })
}

func (t tee) WriteError(rec ErrorRecord) error {
	return t.each(func(s Sink) error { return s.WriteError(rec) })
}

func (t tee) each(fn func(Sink) error) error {
	var first error
	for _, s := range t {
		if s == nil {
			continue
		}
		if err := fn(s); err != nil && first == nil {
			first = err
		}
	}
	return first
}
