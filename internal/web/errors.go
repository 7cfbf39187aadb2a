package web

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"rtu-receiver/internal/jsonl"
)

// RecentErrors keeps the newest error records in memory. It is a jsonl.Sink
// that ignores raw and decoded records.
type RecentErrors struct {
	mu      sync.Mutex
	max     int
	records []jsonl.ErrorRecord
	dropped uint64
}

func NewRecentErrors(max int) *RecentErrors {
	if max <= 0 {
		max = 500
	}
	return &RecentErrors{max: max}
}

func (b *RecentErrors) WriteRaw(jsonl.RawRecord) error         { return nil }
func (b *RecentErrors) WriteDecoded(jsonl.DecodedRecord) error { return nil }

func (b *RecentErrors) WriteError(rec jsonl.ErrorRecord) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.records = append(b.records, rec)
	if len(b.records) > b.max {
		over := len(b.records) - b.max
		b.records = append(b.records[:0:0], b.records[over:]...)
		b.dropped += uint64(over)
	}
	return nil
}

// Snapshot returns up to tail newest records, oldest first, and how many
// records have been evicted so far.
func (b *RecentErrors) Snapshot(tail int) (records []jsonl.ErrorRecord, dropped uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	dropped = b.dropped
	if tail <= 0 {
		tail = 100
	}
	if tail > len(b.records) {
		tail = len(b.records)
	}
	records = append([]jsonl.ErrorRecord{}, b.records[len(b.records)-tail:]...)
	return records, dropped
}

type ErrorsResponse struct {
	NowUTC  string              `json:"now_utc"`
	Dropped uint64              `json:"dropped"`
	Errors  []jsonl.ErrorRecord `json:"errors"`
}

func (b *RecentErrors) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !allowGet(w, r) {
			return
		}

		tail := 100
		if s := strings.TrimSpace(r.URL.Query().Get("tail")); s != "" {
			v, err := strconv.Atoi(s)
			if err != nil || v < 1 || v > 5000 {
				http.Error(w, "tail must be an integer in [1,5000]", http.StatusBadRequest)
				return
			}
			tail = v
		}

		records, dropped := b.Snapshot(tail)
		writeJSON(w, ErrorsResponse{
			NowUTC:  time.Now().UTC().Format(time.RFC3339Nano),
			Dropped: dropped,
			Errors:  records,
		})
	})
}
