package receiver

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"rtu-receiver/internal/protocol"
)

// Status holds live receiver counters. The zero value is ready to use, and a
// nil *Status records nothing and snapshots as empty.
type Status struct {
	startUnixNano    int64
	received         uint64
	dropped          uint64
	decoded          uint64
	fatal            uint64
	sinkErrors       uint64
	lastDatagramNano int64
	listen           atomic.Value // string

	mu             sync.Mutex
	fatalByReason  map[protocol.Reason]uint64
	issuesByReason map[protocol.Reason]uint64
	devices        map[string]uint64
}

func NewStatus() *Status {
	s := &Status{
		fatalByReason:  map[protocol.Reason]uint64{},
		issuesByReason: map[protocol.Reason]uint64{},
		devices:        map[string]uint64{},
	}
	atomic.StoreInt64(&s.startUnixNano, time.Now().UTC().UnixNano())
	s.listen.Store("")
	return s
}

func (s *Status) SetListen(addr string) {
	if s == nil {
		return
	}
	s.listen.Store(addr)
}

func (s *Status) markReceived(at time.Time) {
	if s == nil {
		return
	}
	atomic.AddUint64(&s.received, 1)
	atomic.StoreInt64(&s.lastDatagramNano, at.UTC().UnixNano())
}

func (s *Status) markDropped() {
	if s == nil {
		return
	}
	atomic.AddUint64(&s.dropped, 1)
}

func (s *Status) markSinkError() {
	if s == nil {
		return
	}
	atomic.AddUint64(&s.sinkErrors, 1)
}

func (s *Status) markFatal(reason protocol.Reason) {
	if s == nil {
		return
	}
	atomic.AddUint64(&s.fatal, 1)
	s.mu.Lock()
	s.initLocked()
	s.fatalByReason[reason]++
	s.mu.Unlock()
}

func (s *Status) markDecoded(out *protocol.Outcome) {
	if s == nil {
		return
	}
	atomic.AddUint64(&s.decoded, 1)
	s.mu.Lock()
	s.initLocked()
	s.devices[out.IMEI]++
	for _, issue := range out.Issues {
		s.issuesByReason[issue.Reason]++
	}
	s.mu.Unlock()
}

func (s *Status) initLocked() {
	if s.fatalByReason == nil {
		s.fatalByReason = map[protocol.Reason]uint64{}
	}
	if s.issuesByReason == nil {
		s.issuesByReason = map[protocol.Reason]uint64{}
	}
	if s.devices == nil {
		s.devices = map[string]uint64{}
	}
}

type StatusSnapshot struct {
	Service         string            `json:"service"`
	NowUTC          string            `json:"now_utc"`
	UptimeSec       int64             `json:"uptime_sec"`
	Listen          string            `json:"listen"`
	Received        uint64            `json:"received_total"`
	Dropped         uint64            `json:"dropped_total"`
	Decoded         uint64            `json:"decoded_total"`
	Fatal           uint64            `json:"fatal_total"`
	SinkErrors      uint64            `json:"sink_errors_total"`
	LastDatagramUTC string            `json:"last_datagram_utc,omitempty"`
	FatalByReason   map[string]uint64 `json:"fatal_by_reason"`
	IssuesByReason  map[string]uint64 `json:"nonfatal_by_reason"`
	Devices         []DeviceCount     `json:"devices"`
}

type DeviceCount struct {
	IMEI    string `json:"imei"`
	Decoded uint64 `json:"decoded"`
}

func (s *Status) Snapshot(nowUTC time.Time) StatusSnapshot {
	if nowUTC.IsZero() {
		nowUTC = time.Now().UTC()
	}
	snap := StatusSnapshot{
		Service:        "rtu-receiver",
		NowUTC:         nowUTC.UTC().Format(time.RFC3339Nano),
		FatalByReason:  map[string]uint64{},
		IssuesByReason: map[string]uint64{},
		Devices:        []DeviceCount{},
	}
	if s == nil {
		return snap
	}
	if start := atomic.LoadInt64(&s.startUnixNano); start != 0 {
		snap.UptimeSec = int64(nowUTC.Sub(time.Unix(0, start)).Seconds())
	}
	snap.Listen, _ = s.listen.Load().(string)
	snap.Received = atomic.LoadUint64(&s.received)
	snap.Dropped = atomic.LoadUint64(&s.dropped)
	snap.Decoded = atomic.LoadUint64(&s.decoded)
	snap.Fatal = atomic.LoadUint64(&s.fatal)
	snap.SinkErrors = atomic.LoadUint64(&s.sinkErrors)
	if last := atomic.LoadInt64(&s.lastDatagramNano); last != 0 {
		snap.LastDatagramUTC = time.Unix(0, last).UTC().Format(time.RFC3339Nano)
	}

	s.mu.Lock()
	for r, n := range s.fatalByReason {
		snap.FatalByReason[string(r)] = n
	}
	for r, n := range s.issuesByReason {
		snap.IssuesByReason[string(r)] = n
	}
	for imei, n := range s.devices {
		snap.Devices = append(snap.Devices, DeviceCount{IMEI: imei, Decoded: n})
	}
	s.mu.Unlock()

	sort.Slice(snap.Devices, func(i, j int) bool { return snap.Devices[i].IMEI < snap.Devices[j].IMEI })
	return snap
}
