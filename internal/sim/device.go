package sim

import (
	"encoding/binary"
	"math/rand"
	"time"

	"rtu-receiver/internal/protocol"
)

// Event type ids the simulated meter reports, picked from the documented
// table so every entry decodes cleanly.
var eventTypes = []byte{0, 1, 7, 12, 20, 21, 31, 37, 44, 50, 51}

// Device is a synthetic RTU102 meter. Output depends only on Seed and the
// tick, so runs are reproducible.
type Device struct {
	IMEI string
	Key  []byte
	Seed int64

	// TelemetryItems is the number of telemetry parameters per tick (default 4).
	TelemetryItems int
}

func (d Device) rng(tick uint64) *rand.Rand {
	return rand.New(rand.NewSource(d.Seed ^ int64(tick*0x9E3779B97F4A7C15)))
}

// Payload builds the cleartext record stream for one tick:
//   - archive ack (id 4) every 3rd tick
//   - read response (id 7) every 7th tick
//   - telemetry (id 9) every tick
//   - archive (id 3) every 5th tick, always last since it runs to the end
func (d Device) Payload(tick uint64, now time.Time) []byte {
	r := d.rng(tick)
	out := make([]byte, 0, 64)

	if tick%3 == 0 {
		out = append(out, protocol.IDArchiveAck, byte(tick))
	}
	if tick%7 == 0 {
		out = append(out, protocol.IDReadResponse, 0x01, 0x00, 4)
		out = binary.LittleEndian.AppendUint32(out, uint32(tick))
	}

	items := d.TelemetryItems
	if items <= 0 {
		items = 4
	}
	if items > 255 {
		items = 255
	}
	out = append(out, protocol.IDTelemetry, byte(items))
	for i := 0; i < items; i++ {
		out = append(out, byte(i), 4)
		out = binary.LittleEndian.AppendUint32(out, r.Uint32())
	}

	if tick%5 == 0 {
		out = append(out, protocol.IDArchive, byte(tick))
		events := 1 + r.Intn(2)
		for e := 0; e < events; e++ {
			out = appendEvent(out, r, now.Add(-time.Duration(events-e)*time.Minute))
		}
	}
	return out
}

func appendEvent(dst []byte, r *rand.Rand, at time.Time) []byte {
	data := make([]byte, 0, 16)
	for n := 1 + r.Intn(3); n > 0; n-- {
		typeID := eventTypes[r.Intn(len(eventTypes))]
		size, _ := protocol.EventTypeLen(typeID)
		data = append(data, typeID)
		for i := 0; i < size; i++ {
			data = append(data, byte(r.Intn(256)))
		}
	}
	// Non-zero code so the event is never mistaken for padding.
	code := byte(1 + r.Intn(200))
	dst = append(dst, code)
	dst = binary.LittleEndian.AppendUint32(dst, uint32(at.Unix()))
	dst = append(dst, byte(len(data)))
	return append(dst, data...)
}

// Frame encrypts and frames the tick's payload.
func (d Device) Frame(tick uint64, now time.Time) ([]byte, error) {
	return protocol.EncodeDatagram(d.IMEI, d.Payload(tick, now), d.Key)
}
