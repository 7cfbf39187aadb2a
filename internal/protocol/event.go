package protocol

// eventTypeLengths holds the fixed value size of every documented archive
// event type id. Zero marks an undocumented id.
var eventTypeLengths = [...]uint8{
	0: 4, 1: 4, 2: 4, 3: 4,
	6: 4, 7: 1, 8: 1, 9: 1, 10: 1, 11: 1,
	12: 4, 13: 4, 14: 4, 15: 4, 16: 4, 17: 4, 18: 4, 19: 4,
	20: 1, 21: 4, 22: 1, 23: 1, 24: 1, 25: 1, 26: 1,
	27: 4, 28: 4, 29: 4, 30: 4,
	31: 1, 32: 1, 33: 1,
	37: 4, 38: 4, 39: 4, 40: 4, 41: 4, 42: 4, 43: 4,
	44: 1, 45: 1, 46: 1, 47: 1, 48: 1, 49: 1,
	50: 4, 51: 1,
}

// EventTypeLen reports the fixed value length of an archive event type id.
func EventTypeLen(typeID byte) (int, bool) {
	if int(typeID) >= len(eventTypeLengths) || eventTypeLengths[typeID] == 0 {
		return 0, false
	}
	return int(eventTypeLengths[typeID]), true
}

// parseEventData splits one event's data into typed entries. An unknown type
// id or a value running past the end produces a final marker entry holding
// the remaining bytes and stops; the caller's offset is unaffected.
func parseEventData(data []byte) ([]EventEntry, diagnostics) {
	entries := make([]EventEntry, 0, 4)
	var diag diagnostics

	off := 0
	for off < len(data) {
		typeID := data[off]
		off++

		n, ok := EventTypeLen(typeID)
		if !ok {
			diag.add(string(ReasonUnknownTypeID), ReasonUnknownTypeID, Details{"type_id": int(typeID)})
			entries = append(entries, EventEntry{
				TypeID:  typeID,
				Raw:     clone(data[off:]),
				Unknown: true,
			})
			break
		}

		if off+n > len(data) {
			diag.add(string(ReasonEventTypeLenMismatch), ReasonEventTypeLenMismatch, Details{
				"type_id":      int(typeID),
				"expected_len": n,
				"available":    len(data) - off,
			})
			entries = append(entries, EventEntry{
				TypeID:      typeID,
				Raw:         clone(data[off:]),
				LenMismatch: true,
			})
			break
		}

		entries = append(entries, EventEntry{
			TypeID: typeID,
			Len:    n,
			Raw:    clone(data[off : off+n]),
		})
		off += n
	}
	return entries, diag
}

func clone(b []byte) HexBytes {
	return append(HexBytes{}, b...)
}
