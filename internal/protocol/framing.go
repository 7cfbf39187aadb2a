package protocol

const (
	FrameStart byte = 0xC0
	FrameEnd   byte = 0xC2
	Escape     byte = 0xC4
)

// Stuff escapes the reserved marker bytes so raw can sit between FrameStart
// and FrameEnd.
func Stuff(raw []byte) []byte {
	out := make([]byte, 0, len(raw)+len(raw)/8)
	for _, b := range raw {
		switch b {
		case FrameStart:
			out = append(out, Escape, 0xC1)
		case FrameEnd:
			out = append(out, Escape, 0xC3)
		case Escape:
			out = append(out, Escape, Escape)
		default:
			out = append(out, b)
		}
	}
	return out
}

// Unstuff reverses Stuff. An escape byte at the end of the buffer or followed
// by anything other than 0xC1, 0xC3 or 0xC4 is a fatal *Error.
func Unstuff(stuffed []byte) ([]byte, error) {
	out := make([]byte, 0, len(stuffed))
	for i := 0; i < len(stuffed); i++ {
		b := stuffed[i]
		if b != Escape {
			out = append(out, b)
			continue
		}

		if i+1 >= len(stuffed) {
			return nil, newError(StageUnstuff, ReasonDanglingEscapeByte, Details{"offset": i})
		}
		switch esc := stuffed[i+1]; esc {
		case 0xC1:
			out = append(out, FrameStart)
		case 0xC3:
			out = append(out, FrameEnd)
		case 0xC4:
			out = append(out, Escape)
		default:
			return nil, newError(StageUnstuff, ReasonInvalidEscapeSequence, Details{
				"offset":      i,
				"escape_byte": int(esc),
			})
		}
		i++
	}
	return out, nil
}
