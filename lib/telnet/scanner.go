package telnet

// EventKind classifies what the Scanner found in the stream.
type EventKind int

const (
	// EventData is a run of application bytes to forward unchanged.
	EventData EventKind = iota
	// EventCommand is a WILL/WONT/DO/DONT negotiation.
	EventCommand
	// EventSubneg is a complete IAC SB ... IAC SE block.
	EventSubneg
)

// Event is one item located by the Scanner. Data slices alias the scan
// buffer and are only valid until the next Scan call.
type Event struct {
	Kind EventKind
	Cmd  byte   // negotiation verb for EventCommand
	Opt  byte   // option byte for EventCommand and EventSubneg
	Data []byte // application bytes or subnegotiation payload
}

// Scanner walks a telnet byte stream and reports negotiations interleaved
// with application data. It is restartable: when input ends mid-sequence
// (a dangling IAC, or SB without its SE) the partial tail is buffered and
// consumed by the next Scan call, so feeding a stream chunk by chunk yields
// the same events as feeding it whole.
//
// Only the four negotiation verbs and complete subnegotiations are lifted
// out of the stream. IAC IAC collapses to a literal 0xFF in the data run;
// any other IAC pair (GA, NOP, unknown verbs) stays in the data run as raw
// bytes so nothing a server sends is ever dropped.
type Scanner struct {
	tail []byte

	splitArmed bool
	splitOpt   byte
}

// SplitAfter arms the scanner to stop once a subnegotiation for opt
// completes. The next Scan that sees it returns every unconsumed byte after
// the SE as rest, and the trigger disarms. Used for MCCP2, where bytes after
// the activation sentinel belong to the compressed stream and must not be
// scanned raw.
func (s *Scanner) SplitAfter(opt byte) {
	s.splitArmed = true
	s.splitOpt = opt
}

// Pending reports whether the scanner is holding an incomplete sequence
// tail from the previous call.
func (s *Scanner) Pending() bool { return len(s.tail) > 0 }

// Scan consumes p and returns the events found, in stream order. rest is
// nil unless an armed SplitAfter option completed, in which case rest holds
// a copy of all bytes after that subnegotiation and they have not been
// scanned.
func (s *Scanner) Scan(p []byte) (events []Event, rest []byte) {
	buf := p
	if len(s.tail) > 0 {
		buf = append(s.tail, p...)
		s.tail = nil
	}

	var (
		i         int
		dataStart int
	)
	flush := func(end int) {
		if end > dataStart {
			events = append(events, Event{Kind: EventData, Data: buf[dataStart:end]})
		}
	}

	for i < len(buf) {
		if buf[i] != IAC {
			i++
			continue
		}
		if i+1 >= len(buf) {
			// Dangling IAC, wait for the verb.
			flush(i)
			s.keepTail(buf[i:])
			return events, nil
		}
		verb := buf[i+1]
		switch {
		case verb == IAC:
			// Escaped 0xFF: keep one IAC in the data run.
			flush(i + 1)
			i += 2
			dataStart = i

		case verb == WILL || verb == WONT || verb == DO || verb == DONT:
			if i+2 >= len(buf) {
				flush(i)
				s.keepTail(buf[i:])
				return events, nil
			}
			flush(i)
			events = append(events, Event{Kind: EventCommand, Cmd: verb, Opt: buf[i+2]})
			i += 3
			dataStart = i

		case verb == SB:
			opt, payload, next, ok := scanSubneg(buf, i)
			if !ok {
				flush(i)
				s.keepTail(buf[i:])
				return events, nil
			}
			flush(i)
			events = append(events, Event{Kind: EventSubneg, Opt: opt, Data: payload})
			i = next
			dataStart = i
			if s.splitArmed && opt == s.splitOpt {
				s.splitArmed = false
				if i < len(buf) {
					rest = append([]byte(nil), buf[i:]...)
				}
				return events, rest
			}

		default:
			// GA, NOP, unknown verbs: leave both bytes in the data run.
			i += 2
		}
	}
	flush(len(buf))
	return events, nil
}

// scanSubneg parses IAC SB opt ... IAC SE starting at start. It returns the
// option, the payload with IAC IAC collapsed, and the index just past the
// closing SE. ok is false when the block is still incomplete.
func scanSubneg(buf []byte, start int) (opt byte, payload []byte, next int, ok bool) {
	if start+2 >= len(buf) {
		return 0, nil, 0, false
	}
	opt = buf[start+2]
	var body []byte
	j := start + 3
	for j < len(buf) {
		b := buf[j]
		if b != IAC {
			body = append(body, b)
			j++
			continue
		}
		if j+1 >= len(buf) {
			return 0, nil, 0, false
		}
		switch buf[j+1] {
		case SE:
			return opt, body, j + 2, true
		case IAC:
			body = append(body, IAC)
			j += 2
		default:
			// Stray IAC inside a subnegotiation: keep both bytes and
			// keep looking for the SE.
			body = append(body, IAC, buf[j+1])
			j += 2
		}
	}
	return 0, nil, 0, false
}

// keepTail stores an incomplete sequence for the next call. The bytes are
// copied because the scan buffer is typically reused by the caller's read
// loop.
func (s *Scanner) keepTail(b []byte) {
	s.tail = append([]byte(nil), b...)
}
