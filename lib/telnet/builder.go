package telnet

// Command builds the three-byte negotiation frame IAC cmd opt.
func Command(cmd, opt byte) []byte {
	return []byte{IAC, cmd, opt}
}

// Subneg builds IAC SB opt payload IAC SE with IAC bytes in the payload
// escaped by doubling.
func Subneg(opt byte, payload []byte) []byte {
	frame := make([]byte, 0, len(payload)+5)
	frame = append(frame, IAC, SB, opt)
	frame = append(frame, EscapeIAC(payload)...)
	return append(frame, IAC, SE)
}

// SubnegString is Subneg for text payloads.
func SubnegString(opt byte, payload string) []byte {
	return Subneg(opt, []byte(payload))
}

// AcceptUTF8 is the accept-UTF-8 charset reply sent in response to any
// CHARSET subnegotiation: IAC SB ACCEPTED "UTF-8" IAC SE. The frame opens
// with the ACCEPTED qualifier where the option byte normally sits; MUD
// servers recognize this form and clients must send it byte-for-byte.
var AcceptUTF8 = []byte{IAC, SB, QualAccepted, '"', 'U', 'T', 'F', '-', '8', '"', IAC, SE}

// EnvIPAddress builds the NEW-ENVIRON reply advertising the peer address:
// IAC SB NEW-ENVIRON IS VAR "IPADDRESS" VALUE addr IAC SE. VAR and VALUE
// share the IS/SEND byte values per RFC 1572.
func EnvIPAddress(addr string) []byte {
	payload := make([]byte, 0, len(addr)+12)
	payload = append(payload, QualIS, QualIS)
	payload = append(payload, "IPADDRESS"...)
	payload = append(payload, QualSend)
	payload = append(payload, addr...)
	return Subneg(OptNewEnv, payload)
}

// TTypeIs builds the terminal-type response IAC SB TTYPE IS name IAC SE.
func TTypeIs(name string) []byte {
	payload := make([]byte, 0, len(name)+1)
	payload = append(payload, QualIS)
	payload = append(payload, name...)
	return Subneg(OptTType, payload)
}

// MSDPPair builds IAC SB MSDP VAR key VAL value... IAC SE with one VAL per
// value.
func MSDPPair(key string, values ...string) []byte {
	payload := make([]byte, 0, len(key)+16)
	payload = append(payload, MSDPVar)
	payload = append(payload, key...)
	for _, v := range values {
		payload = append(payload, MSDPVal)
		payload = append(payload, v...)
	}
	return Subneg(OptMSDP, payload)
}

// EscapeIAC doubles every IAC byte so the data survives inside a telnet
// stream. Returns the input slice unchanged when no escaping is needed.
func EscapeIAC(data []byte) []byte {
	n := 0
	for _, b := range data {
		if b == IAC {
			n++
		}
	}
	if n == 0 {
		return data
	}
	out := make([]byte, 0, len(data)+n)
	for _, b := range data {
		out = append(out, b)
		if b == IAC {
			out = append(out, IAC)
		}
	}
	return out
}

// UnescapeIAC collapses doubled IAC bytes back to single bytes. Returns the
// input slice unchanged when nothing is escaped.
func UnescapeIAC(data []byte) []byte {
	i := indexIACPair(data)
	if i < 0 {
		return data
	}
	out := make([]byte, 0, len(data)-1)
	for i := 0; i < len(data); i++ {
		out = append(out, data[i])
		if data[i] == IAC && i+1 < len(data) && data[i+1] == IAC {
			i++
		}
	}
	return out
}

func indexIACPair(data []byte) int {
	for i := 0; i+1 < len(data); i++ {
		if data[i] == IAC && data[i+1] == IAC {
			return i
		}
	}
	return -1
}
