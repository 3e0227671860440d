package protocol

import "golang.org/x/text/encoding/charmap"

// EncodeLatin1 converts user input to the Latin-1 bytes written on the
// telnet wire. Runes outside Latin-1 have no byte encoding and are dropped;
// the count of dropped runes is returned so callers can log it.
func EncodeLatin1(s string) (out []byte, dropped int) {
	out = make([]byte, 0, len(s))
	for _, r := range s {
		b, ok := charmap.ISO8859_1.EncodeRune(r)
		if !ok {
			dropped++
			continue
		}
		out = append(out, b)
	}
	return out, dropped
}

// DecodeLatin1 converts Latin-1 bytes to a UTF-8 string. Every byte value
// decodes, so the conversion is total.
func DecodeLatin1(p []byte) string {
	runes := make([]rune, len(p))
	for i, b := range p {
		runes[i] = charmap.ISO8859_1.DecodeByte(b)
	}
	return string(runes)
}
