// Package chat implements the process-wide chat bus shared by opted-in
// sessions: message sanitation, a bounded history persisted to a JSON file,
// and the portal.chat / portal.chatlog fan-out frames.
package chat

import "strings"

const esc = 0x1B

// Cleanup sanitizes a chat message for display: `<` becomes `&lt;` and `>`
// becomes `&gt;` unless the bracket is preceded by an ESC byte, in which
// case the ESC is removed and the raw bracket kept. Clients use the ESC
// prefix to send markup deliberately.
//
// Cleanup is idempotent on any result that contains no fresh ESC-bracket
// pairs.
func Cleanup(msg string) string {
	if !strings.ContainsAny(msg, "<>") {
		return msg
	}
	var sb strings.Builder
	sb.Grow(len(msg) + 8)
	for i := 0; i < len(msg); i++ {
		c := msg[i]
		if c == esc && i+1 < len(msg) && (msg[i+1] == '<' || msg[i+1] == '>') {
			sb.WriteByte(msg[i+1])
			i++
			continue
		}
		switch c {
		case '<':
			sb.WriteString("&lt;")
		case '>':
			sb.WriteString("&gt;")
		default:
			sb.WriteByte(c)
		}
	}
	return sb.String()
}
