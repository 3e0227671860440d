// Package telnet implements the Telnet command vocabulary and the streaming
// scanner used to pick option negotiations out of a MUD server's byte stream.
// See RFC 854/855 for the base protocol and the MUD extension documents
// (MCCP2, GMCP, MSDP, MXP) for the option codes.
package telnet

import "strconv"

// Telnet command bytes per RFC 854.
const (
	IAC  byte = 255 // Interpret As Command
	DONT byte = 254
	DO   byte = 253
	WONT byte = 252
	WILL byte = 251
	SB   byte = 250 // Subnegotiation Begin
	SE   byte = 240 // Subnegotiation End
	GA   byte = 249 // Go Ahead
	NOP  byte = 241
)

// Telnet option codes negotiated by MUD servers.
const (
	OptEcho    byte = 1  // RFC 857
	OptSGA     byte = 3  // RFC 858, Suppress Go Ahead
	OptTType   byte = 24 // RFC 1091, Terminal Type
	OptNAWS    byte = 31 // RFC 1073, Negotiate About Window Size
	OptNewEnv  byte = 39 // RFC 1572, New Environment
	OptCharset byte = 42 // RFC 2066
	OptMSDP    byte = 69 // Mud Server Data Protocol
	OptMCCP2   byte = 86 // Mud Client Compression Protocol v2
	OptMXP     byte = 91 // Mud eXtension Protocol
	OptATCP    byte = 200
	OptGMCP    byte = 201 // Generic Mud Communication Protocol
)

// Subnegotiation qualifiers. IS/SEND per RFC 1091; ACCEPTED/REJECTED per
// RFC 2066; VAR/VAL per the MSDP specification.
const (
	QualIS       byte = 0
	QualSend     byte = 1 // also RFC 1572 REQUEST and RFC 2066 REQUEST
	QualAccepted byte = 2
	QualRejected byte = 3

	MSDPVar byte = 1
	MSDPVal byte = 2
)

// commandNames maps negotiation verbs to their RFC 854 mnemonics for logs.
var commandNames = map[byte]string{
	IAC:  "IAC",
	DONT: "DONT",
	DO:   "DO",
	WONT: "WONT",
	WILL: "WILL",
	SB:   "SB",
	SE:   "SE",
	GA:   "GA",
	NOP:  "NOP",
}

// optionNames maps option codes to mnemonics for logs.
var optionNames = map[byte]string{
	OptEcho:    "ECHO",
	OptSGA:     "SGA",
	OptTType:   "TTYPE",
	OptNAWS:    "NAWS",
	OptNewEnv:  "NEW-ENVIRON",
	OptCharset: "CHARSET",
	OptMSDP:    "MSDP",
	OptMCCP2:   "MCCP2",
	OptMXP:     "MXP",
	OptATCP:    "ATCP",
	OptGMCP:    "GMCP",
}

// CommandName returns the mnemonic for a telnet command byte, or its decimal
// form when the byte has no name.
func CommandName(c byte) string {
	if n, ok := commandNames[c]; ok {
		return n
	}
	return strconv.Itoa(int(c))
}

// OptionName returns the mnemonic for a telnet option byte, or its decimal
// form when the byte has no name.
func OptionName(o byte) string {
	if n, ok := optionNames[o]; ok {
		return n
	}
	return strconv.Itoa(int(o))
}
