package session

import "strings"

// Flag marks one negotiation the session has completed. Flags only ever
// turn on; the protocol has no way to walk a negotiation back.
type Flag uint16

const (
	// FlagTType is set once the server has asked for a terminal type.
	FlagTType Flag = 1 << iota
	// FlagGMCP is set once GMCP is negotiated in either direction.
	FlagGMCP
	// FlagMSDP is set once the server offers MSDP and we accept.
	FlagMSDP
	// FlagMCCP is set once the server offers MCCP2 and we agree to it.
	FlagMCCP
	// FlagCompressed is set when the MCCP2 start marker arrives and the
	// stream switches to deflate.
	FlagCompressed
	// FlagMXP is set once MXP is negotiated in either direction.
	FlagMXP
	// FlagNewEnv is set once we agree to NEW-ENVIRON.
	FlagNewEnv
	// FlagEnvHandshake is set after answering the NEW-ENVIRON SEND request.
	FlagEnvHandshake
	// FlagSGA is set once suppress-go-ahead has been refused.
	FlagSGA
	// FlagEcho is set once the server takes over echoing.
	FlagEcho
	// FlagNAWS is set once window-size negotiation has been refused.
	FlagNAWS
	// FlagCharset is set once we agree to charset negotiation.
	FlagCharset
	// FlagUTF8 is set after answering a charset request with UTF-8.
	FlagUTF8
)

var flagNames = map[Flag]string{
	FlagTType:        "ttype",
	FlagGMCP:         "gmcp",
	FlagMSDP:         "msdp",
	FlagMCCP:         "mccp",
	FlagCompressed:   "compressed",
	FlagMXP:          "mxp",
	FlagNewEnv:       "newenv",
	FlagEnvHandshake: "envhandshake",
	FlagSGA:          "sga",
	FlagEcho:         "echo",
	FlagNAWS:         "naws",
	FlagCharset:      "charset",
	FlagUTF8:         "utf8",
}

// Flags is a monotone set of negotiation flags.
type Flags uint16

// Set turns f on and reports whether it was off before. Option-table rows
// gated on "first time" key off the return value.
func (fs *Flags) Set(f Flag) bool {
	if *fs&Flags(f) != 0 {
		return false
	}
	*fs |= Flags(f)
	return true
}

// Has reports whether f is set.
func (fs Flags) Has(f Flag) bool { return fs&Flags(f) != 0 }

// String lists the set flags for logs.
func (fs Flags) String() string {
	if fs == 0 {
		return "none"
	}
	var names []string
	for f := FlagTType; f <= FlagUTF8 && f != 0; f <<= 1 {
		if fs.Has(f) {
			names = append(names, flagNames[f])
		}
	}
	return strings.Join(names, ",")
}
