// Package protocol defines the browser-facing wire shapes: the JSON control
// envelope carried in client text frames, the base64 framer for server
// output, and the Latin-1 transcoding used on the telnet wire.
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/go-mud/go-mud-portal/lib/util"
)

// Truthy is a bool decoded with JavaScript truthiness so web clients can
// send whatever their UI state holds: null, false, 0 and "" are falsy;
// everything else, including empty objects and arrays, is truthy.
type Truthy bool

// UnmarshalJSON implements json.Unmarshaler.
func (t *Truthy) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch x := v.(type) {
	case nil:
		*t = false
	case bool:
		*t = Truthy(x)
	case float64:
		*t = x != 0
	case string:
		*t = x != ""
	default:
		*t = true
	}
	return nil
}

// Bool returns the decoded value.
func (t Truthy) Bool() bool { return bool(t) }

// MSDPRequest asks the session to emit one MSDP variable upstream. Val may
// be a scalar or an array of scalars.
type MSDPRequest struct {
	Key string `json:"key"`
	Val any    `json:"val"`
}

// Control is the JSON envelope a browser sends to configure its session.
// Every key is optional and unknown keys are ignored. String and number
// fields follow the same truthiness rule as Truthy: zero values leave the
// session untouched, so a client can never disable a feature by sending a
// falsy value.
type Control struct {
	Host    string         `json:"host"`
	Port    int            `json:"port"`
	TType   string         `json:"ttype"`
	Name    string         `json:"name"`
	Client  string         `json:"client"`
	MCCP    Truthy         `json:"mccp"`
	UTF8    Truthy         `json:"utf8"`
	Debug   Truthy         `json:"debug"`
	Chat    map[string]any `json:"chat"`
	Connect Truthy         `json:"connect"`
	Bin     []int          `json:"bin"`
	MSDP    *MSDPRequest   `json:"msdp"`
}

// IsControl reports whether a client frame is a control envelope. Control
// frames open with '{'; every other frame is raw user input.
func IsControl(frame []byte) bool {
	return len(frame) > 0 && frame[0] == '{'
}

// ParseControl decodes a control frame. The error wraps
// util.ErrBadControlFrame; callers log it and drop the frame, the
// connection stays up.
func ParseControl(frame []byte) (*Control, error) {
	var c Control
	if err := json.Unmarshal(frame, &c); err != nil {
		return nil, fmt.Errorf("%w: %v", util.ErrBadControlFrame, err)
	}
	return &c, nil
}
