package handler

import (
	"strconv"

	"github.com/go-mud/go-mud-portal/lib/protocol"
)

// MSDP forwards a browser MSDP request upstream. The request is a no-op
// when the key is empty, the value is falsy, or no values survive
// normalization.
type MSDP struct{}

// Name implements Handler.
func (*MSDP) Name() string { return "msdp" }

// Handle implements Handler.
func (*MSDP) Handle(ctx *Context, ctl *protocol.Control) error {
	if ctl.MSDP == nil || ctl.MSDP.Key == "" {
		return nil
	}
	values := msdpValues(ctl.MSDP.Val)
	if len(values) == 0 {
		return nil
	}
	return ctx.Session.SendMSDP(ctl.MSDP.Key, values)
}

// msdpValues renders a decoded JSON value as MSDP value strings: a scalar
// becomes one value, an array one value per element. A falsy top-level
// value yields none. Objects and nested arrays are not representable and
// are skipped.
func msdpValues(v any) []string {
	switch x := v.(type) {
	case []any:
		out := make([]string, 0, len(x))
		for _, e := range x {
			if s, ok := msdpScalar(e); ok {
				out = append(out, s)
			}
		}
		return out
	case bool:
		if !x {
			return nil
		}
	case float64:
		if x == 0 {
			return nil
		}
	case string:
		if x == "" {
			return nil
		}
	}
	if s, ok := msdpScalar(v); ok {
		return []string{s}
	}
	return nil
}

func msdpScalar(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(x), true
	}
	return "", false
}
