package util

import (
	"bytes"
	"encoding/json"
	"reflect"
	"sort"
	"strings"
)

// EncodeJSON marshals v to JSON while tolerating cyclic and repeated object
// references: the second and later occurrences of the same map, slice, or
// pointer are omitted from the output (an object member vanishes, an array
// element is skipped). When nothing survives at the top level the result is
// the empty string.
//
// Chat payloads come from decoded client JSON and cannot normally contain
// cycles; the tolerance exists so one strange payload can never take the
// whole bus down with a marshalling panic.
func EncodeJSON(v any) string {
	var sb strings.Builder
	if !encodeValue(reflect.ValueOf(v), make(map[refKey]bool), &sb) {
		return ""
	}
	return sb.String()
}

// refKey identifies an object reference. Slices carry their length so two
// views of the same backing array do not alias each other.
type refKey struct {
	ptr    uintptr
	kind   reflect.Kind
	length int
}

var jsonMarshalerType = reflect.TypeOf((*json.Marshaler)(nil)).Elem()

// encodeValue writes the JSON form of val to sb, returning false when the
// value must be omitted (a repeated reference or an unencodable leaf).
func encodeValue(val reflect.Value, seen map[refKey]bool, sb *strings.Builder) bool {
	if !val.IsValid() {
		sb.WriteString("null")
		return true
	}

	switch val.Kind() {
	case reflect.Interface:
		if val.IsNil() {
			sb.WriteString("null")
			return true
		}
		return encodeValue(val.Elem(), seen, sb)

	case reflect.Pointer:
		if val.IsNil() {
			sb.WriteString("null")
			return true
		}
		key := refKey{ptr: val.Pointer(), kind: reflect.Pointer}
		if seen[key] {
			return false
		}
		seen[key] = true
		return encodeValue(val.Elem(), seen, sb)

	case reflect.Map:
		return encodeMap(val, seen, sb)

	case reflect.Slice, reflect.Array:
		return encodeList(val, seen, sb)

	case reflect.Struct:
		return encodeStruct(val, seen, sb)

	default:
		return encodeLeaf(val, sb)
	}
}

func encodeMap(val reflect.Value, seen map[refKey]bool, sb *strings.Builder) bool {
	if val.IsNil() {
		sb.WriteString("null")
		return true
	}
	if val.Type().Key().Kind() != reflect.String {
		return encodeLeaf(val, sb)
	}
	key := refKey{ptr: val.Pointer(), kind: reflect.Map}
	if seen[key] {
		return false
	}
	seen[key] = true

	keys := make([]string, 0, val.Len())
	for _, k := range val.MapKeys() {
		keys = append(keys, k.String())
	}
	sort.Strings(keys)

	sb.WriteByte('{')
	first := true
	for _, k := range keys {
		kv := reflect.ValueOf(k).Convert(val.Type().Key())
		var member strings.Builder
		if !encodeValue(val.MapIndex(kv), seen, &member) {
			continue
		}
		if !first {
			sb.WriteByte(',')
		}
		first = false
		sb.Write(jsonString(k))
		sb.WriteByte(':')
		sb.WriteString(member.String())
	}
	sb.WriteByte('}')
	return true
}

func encodeList(val reflect.Value, seen map[refKey]bool, sb *strings.Builder) bool {
	if val.Kind() == reflect.Slice {
		if val.IsNil() {
			sb.WriteString("null")
			return true
		}
		// Zero-length slices share the runtime's zero base pointer, so
		// only non-empty slices are tracked; an empty slice cannot form
		// a cycle anyway.
		if val.Len() > 0 {
			key := refKey{ptr: val.Pointer(), kind: reflect.Slice, length: val.Len()}
			if seen[key] {
				return false
			}
			seen[key] = true
		}
	}

	sb.WriteByte('[')
	first := true
	for i := 0; i < val.Len(); i++ {
		var elem strings.Builder
		if !encodeValue(val.Index(i), seen, &elem) {
			continue
		}
		if !first {
			sb.WriteByte(',')
		}
		first = false
		sb.WriteString(elem.String())
	}
	sb.WriteByte(']')
	return true
}

func encodeStruct(val reflect.Value, seen map[refKey]bool, sb *strings.Builder) bool {
	if val.Type().Implements(jsonMarshalerType) {
		return encodeLeaf(val, sb)
	}

	sb.WriteByte('{')
	first := true
	t := val.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name := f.Name
		if tag, ok := f.Tag.Lookup("json"); ok {
			parts := strings.SplitN(tag, ",", 2)
			if parts[0] == "-" {
				continue
			}
			if parts[0] != "" {
				name = parts[0]
			}
		}
		var member strings.Builder
		if !encodeValue(val.Field(i), seen, &member) {
			continue
		}
		if !first {
			sb.WriteByte(',')
		}
		first = false
		sb.Write(jsonString(name))
		sb.WriteByte(':')
		sb.WriteString(member.String())
	}
	sb.WriteByte('}')
	return true
}

// encodeLeaf marshals a scalar without HTML escaping, so sanitized chat
// entities like &lt; survive on the wire the way browsers sent them.
func encodeLeaf(val reflect.Value, sb *strings.Builder) bool {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(val.Interface()); err != nil {
		return false
	}
	sb.Write(bytes.TrimRight(buf.Bytes(), "\n"))
	return true
}

func jsonString(s string) []byte {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	// Encoding a string cannot fail.
	_ = enc.Encode(s)
	return bytes.TrimRight(buf.Bytes(), "\n")
}
