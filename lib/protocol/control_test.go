package protocol

import (
	"errors"
	"reflect"
	"testing"

	"github.com/go-mud/go-mud-portal/lib/util"
)

func TestIsControl(t *testing.T) {
	tests := []struct {
		name  string
		frame string
		want  bool
	}{
		{name: "json envelope", frame: `{"connect":1}`, want: true},
		{name: "raw command", frame: "look north", want: false},
		{name: "empty frame", frame: "", want: false},
		{name: "brace later in frame", frame: "say {hello}", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsControl([]byte(tt.frame)); got != tt.want {
				t.Errorf("IsControl(%q) = %v, want %v", tt.frame, got, tt.want)
			}
		})
	}
}

func TestParseControl(t *testing.T) {
	tests := []struct {
		name  string
		frame string
		want  Control
	}{
		{
			name:  "connect request",
			frame: `{"host":"mud.example","port":4000,"connect":1}`,
			want:  Control{Host: "mud.example", Port: 4000, Connect: true},
		},
		{
			name:  "identity and features",
			frame: `{"name":"Arren","client":"webclient","mccp":true,"utf8":1,"debug":"on"}`,
			want:  Control{Name: "Arren", Client: "webclient", MCCP: true, UTF8: true, Debug: true},
		},
		{
			name:  "falsy values stay off",
			frame: `{"mccp":0,"utf8":"","debug":false,"connect":null}`,
			want:  Control{},
		},
		{
			name:  "terminal type",
			frame: `{"ttype":"tintin++"}`,
			want:  Control{TType: "tintin++"},
		},
		{
			name:  "chat payload",
			frame: `{"chat":{"channel":"general","name":"A","msg":"hi"}}`,
			want:  Control{Chat: map[string]any{"channel": "general", "name": "A", "msg": "hi"}},
		},
		{
			name:  "binary injection",
			frame: `{"bin":[255,253,24]}`,
			want:  Control{Bin: []int{255, 253, 24}},
		},
		{
			name:  "msdp with list value",
			frame: `{"msdp":{"key":"REPORT","val":["HEALTH","MANA"]}}`,
			want:  Control{MSDP: &MSDPRequest{Key: "REPORT", Val: []any{"HEALTH", "MANA"}}},
		},
		{
			name:  "unknown keys ignored",
			frame: `{"host":"mud.example","theme":"dark","cols":80}`,
			want:  Control{Host: "mud.example"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseControl([]byte(tt.frame))
			if err != nil {
				t.Fatalf("ParseControl(%q): %v", tt.frame, err)
			}
			if !reflect.DeepEqual(*got, tt.want) {
				t.Errorf("ParseControl(%q) = %+v, want %+v", tt.frame, *got, tt.want)
			}
		})
	}
}

func TestParseControl_Malformed(t *testing.T) {
	_, err := ParseControl([]byte(`{"host": mud.example}`))
	if err == nil {
		t.Fatal("malformed frame parsed without error")
	}
	if !errors.Is(err, util.ErrBadControlFrame) {
		t.Errorf("error = %v, want wrap of ErrBadControlFrame", err)
	}
}

func TestTruthy(t *testing.T) {
	tests := []struct {
		name string
		json string
		want bool
	}{
		{name: "true", json: `true`, want: true},
		{name: "false", json: `false`, want: false},
		{name: "one", json: `1`, want: true},
		{name: "zero", json: `0`, want: false},
		{name: "negative", json: `-2`, want: true},
		{name: "empty string", json: `""`, want: false},
		{name: "string", json: `"x"`, want: true},
		{name: "string zero", json: `"0"`, want: true},
		{name: "null", json: `null`, want: false},
		{name: "empty object", json: `{}`, want: true},
		{name: "empty array", json: `[]`, want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got Truthy
			if err := got.UnmarshalJSON([]byte(tt.json)); err != nil {
				t.Fatalf("UnmarshalJSON(%s): %v", tt.json, err)
			}
			if got.Bool() != tt.want {
				t.Errorf("Truthy(%s) = %v, want %v", tt.json, got.Bool(), tt.want)
			}
		})
	}
}
