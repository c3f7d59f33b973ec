// StartLabX Relay - Realtime Presence and Room Fan-out
// Copyright 2026 StartLabX
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/startlabx/relay

package relay

import (
	"testing"
)

func TestParseEnvelope(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr bool
		event   string
	}{
		{"valid", `{"event":"ping","data":{}}`, false, "ping"},
		{"valid without data", `{"event":"join_feed"}`, false, "join_feed"},
		{"null data", `{"event":"ping","data":null}`, false, "ping"},
		{"empty event", `{"event":"","data":{}}`, true, ""},
		{"missing event", `{"data":{}}`, true, ""},
		{"not json", `hello`, true, ""},
		{"truncated", `{"event":"ping","data":{`, true, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, err := ParseEnvelope([]byte(tt.raw))
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseEnvelope() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && env.Event != tt.event {
				t.Errorf("event = %q, want %q", env.Event, tt.event)
			}
		})
	}
}

func TestEnvelope_Payload(t *testing.T) {
	t.Run("missing data yields empty map", func(t *testing.T) {
		env, err := ParseEnvelope([]byte(`{"event":"ping"}`))
		if err != nil {
			t.Fatal(err)
		}
		m, err := env.payload()
		if err != nil {
			t.Fatal(err)
		}
		if len(m) != 0 {
			t.Errorf("payload = %v, want empty", m)
		}
	})

	t.Run("non-object data is an error", func(t *testing.T) {
		env, err := ParseEnvelope([]byte(`{"event":"send_message","data":[1,2]}`))
		if err != nil {
			t.Fatal(err)
		}
		if _, err := env.payload(); err == nil {
			t.Error("expected error for array payload")
		}
	})

	t.Run("extra fields pass through", func(t *testing.T) {
		env, err := ParseEnvelope([]byte(`{"event":"send_message","data":{"conversationId":"c1","attachments":["a"]}}`))
		if err != nil {
			t.Fatal(err)
		}
		m, err := env.payload()
		if err != nil {
			t.Fatal(err)
		}
		if _, ok := m["attachments"]; !ok {
			t.Error("attachments field should pass through")
		}
	})
}

func TestStringField(t *testing.T) {
	payload := map[string]interface{}{
		"good":  "value",
		"empty": "",
		"num":   float64(7),
		"null":  nil,
	}

	tests := []struct {
		key  string
		want string
		ok   bool
	}{
		{"good", "value", true},
		{"empty", "", false},
		{"num", "", false},
		{"null", "", false},
		{"absent", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			got, ok := stringField(payload, tt.key)
			if got != tt.want || ok != tt.ok {
				t.Errorf("stringField(%q) = (%q, %v), want (%q, %v)", tt.key, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestOptionalStringField(t *testing.T) {
	payload := map[string]interface{}{"s": "x", "n": float64(1)}

	if got := optionalStringField(payload, "s"); got != "x" {
		t.Errorf("got %q, want x", got)
	}
	if got := optionalStringField(payload, "n"); got != "" {
		t.Errorf("got %q, want empty for non-string", got)
	}
	if got := optionalStringField(payload, "absent"); got != "" {
		t.Errorf("got %q, want empty for absent", got)
	}
}

func TestMarshalMessage(t *testing.T) {
	data, err := MarshalMessage(Message{Event: "pong", Data: map[string]interface{}{"timestamp": "2026-01-01T00:00:00Z"}})
	if err != nil {
		t.Fatal(err)
	}

	env, err := ParseEnvelope(data)
	if err != nil {
		t.Fatalf("marshaled message should parse back: %v", err)
	}
	if env.Event != "pong" {
		t.Errorf("event = %q, want pong", env.Event)
	}
}
