package timeutil

import (
	"encoding/json"
	"testing"
	"time"
)

func TestUnmarshalAcceptedForms(t *testing.T) {
	want := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	cases := map[string]string{
		"rfc3339":  `"2024-05-01T12:00:00Z"`,
		"epoch ms": `1714564800000`,
		"ms str":   `"1714564800000"`,
	}
	for name, raw := range cases {
		var got Time
		if err := json.Unmarshal([]byte(raw), &got); err != nil {
			t.Fatalf("%s: unmarshal: %v", name, err)
		}
		if !got.Equal(want) {
			t.Fatalf("%s: expected %s, got %s", name, want, got.Time)
		}
	}
}

func TestUnmarshalDateOnlyAndNull(t *testing.T) {
	var d Time
	if err := json.Unmarshal([]byte(`"2024-05-01"`), &d); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if d.Year() != 2024 || d.Month() != 5 || d.Day() != 1 {
		t.Fatalf("unexpected date %s", d.Time)
	}

	var n Time
	if err := json.Unmarshal([]byte(`null`), &n); err != nil {
		t.Fatalf("unmarshal null: %v", err)
	}
	if n.Ptr() != nil {
		t.Fatalf("null should produce nil pointer")
	}
}

func TestUnmarshalRejectsGarbage(t *testing.T) {
	var v Time
	if err := json.Unmarshal([]byte(`"ontem"`), &v); err == nil {
		t.Fatalf("expected error")
	}
	if err := json.Unmarshal([]byte(`true`), &v); err == nil {
		t.Fatalf("expected error for bool")
	}
}
