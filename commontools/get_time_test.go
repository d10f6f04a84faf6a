package commontools

import (
	"context"
	"encoding/json"
	"testing"
)

func TestGetTimeDefaultZone(t *testing.T) {
	out, err := GetTime(context.Background(), map[string]interface{}{})
	if err != nil {
		t.Fatalf("GetTime failed: %v", err)
	}
	var payload map[string]string
	if err := json.Unmarshal([]byte(out), &payload); err != nil {
		t.Fatalf("output should be JSON: %v", err)
	}
	if payload["time"] == "" || payload["weekday"] == "" {
		t.Errorf("missing fields in payload: %v", payload)
	}
}

func TestGetTimeNamedZone(t *testing.T) {
	out, err := GetTime(context.Background(), map[string]interface{}{"timezone": "UTC"})
	if err != nil {
		t.Fatalf("GetTime failed: %v", err)
	}
	var payload map[string]string
	if err := json.Unmarshal([]byte(out), &payload); err != nil {
		t.Fatalf("output should be JSON: %v", err)
	}
	if payload["timezone"] != "UTC" {
		t.Errorf("expected UTC, got %q", payload["timezone"])
	}
}

func TestGetTimeBadZone(t *testing.T) {
	if _, err := GetTime(context.Background(), map[string]interface{}{"timezone": "Not/AZone"}); err == nil {
		t.Errorf("expected error for unknown timezone")
	}
}
