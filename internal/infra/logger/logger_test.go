package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestJSONLoggerIncludesService(t *testing.T) {
	var buf bytes.Buffer
	log := newWithWriter(&buf, "prod", "json")
	log.Info("allocated", "bin", "BIN-001")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("decode: %v (%s)", err, buf.String())
	}
	if rec["service"] != "micron-tracking" {
		t.Errorf("service = %v", rec["service"])
	}
	if rec["bin"] != "BIN-001" {
		t.Errorf("bin = %v", rec["bin"])
	}
}

func TestDebugOnlyInDev(t *testing.T) {
	var prod, dev bytes.Buffer
	newWithWriter(&prod, "prod", "text").Debug("hidden")
	newWithWriter(&dev, "dev", "text").Debug("shown")

	if prod.Len() != 0 {
		t.Errorf("prod logger wrote debug: %q", prod.String())
	}
	if !strings.Contains(dev.String(), "shown") {
		t.Errorf("dev logger missing debug: %q", dev.String())
	}
}
