package main

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestNewLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	log, err := newLogger(LogSettings{Level: "debug", Format: "json"}, &buf)
	if err != nil {
		t.Fatalf("newLogger() error = %v", err)
	}

	log.Named("poller").Debug("poll", "serial", "12345")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %q", buf.String())
	}
	if entry["@module"] != "stokercloud.poller" || entry["serial"] != "12345" {
		t.Errorf("entry = %v", entry)
	}
}

func TestNewLoggerRejects(t *testing.T) {
	for _, s := range []LogSettings{
		{Level: "loud"},
		{Level: "info", Format: "xml"},
	} {
		if _, err := newLogger(s, &bytes.Buffer{}); err == nil {
			t.Errorf("newLogger(%+v) should fail", s)
		}
	}
}
