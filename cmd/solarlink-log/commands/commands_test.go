package commands

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/solarlink/solarlink-go/pkg/log"
	"github.com/solarlink/solarlink-go/pkg/wire"
)

func createTestLogFile(t *testing.T, events []log.Event) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.slog")

	logger, err := log.NewFileLogger(path)
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}
	for _, e := range events {
		logger.Log(e)
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("failed to close logger: %v", err)
	}
	return path
}

func sessionEvents() []log.Event {
	ts := time.Date(2026, 1, 28, 10, 15, 32, 123456000, time.UTC)
	op := wire.OpWrite
	handle := uint16(14)
	status := wire.StatusSuccess
	elapsed := 1500 * time.Microsecond

	return []log.Event{
		{
			Timestamp:    ts,
			ConnectionID: "abc12345-6789-0123-4567-890abcdef012",
			Direction:    log.DirectionIn,
			Layer:        log.LayerTransport,
			Category:     log.CategoryMessage,
			RemoteAddr:   "192.168.1.50:50122",
			Frame:        log.NewFrameEvent(24, []byte{0xa4, 0x01, 0x07}),
		},
		{
			Timestamp:    ts.Add(time.Millisecond),
			ConnectionID: "abc12345-6789-0123-4567-890abcdef012",
			Direction:    log.DirectionIn,
			Layer:        log.LayerWire,
			Category:     log.CategoryMessage,
			Message: &log.MessageEvent{
				Type:          wire.MessageTypeRequest,
				MessageID:     7,
				Operation:     &op,
				Handle:        &handle,
				ValueSize:     96,
				Authenticated: true,
			},
		},
		{
			Timestamp:    ts.Add(2 * time.Millisecond),
			ConnectionID: "abc12345-6789-0123-4567-890abcdef012",
			Layer:        log.LayerAccessory,
			Category:     log.CategoryAuth,
			CredentialID: "owner-1",
			Auth:         &log.AuthEvent{Handle: 14, Write: true, Outcome: log.AuthAccepted, ClaimedID: "owner-1"},
		},
		{
			Timestamp:    ts.Add(3 * time.Millisecond),
			ConnectionID: "abc12345-6789-0123-4567-890abcdef012",
			Layer:        log.LayerAccessory,
			Category:     log.CategoryCredential,
			CredentialID: "owner-1",
			Transition: &log.TransitionEvent{
				Kind:       log.TransitionInvite,
				Subject:    "guest-1",
				Name:       "Guest",
				Permission: "user",
			},
		},
		{
			Timestamp:    ts.Add(4 * time.Millisecond),
			ConnectionID: "abc12345-6789-0123-4567-890abcdef012",
			Direction:    log.DirectionOut,
			Layer:        log.LayerWire,
			Category:     log.CategoryMessage,
			Message: &log.MessageEvent{
				Type:           wire.MessageTypeResponse,
				MessageID:      7,
				Status:         &status,
				ProcessingTime: &elapsed,
			},
		},
		{
			Timestamp:    ts.Add(5 * time.Second),
			ConnectionID: "def67890",
			Layer:        log.LayerAccessory,
			Category:     log.CategoryAuth,
			Auth:         &log.AuthEvent{Handle: 9, Outcome: log.AuthStale, ClaimedID: "guest-1"},
		},
	}
}

func TestFormatEvent(t *testing.T) {
	events := sessionEvents()

	tests := []struct {
		name  string
		event log.Event
		want  []string
	}{
		{
			name:  "frame",
			event: events[0],
			want:  []string{"2026-01-28T10:15:32.123456Z", "[conn:abc12345]", "IN", "TRANSPORT Frame", "24 bytes", "a40107"},
		},
		{
			name:  "request",
			event: events[1],
			want:  []string{"WIRE request", "MessageID: 7", "Operation: Write", "Handle: 14", "Authenticated: yes", "Value: 96 bytes"},
		},
		{
			name:  "auth",
			event: events[2],
			want:  []string{"ACCESSORY Auth", "Credential: owner-1", "Handle: 14 (write)", "Outcome: ACCEPTED"},
		},
		{
			name:  "transition",
			event: events[3],
			want:  []string{"Kind: INVITE", `Subject: guest-1 "Guest"`, "Permission: user"},
		},
		{
			name:  "response",
			event: events[4],
			want:  []string{"WIRE response", "Status:", "Duration: 1.500ms"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			formatEvent(&buf, tt.event)
			out := buf.String()
			for _, want := range tt.want {
				if !strings.Contains(out, want) {
					t.Errorf("expected %q in output:\n%s", want, out)
				}
			}
		})
	}
}

func TestRunViewFilters(t *testing.T) {
	path := createTestLogFile(t, sessionEvents())

	auth := log.CategoryAuth
	out := log.DirectionOut

	tests := []struct {
		name   string
		filter ViewFilter
		want   int
	}{
		{"all", ViewFilter{}, 6},
		{"auth category", ViewFilter{Category: &auth}, 2},
		{"outgoing", ViewFilter{Direction: &out}, 1},
		{"credential", ViewFilter{CredentialID: "owner-1"}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := RunView(path, tt.filter, &buf); err != nil {
				t.Fatalf("RunView failed: %v", err)
			}
			if got := strings.Count(buf.String(), "[conn:"); got != tt.want {
				t.Errorf("expected %d events, got %d:\n%s", tt.want, got, buf.String())
			}
		})
	}
}

func TestParseFlags(t *testing.T) {
	if l, err := ParseLayerFlag("Accessory"); err != nil || l != log.LayerAccessory {
		t.Errorf("ParseLayerFlag(Accessory) = %v, %v", l, err)
	}
	if _, err := ParseLayerFlag("service"); err == nil {
		t.Error("expected error for unknown layer")
	}
	if d, err := ParseDirectionFlag("OUT"); err != nil || d != log.DirectionOut {
		t.Errorf("ParseDirectionFlag(OUT) = %v, %v", d, err)
	}
	if c, err := ParseCategoryFlag("credential"); err != nil || c != log.CategoryCredential {
		t.Errorf("ParseCategoryFlag(credential) = %v, %v", c, err)
	}
	if _, err := ParseCategoryFlag("control"); err == nil {
		t.Error("expected error for unknown category")
	}
}

func TestRunFilter(t *testing.T) {
	path := createTestLogFile(t, sessionEvents())
	outPath := filepath.Join(t.TempDir(), "filtered.slog")

	n, err := RunFilter(path, FilterOptions{Output: outPath, Category: "auth"})
	if err != nil {
		t.Fatalf("RunFilter failed: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 events written, got %d", n)
	}

	reader, err := log.NewReader(outPath)
	if err != nil {
		t.Fatalf("failed to open output: %v", err)
	}
	defer reader.Close()

	count := 0
	for {
		event, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("failed to read event: %v", err)
		}
		if event.Auth == nil {
			t.Errorf("expected auth event, got %+v", event)
		}
		count++
	}
	if count != 2 {
		t.Errorf("expected 2 events, got %d", count)
	}

	if _, err := RunFilter(path, FilterOptions{Output: outPath, TimeStart: "yesterday"}); err == nil {
		t.Error("expected error for invalid time-start")
	}
}

func TestRunStats(t *testing.T) {
	path := createTestLogFile(t, sessionEvents())

	var buf bytes.Buffer
	if err := RunStats(path, &buf); err != nil {
		t.Fatalf("RunStats failed: %v", err)
	}
	out := buf.String()

	for _, want := range []string{
		"Total Events: 6",
		"ACCESSORY:",
		"Auth Outcomes:",
		"ACCEPTED:",
		"STALE:",
		"INVITE:",
		"Connections: 2",
		"Remote: 192.168.1.50:50122",
		"Duration:   5s",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestRunExport(t *testing.T) {
	path := createTestLogFile(t, sessionEvents())
	dir := t.TempDir()

	t.Run("jsonl", func(t *testing.T) {
		out := filepath.Join(dir, "events.jsonl")
		if err := RunExport(path, "jsonl", out); err != nil {
			t.Fatalf("RunExport failed: %v", err)
		}
		data, err := os.ReadFile(out)
		if err != nil {
			t.Fatal(err)
		}
		lines := strings.Split(strings.TrimSpace(string(data)), "\n")
		if len(lines) != 6 {
			t.Fatalf("expected 6 lines, got %d", len(lines))
		}
		var event map[string]any
		if err := json.Unmarshal([]byte(lines[2]), &event); err != nil {
			t.Fatalf("invalid JSON line: %v", err)
		}
		if event["CredentialID"] != "owner-1" {
			t.Errorf("expected CredentialID owner-1, got %v", event["CredentialID"])
		}
	})

	t.Run("csv", func(t *testing.T) {
		out := filepath.Join(dir, "events.csv")
		if err := RunExport(path, "csv", out); err != nil {
			t.Fatalf("RunExport failed: %v", err)
		}
		f, err := os.Open(out)
		if err != nil {
			t.Fatal(err)
		}
		defer f.Close()
		rows, err := csv.NewReader(f).ReadAll()
		if err != nil {
			t.Fatal(err)
		}
		if len(rows) != 7 {
			t.Fatalf("expected header and 6 rows, got %d", len(rows))
		}
		if rows[2][6] != "request" || rows[2][7] != "7" {
			t.Errorf("unexpected request row: %v", rows[2])
		}
	})

	t.Run("unknown format", func(t *testing.T) {
		if err := RunExport(path, "xml", ""); err == nil {
			t.Error("expected error for unknown format")
		}
	})
}
