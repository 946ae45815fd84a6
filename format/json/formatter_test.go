package json_test

import (
	stdjson "encoding/json"
	"strings"
	"sync"
	"testing"

	fmtjson "github.com/vpbank/routerpulse/format/json"
	"github.com/vpbank/routerpulse/models"
)

// ─────────────────────────────────────────────────────────────────────────────
// Shared fixtures
// ─────────────────────────────────────────────────────────────────────────────

const received = `{"uptime":"100","cpu":"0.5 0 0","vendor_extra":{"fan":"ok"},"wan":{"rx":1,"tx":2,"speed":10}}`

func receivedSnapshot(t *testing.T) models.Snapshot {
	t.Helper()
	s, err := models.ParseSnapshot([]byte(received))
	if err != nil {
		t.Fatalf("ParseSnapshot: %v", err)
	}
	return s
}

var builtSnapshot = models.Snapshot{
	Uptime: "12345.67",
	CPU:    "0.10 0.05 0.01",
	Mem:    "30000/65536",
	WAN:    &models.WAN{RX: 1000, TX: 2000, Speed: 512.5},
	Clients: []models.Client{
		{IP: "192.168.1.10", MAC: "aa:bb:cc:dd:ee:ff"},
	},
}

// ─────────────────────────────────────────────────────────────────────────────
// Raw payloads
// ─────────────────────────────────────────────────────────────────────────────

func TestFormat_RawCompactIsVerbatim(t *testing.T) {
	f := fmtjson.New(fmtjson.Config{}, nil)
	data, err := f.Format(receivedSnapshot(t))
	if err != nil {
		t.Fatalf("Format: %v", err)
	}
	if string(data) != received {
		t.Errorf("got %s, want %s", data, received)
	}
}

func TestFormat_RawPrettyKeepsUnknownFields(t *testing.T) {
	f := fmtjson.New(fmtjson.Config{PrettyPrint: true}, nil)
	data, err := f.Format(receivedSnapshot(t))
	if err != nil {
		t.Fatalf("Format: %v", err)
	}
	if !strings.Contains(string(data), "\n  \"uptime\": \"100\"") {
		t.Errorf("expected 2-space indentation, got:\n%s", data)
	}
	var m map[string]any
	if err := stdjson.Unmarshal(data, &m); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if _, ok := m["vendor_extra"]; !ok {
		t.Error("unknown field vendor_extra was dropped")
	}
}

func TestFormat_CustomIndent(t *testing.T) {
	f := fmtjson.New(fmtjson.Config{PrettyPrint: true, Indent: "\t"}, nil)
	data, err := f.Format(receivedSnapshot(t))
	if err != nil {
		t.Fatalf("Format: %v", err)
	}
	if !strings.Contains(string(data), "\n\t\"uptime\"") {
		t.Errorf("expected tab indentation, got:\n%s", data)
	}
}

func TestFormat_NonObjectRaw(t *testing.T) {
	s, err := models.ParseSnapshot([]byte(`[1, 2, 3]`))
	if err != nil {
		t.Fatalf("ParseSnapshot: %v", err)
	}
	data, err := fmtjson.New(fmtjson.Config{}, nil).Format(s)
	if err != nil {
		t.Fatalf("Format: %v", err)
	}
	if string(data) != `[1,2,3]` {
		t.Errorf("got %s", data)
	}
}

func TestFormat_InvalidRaw(t *testing.T) {
	s := models.Snapshot{Raw: []byte(`{broken`)}
	if _, err := fmtjson.New(fmtjson.Config{}, nil).Format(s); err == nil {
		t.Fatal("expected error for invalid raw bytes")
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Built snapshots
// ─────────────────────────────────────────────────────────────────────────────

func TestFormat_BuiltSnapshotRoundTripsThroughParser(t *testing.T) {
	data, err := fmtjson.New(fmtjson.Config{}, nil).Format(builtSnapshot)
	if err != nil {
		t.Fatalf("Format: %v", err)
	}

	got, err := models.ParseSnapshot(data)
	if err != nil {
		t.Fatalf("ParseSnapshot: %v", err)
	}
	if got.Uptime != builtSnapshot.Uptime || got.CPU != builtSnapshot.CPU || got.Mem != builtSnapshot.Mem {
		t.Errorf("text fields = %+v", got)
	}
	if got.WAN == nil || got.WAN.Speed != 512.5 || got.WAN.RX != 1000 {
		t.Errorf("wan = %+v", got.WAN)
	}
	if len(got.Clients) != 1 || got.Clients[0].MAC != "aa:bb:cc:dd:ee:ff" {
		t.Errorf("clients = %+v", got.Clients)
	}
}

func TestFormat_BuiltSnapshotOmitsAbsentFields(t *testing.T) {
	data, err := fmtjson.New(fmtjson.Config{}, nil).Format(models.Snapshot{CPU: "1 1 1"})
	if err != nil {
		t.Fatalf("Format: %v", err)
	}
	if string(data) != `{"cpu":"1 1 1"}` {
		t.Errorf("got %s", data)
	}
}

func TestFormat_ConcurrentUse(t *testing.T) {
	f := fmtjson.New(fmtjson.Config{PrettyPrint: true}, nil)
	snap := receivedSnapshot(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.Format(snap); err != nil {
				t.Errorf("Format: %v", err)
			}
		}()
	}
	wg.Wait()
}
