package dashboard_test

import (
	"testing"
	"time"

	"github.com/vpbank/routerpulse/models"
	"github.com/vpbank/routerpulse/pkg/routerpulse/dashboard"
	"github.com/vpbank/routerpulse/pkg/routerpulse/poller"
	"github.com/vpbank/routerpulse/pkg/routerpulse/series"
	"github.com/vpbank/routerpulse/pkg/routerpulse/store"
)

func TestFormatUptime(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", "-"},
		{"abc", "-"},
		{"-5", "-"},
		{"1e30", "-"},
		{"Inf", "-"},
		{"0", "0h 0m"},
		{"59.9", "0h 0m"},
		{"3661", "1h 1m"},
		{"12345.67", "3h 25m"},
		{"86400", "1d 0h 0m"},
		{"200000", "2d 7h 33m"},
		{" 90061 ", "1d 1h 1m"},
	}
	for _, tt := range tests {
		if got := dashboard.FormatUptime(tt.in); got != tt.want {
			t.Errorf("FormatUptime(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestBuild_Pending(t *testing.T) {
	v := dashboard.Build(poller.View{Status: poller.StatusPending, Age: store.NeverUpdated})

	if v.Status != dashboard.StatusConnecting {
		t.Errorf("Status = %q", v.Status)
	}
	for name, got := range map[string]string{"last": v.Last, "uptime": v.Uptime, "cpu": v.CPU, "mem": v.Mem, "wan": v.WAN} {
		if got != "-" {
			t.Errorf("%s = %q, want placeholder", name, got)
		}
	}
	if v.AgeSeconds != -1 {
		t.Errorf("AgeSeconds = %v, want -1", v.AgeSeconds)
	}
	if v.ClientsPlaceholder != dashboard.NoClientsMessage || len(v.Clients) != 0 {
		t.Errorf("clients = %v / %q", v.Clients, v.ClientsPlaceholder)
	}
	if v.Charts == nil {
		t.Error("Charts must never be nil")
	}
}

func TestBuild_Live(t *testing.T) {
	ts := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	snap := models.Snapshot{
		Uptime: "90061",
		CPU:    "0.50 0.20 0.10",
		Mem:    "30000/65536",
		WAN:    &models.WAN{Speed: 1234.5},
		Clients: []models.Client{
			{IP: "192.168.1.10", MAC: "aa:bb:cc:dd:ee:ff", Hostname: "laptop", RX: 10, TX: 20},
			{},
		},
	}
	v := dashboard.Build(poller.View{
		Record:  store.Record{Snapshot: snap, Timestamp: ts, StoredAt: ts},
		HasData: true,
		Status:  poller.StatusLive,
		Age:     2500 * time.Millisecond,
		Charts: map[string]series.Chart{
			models.SeriesWAN: {Labels: []string{"10:00:00"}, Values: []float64{1235}},
		},
	})

	if v.Status != dashboard.StatusLive {
		t.Errorf("Status = %q", v.Status)
	}
	if v.Last != "2026-03-01T10:00:00Z" {
		t.Errorf("Last = %q", v.Last)
	}
	if v.Uptime != "1d 1h 1m" || v.CPU != snap.CPU || v.Mem != snap.Mem {
		t.Errorf("uptime/cpu/mem = %q %q %q", v.Uptime, v.CPU, v.Mem)
	}
	if v.WAN != "1235 kb/s" {
		t.Errorf("WAN = %q", v.WAN)
	}
	if v.AgeSeconds != 2.5 {
		t.Errorf("AgeSeconds = %v", v.AgeSeconds)
	}
	if len(v.Clients) != 2 || v.ClientsPlaceholder != "" {
		t.Fatalf("clients = %+v", v.Clients)
	}
	if c := v.Clients[0]; c.Host != "laptop" || c.IP != "192.168.1.10" || c.RX != 10 {
		t.Errorf("client[0] = %+v", c)
	}
	if c := v.Clients[1]; c.Host != "device" || c.IP != "-" || c.MAC != "-" {
		t.Errorf("client[1] = %+v, want placeholders", c)
	}
	if got := v.Charts[models.SeriesWAN].Values; len(got) != 1 || got[0] != 1235 {
		t.Errorf("wan chart = %v", got)
	}
}

func TestBuild_OfflineKeepsLastSnapshot(t *testing.T) {
	snap := models.Snapshot{CPU: "1.0"}
	v := dashboard.Build(poller.View{
		Record:    store.Record{Snapshot: snap, Timestamp: time.Unix(0, 0)},
		HasData:   true,
		Status:    poller.StatusOffline,
		LastError: "poller: relay returned status 502",
	})

	if v.Status != dashboard.StatusOffline {
		t.Errorf("Status = %q", v.Status)
	}
	if v.CPU != "1.0" {
		t.Errorf("CPU = %q, last snapshot should stay visible", v.CPU)
	}
	if v.WAN != "-" {
		t.Errorf("WAN = %q, want placeholder without wan block", v.WAN)
	}
	if v.ClientsPlaceholder != dashboard.NoClientsMessage {
		t.Errorf("ClientsPlaceholder = %q", v.ClientsPlaceholder)
	}
	if v.LastError == "" {
		t.Error("LastError should be carried through")
	}
}

func TestBuild_WANRounding(t *testing.T) {
	for speed, want := range map[float64]string{
		0:     "0 kb/s",
		0.49:  "0 kb/s",
		0.5:   "1 kb/s",
		99.99: "100 kb/s",
	} {
		v := dashboard.Build(poller.View{HasData: true, Record: store.Record{Snapshot: models.Snapshot{WAN: &models.WAN{Speed: speed}}}})
		if v.WAN != want {
			t.Errorf("speed %v: WAN = %q, want %q", speed, v.WAN, want)
		}
	}
}
