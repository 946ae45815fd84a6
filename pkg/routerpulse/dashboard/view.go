// Package dashboard turns the Ingestor's state into the read-only view the
// browser renders, and pushes that view to websocket subscribers after every
// poll cycle.
package dashboard

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/vpbank/routerpulse/models"
	"github.com/vpbank/routerpulse/pkg/routerpulse/poller"
	"github.com/vpbank/routerpulse/pkg/routerpulse/series"
)

// Display strings.
const (
	StatusLive       = "Live"
	StatusOffline    = "Offline / no data"
	StatusConnecting = "Connecting"

	Placeholder        = "-"
	DefaultHost        = "device"
	NoClientsMessage   = "No clients"
	wanUnit            = " kb/s"
	secondsPerDay      = 86400
	secondsPerHour     = 3600
	secondsPerMinute   = 60
	neverUpdatedSecond = -1
)

// ClientView is one row of the client list.
type ClientView struct {
	Host string `json:"host"`
	IP   string `json:"ip"`
	MAC  string `json:"mac"`
	RX   uint64 `json:"rx,omitempty"`
	TX   uint64 `json:"tx,omitempty"`
}

// View is the JSON document served on /api/dashboard and pushed on /ws.
type View struct {
	Status             string                  `json:"status"`
	Last               string                  `json:"last"`
	Uptime             string                  `json:"uptime"`
	CPU                string                  `json:"cpu"`
	Mem                string                  `json:"mem"`
	WAN                string                  `json:"wan"`
	Clients            []ClientView            `json:"clients"`
	ClientsPlaceholder string                  `json:"clients_placeholder,omitempty"`
	Charts             map[string]series.Chart `json:"charts"`
	AgeSeconds         float64                 `json:"age_seconds"`
	LastError          string                  `json:"last_error,omitempty"`
}

// Build renders v. It never fails: missing or unusable fields become
// placeholders. The last stored snapshot stays visible while offline.
func Build(v poller.View) View {
	out := View{
		Status:     statusText(v.Status),
		Last:       Placeholder,
		Uptime:     Placeholder,
		CPU:        Placeholder,
		Mem:        Placeholder,
		WAN:        Placeholder,
		Clients:    []ClientView{},
		Charts:     v.Charts,
		AgeSeconds: neverUpdatedSecond,
		LastError:  v.LastError,
	}
	if out.Charts == nil {
		out.Charts = map[string]series.Chart{}
	}
	if v.Age >= 0 {
		out.AgeSeconds = math.Round(v.Age.Seconds()*1000) / 1000
	}

	if !v.HasData {
		out.ClientsPlaceholder = NoClientsMessage
		return out
	}

	snap := v.Record.Snapshot
	out.Last = lastText(v.Record.Timestamp)
	out.Uptime = FormatUptime(snap.Uptime)
	out.CPU = orPlaceholder(snap.CPU)
	out.Mem = orPlaceholder(snap.Mem)
	if snap.WAN != nil {
		out.WAN = strconv.FormatFloat(math.Floor(snap.WAN.Speed+0.5), 'f', 0, 64) + wanUnit
	}

	for _, c := range snap.Clients {
		out.Clients = append(out.Clients, clientView(c))
	}
	if len(out.Clients) == 0 {
		out.ClientsPlaceholder = NoClientsMessage
	}
	return out
}

func statusText(s poller.Status) string {
	switch s {
	case poller.StatusLive:
		return StatusLive
	case poller.StatusOffline:
		return StatusOffline
	default:
		return StatusConnecting
	}
}

func lastText(ts time.Time) string {
	if ts.IsZero() {
		return Placeholder
	}
	return ts.Format(time.RFC3339)
}

// FormatUptime renders uptime seconds as "Xd Hh Mm", dropping the day part
// when it is zero. Absent, unparsable or negative input yields "-".
func FormatUptime(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Placeholder
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f < 0 || f >= math.MaxInt64 {
		return Placeholder
	}

	s := int64(f)
	days := s / secondsPerDay
	hours := (s % secondsPerDay) / secondsPerHour
	mins := (s % secondsPerHour) / secondsPerMinute

	var b strings.Builder
	if days > 0 {
		b.WriteString(strconv.FormatInt(days, 10))
		b.WriteString("d ")
	}
	b.WriteString(strconv.FormatInt(hours, 10))
	b.WriteString("h ")
	b.WriteString(strconv.FormatInt(mins, 10))
	b.WriteString("m")
	return b.String()
}

func clientView(c models.Client) ClientView {
	host := c.Hostname
	if host == "" {
		host = DefaultHost
	}
	return ClientView{
		Host: host,
		IP:   orPlaceholder(c.IP),
		MAC:  orPlaceholder(c.MAC),
		RX:   c.RX,
		TX:   c.TX,
	}
}

func orPlaceholder(s string) string {
	if strings.TrimSpace(s) == "" {
		return Placeholder
	}
	return s
}
