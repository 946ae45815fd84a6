package agent

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net/netip"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/vpbank/routerpulse/models"
	"github.com/vpbank/routerpulse/pkg/routerpulse/config"
	"github.com/vpbank/routerpulse/producer/samples"
	"github.com/vpbank/routerpulse/snmp/decoder"
)

// Object identifiers read from the router.
const (
	oidSysUpTime     = "1.3.6.1.2.1.1.3"          // SNMPv2-MIB::sysUpTime
	oidLaLoad        = "1.3.6.1.4.1.2021.10.1.3"  // UCD-SNMP-MIB::laLoad
	oidMemTotalReal  = "1.3.6.1.4.1.2021.4.5"     // UCD-SNMP-MIB::memTotalReal
	oidMemAvailReal  = "1.3.6.1.4.1.2021.4.6"     // UCD-SNMP-MIB::memAvailReal
	oidIfHCInOctets  = "1.3.6.1.2.1.31.1.1.1.6"   // IF-MIB::ifHCInOctets
	oidIfHCOutOctets = "1.3.6.1.2.1.31.1.1.1.10"  // IF-MIB::ifHCOutOctets
	oidARPPhysAddr   = "1.3.6.1.2.1.4.22.1.2"     // IP-MIB::ipNetToMediaPhysAddress
)

// Column names used in decoded tables.
const (
	colUptime   = "uptime"
	colLoad     = "load"
	colMemTotal = "mem_total"
	colMemAvail = "mem_avail"
	colIn       = "in"
	colOut      = "out"
	colMAC      = "mac"
)

var statusColumns = []decoder.Column{
	{Name: colUptime, OID: oidSysUpTime, Syntax: decoder.SyntaxTimeTicks},
	{Name: colLoad, OID: oidLaLoad, Syntax: decoder.SyntaxFloat},
	{Name: colMemTotal, OID: oidMemTotalReal, Syntax: decoder.SyntaxCounter},
	{Name: colMemAvail, OID: oidMemAvailReal, Syntax: decoder.SyntaxCounter},
	{Name: colIn, OID: oidIfHCInOctets, Syntax: decoder.SyntaxCounter},
	{Name: colOut, OID: oidIfHCOutOctets, Syntax: decoder.SyntaxCounter},
}

var arpColumns = []decoder.Column{
	{Name: colMAC, OID: oidARPPhysAddr, Syntax: decoder.SyntaxPhysAddress},
}

// ─────────────────────────────────────────────────────────────────────────────
// Collector
// ─────────────────────────────────────────────────────────────────────────────

// CollectorConfig controls what the Collector reads.
type CollectorConfig struct {
	Target config.DeviceConfig

	// WANIfIndex is the ifIndex whose HC octet counters feed the wan block.
	WANIfIndex int

	// Dial opens the SNMP session. Default: Dial.
	Dial Dialer

	// Now stamps samples. Default: time.Now.
	Now func() time.Time
}

// Collector reads one snapshot per call. The SNMP session is kept open
// between calls and re-dialled after any failure.
type Collector struct {
	cfg      CollectorConfig
	status   *decoder.VarbindParser
	arp      *decoder.VarbindParser
	counters *samples.CounterState
	logger   *slog.Logger

	mu     sync.Mutex
	client SNMPClient
}

// NewCollector validates cfg and builds the OID parsers.
func NewCollector(cfg CollectorConfig, logger *slog.Logger) (*Collector, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	if cfg.Target.IP == "" {
		return nil, fmt.Errorf("agent: target ip is required")
	}
	if cfg.Dial == nil {
		cfg.Dial = Dial
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	status, err := decoder.NewVarbindParser(statusColumns...)
	if err != nil {
		return nil, fmt.Errorf("agent: %w", err)
	}
	arp, err := decoder.NewVarbindParser(arpColumns...)
	if err != nil {
		return nil, fmt.Errorf("agent: %w", err)
	}

	return &Collector{
		cfg:      cfg,
		status:   status,
		arp:      arp,
		counters: samples.NewCounterState(),
		logger:   logger,
	}, nil
}

// statusOIDs lists the scalar and instance OIDs fetched with one Get.
func (c *Collector) statusOIDs() []string {
	idx := strconv.Itoa(c.cfg.WANIfIndex)
	return []string{
		oidSysUpTime + ".0",
		oidLaLoad + ".1",
		oidLaLoad + ".2",
		oidLaLoad + ".3",
		oidMemTotalReal + ".0",
		oidMemAvailReal + ".0",
		oidIfHCInOctets + "." + idx,
		oidIfHCOutOctets + "." + idx,
	}
}

// Collect reads the router and returns a snapshot. Any SNMP failure closes
// the session and is returned; the caller skips that tick.
func (c *Collector) Collect(ctx context.Context) (models.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return models.Snapshot{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client == nil {
		cl, err := c.cfg.Dial(c.cfg.Target)
		if err != nil {
			return models.Snapshot{}, err
		}
		c.client = cl
	}

	statusPDUs, err := c.client.Get(c.statusOIDs())
	if err != nil {
		c.discard()
		return models.Snapshot{}, fmt.Errorf("agent: snmp get %s: %w", c.cfg.Target.IP, err)
	}
	arpPDUs, err := c.client.Walk(oidARPPhysAddr)
	if err != nil {
		c.discard()
		return models.Snapshot{}, fmt.Errorf("agent: snmp walk %s: %w", c.cfg.Target.IP, err)
	}

	now := c.cfg.Now()
	snap := c.build(
		decoder.Decode(c.status, statusPDUs, c.logger),
		decoder.Decode(c.arp, arpPDUs, c.logger),
		now,
	)

	c.logger.Debug("agent: collected",
		"target", c.cfg.Target.IP,
		"status_pdus", len(statusPDUs),
		"arp_pdus", len(arpPDUs),
		"clients", len(snap.Clients),
	)
	return snap, nil
}

// discard drops the session and the counter baselines. A failed request often
// means the router rebooted, and its octet counters restart from zero.
func (c *Collector) discard() {
	if err := c.client.Close(); err != nil {
		c.logger.Debug("agent: close snmp session", "error", err.Error())
	}
	c.client = nil
	c.counters.Reset()
}

// Close releases the SNMP session.
func (c *Collector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client == nil {
		return nil
	}
	err := c.client.Close()
	c.client = nil
	return err
}

// ─────────────────────────────────────────────────────────────────────────────
// Snapshot assembly
// ─────────────────────────────────────────────────────────────────────────────

func (c *Collector) build(status, arp *decoder.Table, now time.Time) models.Snapshot {
	snap := models.Snapshot{TS: now.UnixMilli()}

	snap.CPU = formatLoads(status)
	if row := status.Row("0"); row != nil {
		if ticks, ok := row.Uint(colUptime); ok {
			snap.Uptime = FormatTicks(ticks)
		}
		total, okT := row.Uint(colMemTotal)
		avail, okA := row.Uint(colMemAvail)
		if okT {
			snap.Mem = FormatMem(total, avail, okA)
		}
	}
	if row := status.Row(strconv.Itoa(c.cfg.WANIfIndex)); row != nil {
		rx, okRX := row.Uint(colIn)
		tx, okTX := row.Uint(colOut)
		if okRX && okTX {
			snap.WAN = &models.WAN{RX: rx, TX: tx, Speed: c.speed(rx, tx, now)}
		}
	}
	snap.Clients = ARPClients(arp)
	return snap
}

// speed is (Δrx+Δtx)·8/1000/Δt in kb/s, 0 until two samples exist.
func (c *Collector) speed(rx, tx uint64, now time.Time) float64 {
	drx := c.counters.Delta(colIn, rx, now, samples.WrapCounter64)
	dtx := c.counters.Delta(colOut, tx, now, samples.WrapCounter64)
	if !drx.Valid || !dtx.Valid {
		return 0
	}
	kbps := (drx.PerSecond() + dtx.PerSecond()) * 8 / 1000
	return math.Round(kbps*100) / 100
}

// FormatTicks renders TimeTicks (hundredths of a second) as seconds with two
// decimals, e.g. 1234567 → "12345.67".
func FormatTicks(ticks uint64) string {
	return fmt.Sprintf("%d.%02d", ticks/100, ticks%100)
}

// FormatMem renders "used/total". Without an available figure used equals
// total.
func FormatMem(total, avail uint64, haveAvail bool) string {
	used := total
	if haveAvail && avail <= total {
		used = total - avail
	}
	return strconv.FormatUint(used, 10) + "/" + strconv.FormatUint(total, 10)
}

func formatLoads(status *decoder.Table) string {
	var parts []string
	for _, inst := range []string{"1", "2", "3"} {
		row := status.Row(inst)
		if row == nil {
			continue
		}
		if v, ok := row.Float(colLoad); ok {
			parts = append(parts, strconv.FormatFloat(v, 'f', 2, 64))
		}
	}
	return strings.Join(parts, " ")
}

// ARPClients turns ipNetToMediaPhysAddress rows into clients sorted by IP.
// The row instance is "<ifIndex>.<a>.<b>.<c>.<d>". Duplicate IPs seen on
// several interfaces are reported once.
func ARPClients(arp *decoder.Table) []models.Client {
	type entry struct {
		addr netip.Addr
		mac  string
	}
	seen := make(map[netip.Addr]bool)
	var entries []entry

	for _, inst := range arp.Instances() {
		parts := strings.Split(inst, ".")
		if len(parts) < 5 {
			continue
		}
		addr, err := netip.ParseAddr(strings.Join(parts[len(parts)-4:], "."))
		if err != nil || seen[addr] {
			continue
		}
		mac, _ := arp.Row(inst).Text(colMAC)
		seen[addr] = true
		entries = append(entries, entry{addr: addr, mac: mac})
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].addr.Less(entries[j].addr) })

	clients := make([]models.Client, 0, len(entries))
	for _, e := range entries {
		clients = append(clients, models.Client{IP: e.addr.String(), MAC: e.mac})
	}
	return clients
}
