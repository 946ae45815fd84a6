package decoder

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gosnmp/gosnmp"
)

// ─────────────────────────────────────────────────────────────────────────────
// Column / Varbind
// ─────────────────────────────────────────────────────────────────────────────

// Column names one OID the agent asks for. For a scalar the OID is the
// object without its ".0" instance; for a table it is the column OID.
type Column struct {
	Name   string
	OID    string
	Syntax string
}

// Varbind is one decoded PDU.
type Varbind struct {
	// OID is the full numeric OID without a leading dot.
	OID string

	// Column is the matched Column.Name.
	Column string

	// Instance is the index suffix after the column OID: "0" for scalars,
	// e.g. "1" for ifIndex 1 or "2.192.168.1.10" for ipNetToMediaTable.
	Instance string

	Value    interface{}
	SNMPType string
}

// ─────────────────────────────────────────────────────────────────────────────
// VarbindParser
// ─────────────────────────────────────────────────────────────────────────────

// VarbindParser matches PDUs to a fixed set of columns. It is stateless after
// construction and safe for concurrent use.
type VarbindParser struct {
	byOID map[string]Column
}

// NewVarbindParser indexes cols by normalised OID.
func NewVarbindParser(cols ...Column) (*VarbindParser, error) {
	if len(cols) == 0 {
		return nil, errors.New("decoder: no columns")
	}
	byOID := make(map[string]Column, len(cols))
	for _, c := range cols {
		norm := normaliseOID(c.OID)
		if norm == "" {
			return nil, fmt.Errorf("decoder: column %q has an empty OID", c.Name)
		}
		if prev, dup := byOID[norm]; dup {
			return nil, fmt.Errorf("decoder: columns %q and %q share OID %s", prev.Name, c.Name, norm)
		}
		byOID[norm] = c
	}
	return &VarbindParser{byOID: byOID}, nil
}

// Parse decodes every PDU that falls under a known column. PDUs outside the
// column set and error sentinels are skipped. A value that fails conversion
// is dropped and reported in the joined error; the rest are still returned.
func (p *VarbindParser) Parse(pdus []gosnmp.SnmpPDU) ([]Varbind, error) {
	out := make([]Varbind, 0, len(pdus))
	var errs []error

	for i := range pdus {
		pdu := &pdus[i]
		if IsErrorType(pdu.Type) {
			continue
		}

		oid := normaliseOID(pdu.Name)
		col, instance, ok := p.match(oid)
		if !ok {
			continue
		}

		v, err := ConvertValue(pdu.Type, pdu.Value, col.Syntax)
		if err != nil {
			errs = append(errs, fmt.Errorf("oid %s (column %s): %w", oid, col.Name, err))
			continue
		}
		out = append(out, Varbind{
			OID:      oid,
			Column:   col.Name,
			Instance: instance,
			Value:    v,
			SNMPType: PDUTypeString(pdu.Type),
		})
	}
	return out, errors.Join(errs...)
}

// match finds the longest column OID that prefixes oid on a sub-identifier
// boundary and returns the remainder as the instance.
func (p *VarbindParser) match(oid string) (Column, string, bool) {
	prefix := oid
	for {
		dot := strings.LastIndex(prefix, ".")
		if dot < 0 {
			return Column{}, "", false
		}
		prefix = prefix[:dot]
		if c, ok := p.byOID[prefix]; ok {
			return c, oid[len(prefix)+1:], true
		}
	}
}

func normaliseOID(oid string) string {
	return strings.TrimPrefix(strings.TrimSpace(oid), ".")
}
