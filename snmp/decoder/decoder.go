// Package decoder turns raw gosnmp PDUs into typed values keyed by column
// name and table instance. The router agent uses it to read the system,
// load, memory, interface and ARP objects it reports.
package decoder

import (
	"log/slog"
	"sort"

	"github.com/gosnmp/gosnmp"
)

// ─────────────────────────────────────────────────────────────────────────────
// Table
// ─────────────────────────────────────────────────────────────────────────────

// Row holds the values of one table instance, keyed by column name.
type Row map[string]interface{}

// Table groups decoded varbinds by instance.
type Table struct {
	rows map[string]Row
}

// NewTable groups vbs by Varbind.Instance. A later varbind for the same
// instance and column replaces an earlier one.
func NewTable(vbs []Varbind) *Table {
	t := &Table{rows: make(map[string]Row)}
	for _, vb := range vbs {
		row, ok := t.rows[vb.Instance]
		if !ok {
			row = make(Row)
			t.rows[vb.Instance] = row
		}
		row[vb.Column] = vb.Value
	}
	return t
}

// Len returns the number of instances.
func (t *Table) Len() int { return len(t.rows) }

// Row returns the row for instance, or nil.
func (t *Table) Row(instance string) Row { return t.rows[instance] }

// Instances returns every instance in lexical order.
func (t *Table) Instances() []string {
	out := make([]string, 0, len(t.rows))
	for k := range t.rows {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Scalar returns the value of column at instance "0".
func (t *Table) Scalar(column string) (interface{}, bool) {
	row := t.rows["0"]
	if row == nil {
		return nil, false
	}
	v, ok := row[column]
	return v, ok
}

// ─────────────────────────────────────────────────────────────────────────────
// Typed accessors
// ─────────────────────────────────────────────────────────────────────────────

// Uint returns row[column] as uint64.
func (r Row) Uint(column string) (uint64, bool) {
	v, ok := r[column].(uint64)
	return v, ok
}

// Int returns row[column] as int64.
func (r Row) Int(column string) (int64, bool) {
	v, ok := r[column].(int64)
	return v, ok
}

// Float returns row[column] as float64.
func (r Row) Float(column string) (float64, bool) {
	v, ok := r[column].(float64)
	return v, ok
}

// Text returns row[column] as string.
func (r Row) Text(column string) (string, bool) {
	v, ok := r[column].(string)
	return v, ok
}

// ─────────────────────────────────────────────────────────────────────────────
// Decode
// ─────────────────────────────────────────────────────────────────────────────

// Decode parses pdus with p and groups the result. Conversion failures are
// logged and the affected values omitted.
func Decode(p *VarbindParser, pdus []gosnmp.SnmpPDU, logger *slog.Logger) *Table {
	vbs, err := p.Parse(pdus)
	if err != nil && logger != nil {
		logger.Warn("decoder: dropped unconvertible values",
			"decoded_count", len(vbs),
			"total_pdus", len(pdus),
			"error", err.Error(),
		)
	}
	return NewTable(vbs)
}
