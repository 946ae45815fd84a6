package decoder

import (
	"encoding/hex"
	"fmt"
	"math"
	"net"
	"strconv"
	"strings"

	"github.com/gosnmp/gosnmp"
)

// Column syntaxes understood by ConvertValue. Anything else falls back to a
// conversion chosen by the PDU type.
const (
	SyntaxInteger       = "Integer"
	SyntaxCounter       = "Counter"
	SyntaxTimeTicks     = "TimeTicks"
	SyntaxDisplayString = "DisplayString"
	SyntaxPhysAddress   = "PhysAddress"
	SyntaxIPAddress     = "IpAddress"
	SyntaxFloat         = "Float"
)

// ─────────────────────────────────────────────────────────────────────────────
// SNMP PDU Type → String
// ─────────────────────────────────────────────────────────────────────────────

// PDUTypeString returns the human-readable name for a gosnmp Asn1BER type tag.
func PDUTypeString(t gosnmp.Asn1BER) string {
	switch t {
	case gosnmp.Integer:
		return "Integer"
	case gosnmp.OctetString:
		return "OctetString"
	case gosnmp.Null:
		return "Null"
	case gosnmp.ObjectIdentifier:
		return "ObjectIdentifier"
	case gosnmp.IPAddress:
		return "IpAddress"
	case gosnmp.Counter32:
		return "Counter32"
	case gosnmp.Gauge32:
		return "Gauge32"
	case gosnmp.TimeTicks:
		return "TimeTicks"
	case gosnmp.Counter64:
		return "Counter64"
	case gosnmp.Uinteger32:
		return "Unsigned32"
	case gosnmp.OpaqueFloat:
		return "OpaqueFloat"
	case gosnmp.OpaqueDouble:
		return "OpaqueDouble"
	case gosnmp.NoSuchObject:
		return "NoSuchObject"
	case gosnmp.NoSuchInstance:
		return "NoSuchInstance"
	case gosnmp.EndOfMibView:
		return "EndOfMibView"
	default:
		return fmt.Sprintf("Unknown(0x%02X)", uint8(t))
	}
}

// IsErrorType reports whether the PDU type signals a retrieval error rather
// than a value.
func IsErrorType(t gosnmp.Asn1BER) bool {
	return t == gosnmp.NoSuchObject || t == gosnmp.NoSuchInstance || t == gosnmp.EndOfMibView || t == gosnmp.Null
}

// ─────────────────────────────────────────────────────────────────────────────
// Value Conversion
// ─────────────────────────────────────────────────────────────────────────────

// ConvertValue converts a raw gosnmp value to the Go type implied by syntax:
//
//	Integer        int64
//	Counter        uint64 (Counter32/64, Gauge32, Unsigned32)
//	TimeTicks      uint64 hundredths of a second
//	DisplayString  string, trailing NULs stripped
//	PhysAddress    "aa:bb:cc:dd:ee:ff"
//	IpAddress      dotted decimal
//	Float          float64, also parsed from text (UCD laLoad is a string)
func ConvertValue(rawType gosnmp.Asn1BER, rawValue interface{}, syntax string) (interface{}, error) {
	if IsErrorType(rawType) {
		return nil, fmt.Errorf("skipped: PDU type is %s", PDUTypeString(rawType))
	}

	switch syntax {
	case SyntaxInteger:
		return toInt64(rawValue)
	case SyntaxCounter, SyntaxTimeTicks:
		return toUint64(rawValue)
	case SyntaxDisplayString:
		return toDisplayString(rawValue)
	case SyntaxPhysAddress:
		return toMACString(rawValue)
	case SyntaxIPAddress:
		return toIPString(rawValue)
	case SyntaxFloat:
		return toFloat64(rawValue)
	default:
		return fallbackConvert(rawType, rawValue)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Low-level conversion helpers
// ─────────────────────────────────────────────────────────────────────────────

func toInt64(v interface{}) (int64, error) {
	switch x := v.(type) {
	case int:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case int64:
		return x, nil
	case uint:
		return int64(x), nil
	case uint32:
		return int64(x), nil
	case uint64:
		if x > math.MaxInt64 {
			return 0, fmt.Errorf("uint64 value %d overflows int64", x)
		}
		return int64(x), nil
	default:
		return 0, fmt.Errorf("cannot convert %T to int64", v)
	}
}

func toUint64(v interface{}) (uint64, error) {
	switch x := v.(type) {
	case int:
		if x < 0 {
			return 0, fmt.Errorf("negative value %d cannot be converted to uint64", x)
		}
		return uint64(x), nil
	case int32:
		if x < 0 {
			return 0, fmt.Errorf("negative value %d cannot be converted to uint64", x)
		}
		return uint64(x), nil
	case int64:
		if x < 0 {
			return 0, fmt.Errorf("negative value %d cannot be converted to uint64", x)
		}
		return uint64(x), nil
	case uint:
		return uint64(x), nil
	case uint32:
		return uint64(x), nil
	case uint64:
		return x, nil
	default:
		return 0, fmt.Errorf("cannot convert %T to uint64", v)
	}
}

func toFloat64(v interface{}) (float64, error) {
	switch x := v.(type) {
	case int:
		return float64(x), nil
	case int32:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case uint:
		return float64(x), nil
	case uint32:
		return float64(x), nil
	case uint64:
		return float64(x), nil
	case float32:
		return float64(x), nil
	case float64:
		return x, nil
	case []byte, string:
		s, _ := toDisplayString(x)
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return 0, fmt.Errorf("cannot parse %q as float64", s)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("cannot convert %T to float64", v)
	}
}

// toDisplayString strips the trailing NULs some agents append.
func toDisplayString(v interface{}) (string, error) {
	switch x := v.(type) {
	case string:
		return strings.TrimRight(x, "\x00"), nil
	case []byte:
		return strings.TrimRight(string(x), "\x00"), nil
	default:
		return fmt.Sprintf("%v", v), nil
	}
}

func toMACString(v interface{}) (string, error) {
	var b []byte
	switch x := v.(type) {
	case []byte:
		b = x
	case string:
		b = []byte(x)
	default:
		return fmt.Sprintf("%v", v), nil
	}

	if len(b) == 0 {
		return "", nil
	}
	if len(b) == 6 {
		return net.HardwareAddr(b).String(), nil
	}

	parts := make([]string, len(b))
	for i, octet := range b {
		parts[i] = hex.EncodeToString([]byte{octet})
	}
	return strings.Join(parts, ":"), nil
}

func toIPString(v interface{}) (string, error) {
	switch x := v.(type) {
	case string:
		if b := []byte(x); len(b) == 4 {
			return net.IP(b).String(), nil
		}
		return x, nil
	case []byte:
		if len(x) == 4 || len(x) == 16 {
			return net.IP(x).String(), nil
		}
		return hex.EncodeToString(x), nil
	default:
		return fmt.Sprintf("%v", v), nil
	}
}

func toOIDString(v interface{}) (string, error) {
	switch x := v.(type) {
	case string:
		return strings.TrimPrefix(x, "."), nil
	case []byte:
		return strings.TrimPrefix(string(x), "."), nil
	default:
		return fmt.Sprintf("%v", v), nil
	}
}

// fallbackConvert picks a conversion from the PDU type when the column has
// no declared syntax.
func fallbackConvert(t gosnmp.Asn1BER, v interface{}) (interface{}, error) {
	switch t {
	case gosnmp.Integer:
		return toInt64(v)
	case gosnmp.Counter32, gosnmp.Counter64, gosnmp.Gauge32, gosnmp.TimeTicks, gosnmp.Uinteger32:
		return toUint64(v)
	case gosnmp.OctetString, gosnmp.ObjectDescription:
		return toDisplayString(v)
	case gosnmp.ObjectIdentifier:
		return toOIDString(v)
	case gosnmp.IPAddress:
		return toIPString(v)
	case gosnmp.OpaqueFloat, gosnmp.OpaqueDouble:
		return toFloat64(v)
	default:
		if b, ok := v.([]byte); ok {
			return b, nil
		}
		return fmt.Sprintf("%v", v), nil
	}
}
