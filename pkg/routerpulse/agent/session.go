// Package agent implements the router-side collector: it reads the router's
// state over SNMP, assembles a snapshot and pushes it to the relay.
package agent

import (
	"fmt"
	"strings"
	"time"

	"github.com/gosnmp/gosnmp"

	"github.com/vpbank/routerpulse/pkg/routerpulse/config"
)

// ─────────────────────────────────────────────────────────────────────────────
// SNMPClient
// ─────────────────────────────────────────────────────────────────────────────

// SNMPClient is the subset of SNMP operations the collector needs.
type SNMPClient interface {
	Get(oids []string) ([]gosnmp.SnmpPDU, error)
	Walk(root string) ([]gosnmp.SnmpPDU, error)
	Close() error
}

// Dialer opens an SNMPClient for a target.
type Dialer func(cfg config.DeviceConfig) (SNMPClient, error)

type gosnmpClient struct {
	g *gosnmp.GoSNMP
}

func (c *gosnmpClient) Get(oids []string) ([]gosnmp.SnmpPDU, error) {
	pkt, err := c.g.Get(oids)
	if err != nil {
		return nil, err
	}
	return pkt.Variables, nil
}

// Walk uses GetBulk on v2c/v3 and GetNext on v1.
func (c *gosnmpClient) Walk(root string) ([]gosnmp.SnmpPDU, error) {
	if c.g.Version == gosnmp.Version1 {
		return c.g.WalkAll(root)
	}
	return c.g.BulkWalkAll(root)
}

func (c *gosnmpClient) Close() error {
	if c.g.Conn == nil {
		return nil
	}
	return c.g.Conn.Close()
}

// Dial builds and connects a gosnmp session for cfg. It is the default
// Dialer.
func Dial(cfg config.DeviceConfig) (SNMPClient, error) {
	g, err := NewSession(cfg)
	if err != nil {
		return nil, err
	}
	return &gosnmpClient{g: g}, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Session factory
// ─────────────────────────────────────────────────────────────────────────────

// NewSession creates and connects a gosnmp session. Only the first community
// or credential set is used.
func NewSession(cfg config.DeviceConfig) (*gosnmp.GoSNMP, error) {
	g := &gosnmp.GoSNMP{
		Target:             cfg.IP,
		Port:               uint16(cfg.Port),
		Timeout:            time.Duration(cfg.Timeout) * time.Millisecond,
		Retries:            cfg.Retries,
		ExponentialTimeout: cfg.ExponentialTimeout,
		MaxOids:            gosnmp.MaxOids,
	}

	switch cfg.Version {
	case "1", "2c":
		g.Version = gosnmp.Version2c
		if cfg.Version == "1" {
			g.Version = gosnmp.Version1
		}
		if len(cfg.Communities) > 0 {
			g.Community = cfg.Communities[0]
		}
	case "3":
		if len(cfg.V3Credentials) == 0 {
			return nil, fmt.Errorf("agent: snmp v3 target %s has no credentials", cfg.IP)
		}
		cred := cfg.V3Credentials[0]
		g.Version = gosnmp.Version3
		g.SecurityModel = gosnmp.UserSecurityModel
		g.MsgFlags = msgFlags(cred)
		g.SecurityParameters = &gosnmp.UsmSecurityParameters{
			UserName:                 cred.Username,
			AuthenticationProtocol:   authProtocol(cred.AuthenticationProtocol),
			AuthenticationPassphrase: cred.AuthenticationPassphrase,
			PrivacyProtocol:          privProtocol(cred.PrivacyProtocol),
			PrivacyPassphrase:        cred.PrivacyPassphrase,
		}
	default:
		return nil, fmt.Errorf("agent: unsupported snmp version %q", cfg.Version)
	}

	if err := g.Connect(); err != nil {
		return nil, fmt.Errorf("agent: snmp connect %s:%d: %w", cfg.IP, cfg.Port, err)
	}
	return g, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// SNMPv3 helpers
// ─────────────────────────────────────────────────────────────────────────────

func msgFlags(cred config.V3Credentials) gosnmp.SnmpV3MsgFlags {
	auth := cred.AuthenticationProtocol != "" && !strings.EqualFold(cred.AuthenticationProtocol, "noauth")
	priv := cred.PrivacyProtocol != "" && !strings.EqualFold(cred.PrivacyProtocol, "nopriv")

	switch {
	case auth && priv:
		return gosnmp.AuthPriv
	case auth:
		return gosnmp.AuthNoPriv
	default:
		return gosnmp.NoAuthNoPriv
	}
}

var authProtocols = map[string]gosnmp.SnmpV3AuthProtocol{
	"md5":    gosnmp.MD5,
	"sha":    gosnmp.SHA,
	"sha224": gosnmp.SHA224,
	"sha256": gosnmp.SHA256,
	"sha384": gosnmp.SHA384,
	"sha512": gosnmp.SHA512,
}

var privProtocols = map[string]gosnmp.SnmpV3PrivProtocol{
	"des":     gosnmp.DES,
	"aes":     gosnmp.AES,
	"aes192":  gosnmp.AES192,
	"aes256":  gosnmp.AES256,
	"aes192c": gosnmp.AES192C,
	"aes256c": gosnmp.AES256C,
}

func authProtocol(s string) gosnmp.SnmpV3AuthProtocol {
	if p, ok := authProtocols[strings.ToLower(s)]; ok {
		return p
	}
	return gosnmp.NoAuth
}

func privProtocol(s string) gosnmp.SnmpV3PrivProtocol {
	if p, ok := privProtocols[strings.ToLower(s)]; ok {
		return p
	}
	return gosnmp.NoPriv
}
