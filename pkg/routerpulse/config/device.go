package config

// DeviceConfig is the SNMP target polled by the router agent. Zero-valued
// optional fields are filled by withDefaults.
type DeviceConfig struct {
	// IP is the management address of the router.
	IP string `yaml:"ip" validate:"omitempty,ip|hostname"`

	// Port is the UDP port for SNMP requests (default 161).
	Port int `yaml:"port" validate:"gte=0,lte=65535"`

	// Timeout is the per-request timeout in milliseconds (default 3000).
	Timeout int `yaml:"timeout" validate:"gte=0"`

	// Retries is the number of retry attempts on timeout (default 2).
	Retries int `yaml:"retries" validate:"gte=0"`

	// ExponentialTimeout enables exponential backoff between retries.
	ExponentialTimeout bool `yaml:"exponential_timeout"`

	// Version is the SNMP version: "1", "2c", or "3".
	Version string `yaml:"version" validate:"omitempty,oneof=1 2c 3"`

	// Communities is the list of community strings to try (v1/v2c only).
	Communities []string `yaml:"communities"`

	// V3Credentials is the list of SNMPv3 credential sets to try (v3 only).
	V3Credentials []V3Credentials `yaml:"v3_credentials" validate:"dive"`
}

// V3Credentials holds a single set of SNMPv3 security parameters.
type V3Credentials struct {
	// Username is the SNMPv3 security name.
	Username string `yaml:"username" validate:"required"`

	// AuthenticationProtocol is one of: noauth, md5, sha, sha224, sha256, sha384, sha512.
	AuthenticationProtocol string `yaml:"authentication_protocol" validate:"omitempty,oneof=noauth md5 sha sha224 sha256 sha384 sha512"`

	// AuthenticationPassphrase is the passphrase for the chosen auth protocol.
	AuthenticationPassphrase string `yaml:"authentication_passphrase"`

	// PrivacyProtocol is one of: nopriv, des, aes, aes192, aes256, aes192c, aes256c.
	PrivacyProtocol string `yaml:"privacy_protocol" validate:"omitempty,oneof=nopriv des aes aes192 aes256 aes192c aes256c"`

	// PrivacyPassphrase is the passphrase for the chosen privacy protocol.
	PrivacyPassphrase string `yaml:"privacy_passphrase"`
}

func (d DeviceConfig) withDefaults() DeviceConfig {
	if d.Port == 0 {
		d.Port = 161
	}
	if d.Timeout == 0 {
		d.Timeout = 3000
	}
	if d.Retries == 0 {
		d.Retries = 2
	}
	if d.Version == "" {
		d.Version = "2c"
	}
	if d.Version != "3" && len(d.Communities) == 0 {
		d.Communities = []string{"public"}
	}
	return d
}
