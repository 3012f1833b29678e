// Package config holds the daemon's tunables as a functional-options
// struct, the idiom SilvaMendes-go-rtpengine's ClientOption uses. CLI flag
// parsing and config-file loading stay out of scope (spec.md Non-goal);
// cmd/airserved calls New with a handful of these options behind a thin
// flag front door only to remain runnable.
package config

import "github.com/antimof/UxPlay-sub000/internal/discovery"

// Config is the set of values a daemon.Server needs at construction time.
type Config struct {
	// ServerName is advertised in DNS-SD instance names and the /info
	// device descriptor.
	ServerName string

	// KeyFile, if non-empty, is where the Ed25519 identity is persisted
	// (PEM-encoded). If empty, the identity is deterministically derived
	// from the device ID.
	KeyFile string

	// DeviceID is the colon-separated hex MAC-style identifier used in
	// deterministic identity derivation, SRP usernames and DNS-SD TXT
	// records.
	DeviceID string

	// RTSPPort, AirPlayPort: 0 means "let the OS choose."
	RTSPPort    int
	AirPlayPort int

	// EnableIPv6 controls whether the daemon also binds a dual-stack/IPv6
	// listener alongside the mandatory IPv4 one.
	EnableIPv6 bool

	// MaxConnections is the AppleTV3-compatibility concurrent-connection
	// cap (spec.md §4.5); New sets it to 12, and 0 disables the cap.
	MaxConnections int

	// MaxNTPTimeouts is the number of consecutive missed NTP replies
	// before a connection reset is triggered; 0 means "never reset."
	MaxNTPTimeouts int

	// Advertiser registers the server's DNS-SD services; defaults to
	// discovery.NoopAdvertiser when unset.
	Advertiser discovery.Advertiser

	// PIN, if non-empty, enables SRP-6a pair-setup-with-PIN alongside the
	// normal Ed25519 pair-setup/verify flow.
	PIN string
}

// Option mutates a Config at construction time.
type Option func(*Config) error

// New builds a Config from defaults plus the given options.
func New(options ...Option) (*Config, error) {
	c := &Config{
		ServerName:     "AirServed",
		MaxConnections: 12,
		MaxNTPTimeouts: 5,
		Advertiser:     discovery.NoopAdvertiser{},
	}
	for _, o := range options {
		if err := o(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// WithServerName sets the advertised server/device name.
func WithServerName(name string) Option {
	return func(c *Config) error {
		c.ServerName = name
		return nil
	}
}

// WithKeyFile sets the Ed25519 identity keyfile path.
func WithKeyFile(path string) Option {
	return func(c *Config) error {
		c.KeyFile = path
		return nil
	}
}

// WithDeviceID sets the colon-separated hex device identifier.
func WithDeviceID(id string) Option {
	return func(c *Config) error {
		c.DeviceID = id
		return nil
	}
}

// WithPorts sets static RTSP/AirPlay ports; pass 0 for either to let the OS
// choose.
func WithPorts(rtsp, airplay int) Option {
	return func(c *Config) error {
		c.RTSPPort = rtsp
		c.AirPlayPort = airplay
		return nil
	}
}

// WithIPv6 enables the dual-stack IPv6 listener.
func WithIPv6(enabled bool) Option {
	return func(c *Config) error {
		c.EnableIPv6 = enabled
		return nil
	}
}

// WithMaxConnections overrides the concurrent-connection cap.
func WithMaxConnections(n int) Option {
	return func(c *Config) error {
		c.MaxConnections = n
		return nil
	}
}

// WithMaxNTPTimeouts overrides the consecutive-timeout reset threshold.
func WithMaxNTPTimeouts(n int) Option {
	return func(c *Config) error {
		c.MaxNTPTimeouts = n
		return nil
	}
}

// WithAdvertiser wires a real DNS-SD advertiser instead of the no-op
// default.
func WithAdvertiser(a discovery.Advertiser) Option {
	return func(c *Config) error {
		c.Advertiser = a
		return nil
	}
}

// WithPIN enables SRP-6a pair-setup-with-PIN using the given PIN code.
func WithPIN(pin string) Option {
	return func(c *Config) error {
		c.PIN = pin
		return nil
	}
}
