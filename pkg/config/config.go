package config

import (
	"fmt"
	"net"
	"os"

	"gopkg.in/yaml.v3"
)

// maxInterfaceName is the kernel limit on interface names, excluding the
// trailing NUL.
const maxInterfaceName = 15

// Config represents the tunctld configuration
type Config struct {
	// Interface to create and configure
	Interface InterfaceConfig `yaml:"interface"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging,omitempty"`
}

// InterfaceConfig describes the virtual interface
type InterfaceConfig struct {
	// Mode selects the adapter layer: "tun" (IP packets) or "tap"
	// (ethernet frames). Default: tun.
	Mode string `yaml:"mode,omitempty"`

	// Name to request for the interface. The kernel may assign a
	// different one; empty triggers auto-assignment.
	Name string `yaml:"name,omitempty"`

	// MTU to set (default: kernel default)
	MTU int `yaml:"mtu,omitempty"`

	// IPv4 address in CIDR notation (e.g. 10.0.0.1/24)
	IPv4 string `yaml:"ipv4,omitempty"`

	// IPv6 address in CIDR notation
	IPv6 string `yaml:"ipv6,omitempty"`

	// Peer is the point-to-point IPv4 peer address (tun mode only)
	Peer string `yaml:"peer,omitempty"`

	// Up controls whether the interface is brought up after
	// configuration (default: true)
	Up *bool `yaml:"up,omitempty"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	// Verbose enables verbose logging
	Verbose bool `yaml:"verbose,omitempty"`
}

// LoadFromFile loads configuration from a YAML file
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default values for unspecified fields
func (c *Config) setDefaults() {
	if c.Interface.Mode == "" {
		c.Interface.Mode = "tun"
	}
	if c.Interface.Up == nil {
		up := true
		c.Interface.Up = &up
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	ic := &c.Interface

	if ic.Mode != "tun" && ic.Mode != "tap" {
		return fmt.Errorf("invalid mode: %s (must be tun or tap)", ic.Mode)
	}

	if len(ic.Name) > maxInterfaceName {
		return fmt.Errorf("interface name %q exceeds %d bytes", ic.Name, maxInterfaceName)
	}

	if ic.MTU != 0 && (ic.MTU < 576 || ic.MTU > 65535) {
		return fmt.Errorf("invalid mtu %d (must be in 576..65535)", ic.MTU)
	}

	if ic.IPv4 != "" {
		ip, _, err := net.ParseCIDR(ic.IPv4)
		if err != nil {
			return fmt.Errorf("invalid ipv4 address %q: %w", ic.IPv4, err)
		}
		if ip.To4() == nil {
			return fmt.Errorf("ipv4 address %q is not IPv4", ic.IPv4)
		}
	}

	if ic.IPv6 != "" {
		ip, _, err := net.ParseCIDR(ic.IPv6)
		if err != nil {
			return fmt.Errorf("invalid ipv6 address %q: %w", ic.IPv6, err)
		}
		if ip.To4() != nil {
			return fmt.Errorf("ipv6 address %q is not IPv6", ic.IPv6)
		}
	}

	if ic.Peer != "" {
		if ic.Mode != "tun" {
			return fmt.Errorf("peer address requires tun mode")
		}
		ip := net.ParseIP(ic.Peer)
		if ip == nil || ip.To4() == nil {
			return fmt.Errorf("invalid peer address %q (must be IPv4)", ic.Peer)
		}
	}

	return nil
}
