// Package config loads the optional YAML configuration file. CLI flags
// override file values; the merge happens in cmd/pktizr.
package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level file structure.
type Config struct {
	Scan   ScanConfig   `yaml:"scan"`
	Output OutputConfig `yaml:"output"`
}

// ScanConfig holds everything that shapes the scan itself.
type ScanConfig struct {
	Targets     []string `yaml:"targets"`      // CIDR, single IP, or A-B range
	Ports       string   `yaml:"ports"`        // e.g. "22,80,8000-8100"
	Script      string   `yaml:"script"`       // script name
	Rate        uint64   `yaml:"rate"`         // probes per second; 0 leaves the --rate value in effect
	Seed        uint64   `yaml:"seed"`         // cookie key seed
	Wait        Duration `yaml:"wait"`         // post-scan drain
	Count       uint64   `yaml:"count"`        // duplicate probes per (target, port)
	Interface   string   `yaml:"interface"`    // network interface
	Netdev      string   `yaml:"netdev"`       // driver: afpacket, pcap, rawsock
	LocalAddr   string   `yaml:"local_addr"`   // source IP override
	GatewayAddr string   `yaml:"gateway_addr"` // gateway IP override
}

// OutputConfig controls reporting.
type OutputConfig struct {
	Quiet bool   `yaml:"quiet"`  // no status line
	NoTUI bool   `yaml:"no_tui"` // plain text status
	Pcap  string `yaml:"pcap"`   // record captured frames to this file
}

// Duration wraps time.Duration for YAML strings like "5s", "2m".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	d.Duration = dur
	return nil
}

// Load reads a YAML configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
