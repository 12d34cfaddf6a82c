package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	content := `
scan:
  targets:
    - 192.168.1.0/24
    - 10.0.0.5
  ports: "22,80,443"
  script: syn
  rate: 5000
  seed: 1234
  wait: 10s
  count: 2
  interface: eth0
  netdev: afpacket
output:
  quiet: true
  pcap: out.pcap
`
	path := filepath.Join(t.TempDir(), "pktizr.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	s := cfg.Scan
	if len(s.Targets) != 2 || s.Targets[0] != "192.168.1.0/24" {
		t.Errorf("targets = %v", s.Targets)
	}
	if s.Ports != "22,80,443" || s.Script != "syn" || s.Rate != 5000 {
		t.Errorf("scan = %+v", s)
	}
	if s.Wait.Duration != 10*time.Second {
		t.Errorf("wait = %v", s.Wait.Duration)
	}
	if s.Count != 2 || s.Interface != "eth0" || s.Netdev != "afpacket" {
		t.Errorf("scan = %+v", s)
	}
	if !cfg.Output.Quiet || cfg.Output.Pcap != "out.pcap" {
		t.Errorf("output = %+v", cfg.Output)
	}
}

func TestLoadBadDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	os.WriteFile(path, []byte("scan:\n  wait: nonsense\n"), 0644)
	if _, err := Load(path); err == nil {
		t.Error("bad duration accepted")
	}
}

func TestLoadMissing(t *testing.T) {
	if _, err := Load("/does/not/exist.yaml"); err == nil {
		t.Error("missing file accepted")
	}
}
