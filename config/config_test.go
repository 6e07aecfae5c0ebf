package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"synthmcp/k2000"
)

func TestLoadMissingFileGivesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if *cfg != *Default() {
		t.Fatalf("got %+v, want defaults", cfg)
	}
}

func TestLoadKeepsDefaultsForAbsentKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := "family: k2000\nchannel: 3\nform: sevenbit\ndependency_timeout: 2s\n"
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Family != FamilyK2000 || cfg.Channel != 3 {
		t.Errorf("family/channel = %q/%d", cfg.Family, cfg.Channel)
	}
	if cfg.DependencyTimeout != 2*time.Second {
		t.Errorf("dependency_timeout = %s, want 2s", cfg.DependencyTimeout)
	}
	if cfg.ReplyTimeout != 5*time.Second {
		t.Errorf("reply_timeout = %s, want the default", cfg.ReplyTimeout)
	}
	if cfg.MIDIChannel() != 2 {
		t.Errorf("MIDIChannel = %d, want 2", cfg.MIDIChannel())
	}
	if cfg.FormByte() != k2000.FormSevenBit {
		t.Errorf("FormByte = %d", cfg.FormByte())
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := []struct {
		yaml string
		key  string
	}{
		{"family: dx7\n", "family"},
		{"channel: 0\n", "channel"},
		{"channel: 17\n", "channel"},
		{"device_id: 200\n", "device_id"},
		{"form: hex\n", "form"},
		{"reply_timeout: 0s\n", "reply_timeout"},
		{"dependency_timeout: -1s\n", "dependency_timeout"},
	}
	dir := t.TempDir()
	for i, tc := range cases {
		path := filepath.Join(dir, "c"+string(rune('a'+i))+".yaml")
		if err := os.WriteFile(path, []byte(tc.yaml), 0644); err != nil {
			t.Fatalf("write: %v", err)
		}
		_, err := Load(path)
		if err == nil {
			t.Errorf("%q: expected an error", tc.yaml)
			continue
		}
		if !strings.Contains(err.Error(), tc.key) {
			t.Errorf("%q: error %q does not name %s", tc.yaml, err, tc.key)
		}
	}
}

func TestSaveThenLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")
	cfg := Default()
	cfg.Port = "K2000 MIDI 1"
	cfg.Family = FamilyK2000
	cfg.DeviceID = 16
	cfg.Debug = true

	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if *got != *cfg {
		t.Fatalf("got %+v, want %+v", got, cfg)
	}
}

func TestDefaultPathHonoursEnv(t *testing.T) {
	t.Setenv(EnvPath, "/tmp/elsewhere.yaml")
	p, err := DefaultPath()
	if err != nil {
		t.Fatalf("DefaultPath: %v", err)
	}
	if p != "/tmp/elsewhere.yaml" {
		t.Fatalf("got %q", p)
	}
}
