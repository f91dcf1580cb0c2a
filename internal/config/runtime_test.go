package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadRuntimeSettings_Defaults(t *testing.T) {
	s, err := LoadRuntimeSettings("", nil)
	if err != nil {
		t.Fatalf("load runtime settings: %v", err)
	}

	got := s.Current()
	if got != DefaultTunables() {
		t.Fatalf("unexpected defaults: %+v", got)
	}
	if got.InaccurateModeThreshold != 100 || got.TruncationCap != 20 || got.TopN != 5 {
		t.Fatalf("unexpected default knobs: %+v", got)
	}
}

func TestLoadRuntimeSettings_FileAndEnv(t *testing.T) {
	path := writeTunables(t, "inaccurate_mode_threshold: 50\ntruncation_cap: 10\nnew_record_window: 12h\n")
	t.Setenv("TUNABLE_TOP_N", "3")

	s, err := LoadRuntimeSettings(path, nil)
	if err != nil {
		t.Fatalf("load runtime settings: %v", err)
	}

	got := s.Current()
	if got.InaccurateModeThreshold != 50 {
		t.Fatalf("threshold got=%d want=50", got.InaccurateModeThreshold)
	}
	if got.TruncationCap != 10 {
		t.Fatalf("cap got=%d want=10", got.TruncationCap)
	}
	if got.NewRecordWindow != 12*time.Hour {
		t.Fatalf("window got=%s want=12h", got.NewRecordWindow)
	}
	if got.TopN != 3 {
		t.Fatalf("top_n got=%d want=3", got.TopN)
	}
}

func TestLoadRuntimeSettings_RejectsInvalidFile(t *testing.T) {
	path := writeTunables(t, "truncation_cap: 0\n")

	if _, err := LoadRuntimeSettings(path, nil); err == nil {
		t.Fatalf("expected invalid truncation_cap to fail")
	}
}

func TestRuntimeSettings_InvalidReloadKeepsPrevious(t *testing.T) {
	path := writeTunables(t, "truncation_cap: 15\n")
	s, err := LoadRuntimeSettings(path, nil)
	if err != nil {
		t.Fatalf("load runtime settings: %v", err)
	}

	if err := os.WriteFile(path, []byte("truncation_cap: -1\n"), 0o600); err != nil {
		t.Fatalf("rewrite tunables: %v", err)
	}
	if err := s.v.ReadInConfig(); err != nil {
		t.Fatalf("re-read tunables: %v", err)
	}
	if err := s.apply(); err == nil {
		t.Fatalf("expected invalid reload to be rejected")
	}

	if got := s.Current().TruncationCap; got != 15 {
		t.Fatalf("cap after rejected reload got=%d want=15", got)
	}
}

func writeTunables(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tunables.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write tunables: %v", err)
	}
	return path
}
