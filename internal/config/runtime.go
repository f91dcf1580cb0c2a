package config

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/riskibarqy/tm-alerts/internal/platform/logging"
	"github.com/spf13/viper"
)

// Tunables are the pipeline knobs operators change without a redeploy.
type Tunables struct {
	// InaccurateModeThreshold: alerts watching more maps than this switch to
	// probe-and-compare mode.
	InaccurateModeThreshold int
	// TruncationCap bounds the records listed per map in one email.
	TruncationCap int
	// TopN is the ranking window for driver notifications.
	TopN int
	// NewRecordWindow: a record counts as new when set within this window.
	NewRecordWindow time.Duration
	// ComposeTimeout: how long the composer waits for the sibling phase.
	ComposeTimeout time.Duration
	// ProbePositionAll is the probed position for record filter "all".
	ProbePositionAll int
}

func DefaultTunables() Tunables {
	return Tunables{
		InaccurateModeThreshold: 100,
		TruncationCap:           20,
		TopN:                    5,
		NewRecordWindow:         24 * time.Hour,
		ComposeTimeout:          30 * time.Minute,
		ProbePositionAll:        100,
	}
}

func (t Tunables) Validate() error {
	switch {
	case t.InaccurateModeThreshold < 0:
		return fmt.Errorf("inaccurate_mode_threshold must be >= 0")
	case t.TruncationCap < 1:
		return fmt.Errorf("truncation_cap must be >= 1")
	case t.TopN < 1:
		return fmt.Errorf("top_n must be >= 1")
	case t.NewRecordWindow <= 0:
		return fmt.Errorf("new_record_window must be > 0")
	case t.ComposeTimeout <= 0:
		return fmt.Errorf("compose_timeout must be > 0")
	case t.ProbePositionAll < 1:
		return fmt.Errorf("probe_position_all must be >= 1")
	}
	return nil
}

// StaticTunables never changes.
type StaticTunables Tunables

func (s StaticTunables) Current() Tunables {
	return Tunables(s)
}

// RuntimeSettings serves the latest valid Tunables. Values come from defaults,
// an optional YAML file that is watched for changes, and TUNABLE_* env vars.
type RuntimeSettings struct {
	v       *viper.Viper
	current atomic.Pointer[Tunables]
	logger  *logging.Logger
}

func LoadRuntimeSettings(path string, logger *logging.Logger) (*RuntimeSettings, error) {
	if logger == nil {
		logger = logging.Default()
	}

	v := viper.New()
	defaults := DefaultTunables()
	v.SetDefault("inaccurate_mode_threshold", defaults.InaccurateModeThreshold)
	v.SetDefault("truncation_cap", defaults.TruncationCap)
	v.SetDefault("top_n", defaults.TopN)
	v.SetDefault("new_record_window", defaults.NewRecordWindow)
	v.SetDefault("compose_timeout", defaults.ComposeTimeout)
	v.SetDefault("probe_position_all", defaults.ProbePositionAll)
	v.SetEnvPrefix("TUNABLE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	s := &RuntimeSettings{v: v, logger: logger}

	path = strings.TrimSpace(path)
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read tunables %s: %w", path, err)
		}
	}

	if err := s.apply(); err != nil {
		return nil, err
	}

	if path != "" {
		v.OnConfigChange(func(e fsnotify.Event) {
			if err := s.apply(); err != nil {
				s.logger.Warn("tunables reload rejected, keeping previous values", "file", e.Name, "error", err)
				return
			}
			s.logger.Info("tunables reloaded", "file", e.Name, "tunables", s.Current())
		})
		v.WatchConfig()
	}

	return s, nil
}

func (s *RuntimeSettings) Current() Tunables {
	if s == nil {
		return DefaultTunables()
	}
	if t := s.current.Load(); t != nil {
		return *t
	}
	return DefaultTunables()
}

func (s *RuntimeSettings) apply() error {
	next := Tunables{
		InaccurateModeThreshold: s.v.GetInt("inaccurate_mode_threshold"),
		TruncationCap:           s.v.GetInt("truncation_cap"),
		TopN:                    s.v.GetInt("top_n"),
		NewRecordWindow:         s.v.GetDuration("new_record_window"),
		ComposeTimeout:          s.v.GetDuration("compose_timeout"),
		ProbePositionAll:        s.v.GetInt("probe_position_all"),
	}
	if err := next.Validate(); err != nil {
		return fmt.Errorf("invalid tunables: %w", err)
	}
	s.current.Store(&next)
	return nil
}
