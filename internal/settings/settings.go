// Package settings owns the user-editable eviction policy parameters.
package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/runnerr0/tabsentry/internal/heartbeat"
	"github.com/runnerr0/tabsentry/internal/storage"
)

// Settings are the policy parameters read on every heartbeat.
type Settings struct {
	ThresholdCount   int     `json:"thresholdCount"`
	IdleMinutes      int     `json:"idleMinutes"`
	HeartbeatMinutes float64 `json:"heartbeatMinutes"`
	Enabled          bool    `json:"enabled"`
}

// Defaults returns the settings used for any field never persisted.
func Defaults() Settings {
	return Settings{
		ThresholdCount:   5,
		IdleMinutes:      10,
		HeartbeatMinutes: 0.25,
		Enabled:          true,
	}
}

// ErrInvalid marks settings outside their documented ranges.
var ErrInvalid = errors.New("invalid settings")

// Validate checks the documented ranges.
func (s Settings) Validate() error {
	if s.ThresholdCount < 0 {
		return fmt.Errorf("%w: thresholdCount must be >= 0, got %d", ErrInvalid, s.ThresholdCount)
	}
	if s.IdleMinutes < 0 {
		return fmt.Errorf("%w: idleMinutes must be >= 0, got %d", ErrInvalid, s.IdleMinutes)
	}
	if !(s.HeartbeatMinutes > 0) {
		return fmt.Errorf("%w: heartbeatMinutes must be > 0, got %v", ErrInvalid, s.HeartbeatMinutes)
	}
	return nil
}

// Patch is a partial update. Nil fields keep their current value.
type Patch struct {
	ThresholdCount   *int     `json:"thresholdCount,omitempty"`
	IdleMinutes      *int     `json:"idleMinutes,omitempty"`
	HeartbeatMinutes *float64 `json:"heartbeatMinutes,omitempty"`
	Enabled          *bool    `json:"enabled,omitempty"`
}

// PatchOf returns a patch that sets every field to the value in s.
func PatchOf(s Settings) Patch {
	return Patch{
		ThresholdCount:   &s.ThresholdCount,
		IdleMinutes:      &s.IdleMinutes,
		HeartbeatMinutes: &s.HeartbeatMinutes,
		Enabled:          &s.Enabled,
	}
}

// Apply overlays the set fields on base. The result is not validated.
func (p Patch) Apply(base Settings) Settings {
	if p.ThresholdCount != nil {
		base.ThresholdCount = *p.ThresholdCount
	}
	if p.IdleMinutes != nil {
		base.IdleMinutes = *p.IdleMinutes
	}
	if p.HeartbeatMinutes != nil {
		base.HeartbeatMinutes = *p.HeartbeatMinutes
	}
	if p.Enabled != nil {
		base.Enabled = *p.Enabled
	}
	return base
}

// IdleThreshold is IdleMinutes as a duration.
func (s Settings) IdleThreshold() time.Duration {
	return time.Duration(s.IdleMinutes) * time.Minute
}

// HeartbeatPeriod is HeartbeatMinutes as a duration.
func (s Settings) HeartbeatPeriod() time.Duration {
	return heartbeat.Period(s.HeartbeatMinutes)
}

// record is the persisted shape. Pointers distinguish "absent" from zero;
// the legacy keys were written by earlier settings forms.
type record struct {
	ThresholdCount   *int     `json:"thresholdCount,omitempty"`
	IdleMinutes      *int     `json:"idleMinutes,omitempty"`
	HeartbeatMinutes *float64 `json:"heartbeatMinutes,omitempty"`
	Enabled          *bool    `json:"enabled,omitempty"`

	LegacyThreshold   *int     `json:"threshold,omitempty"`
	LegacyIdleTimeout *int     `json:"idleTimeout,omitempty"`
	LegacyHeartbeat   *float64 `json:"heartbeat,omitempty"`
}

// decode applies defaults field by field; out-of-range values count as
// missing. It reports the names of fields that fell back.
func decode(data []byte) (Settings, []string, error) {
	s := Defaults()
	var r record
	if err := json.Unmarshal(data, &r); err != nil {
		return s, nil, fmt.Errorf("decode settings: %w", err)
	}

	var fallback []string
	pickInt := func(name string, dst *int, vals ...*int) {
		for _, v := range vals {
			if v != nil {
				if *v >= 0 {
					*dst = *v
					return
				}
				fallback = append(fallback, name)
				return
			}
		}
	}
	pickInt("thresholdCount", &s.ThresholdCount, r.ThresholdCount, r.LegacyThreshold)
	pickInt("idleMinutes", &s.IdleMinutes, r.IdleMinutes, r.LegacyIdleTimeout)

	hb := r.HeartbeatMinutes
	if hb == nil {
		hb = r.LegacyHeartbeat
	}
	if hb != nil {
		if *hb > 0 {
			s.HeartbeatMinutes = *hb
		} else {
			fallback = append(fallback, "heartbeatMinutes")
		}
	}

	if r.Enabled != nil {
		s.Enabled = *r.Enabled
	}
	return s, fallback, nil
}

// Persister is the slice of storage.Store the settings store needs.
type Persister interface {
	GetRecord(ctx context.Context, key string) ([]byte, bool, error)
	PutRecord(ctx context.Context, key string, value []byte) error
}

// Rescheduler replaces the heartbeat timer.
type Rescheduler interface {
	Reschedule(period time.Duration)
}

// Store caches the latest persisted settings. Get never touches the
// database; Reload must be called whenever the record may have changed
// elsewhere.
type Store struct {
	reloadMu sync.Mutex // sequences reload + reschedule

	mu      sync.RWMutex
	current Settings

	store   Persister
	resched Rescheduler
	logger  *slog.Logger
}

// NewStore creates a store holding Defaults until the first Reload.
func NewStore(p Persister, logger *slog.Logger) *Store {
	return &Store{
		current: Defaults(),
		store:   p,
		logger:  logger,
	}
}

// SetRescheduler registers the heartbeat timer to replace on change.
func (s *Store) SetRescheduler(r Rescheduler) {
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()
	s.resched = r
}

// Get returns the most recently loaded settings.
func (s *Store) Get() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Reload re-reads the persisted record, applying defaults for missing
// fields, and reschedules the heartbeat if its period changed. On a read
// failure the previous settings stay in effect.
func (s *Store) Reload(ctx context.Context) (Settings, error) {
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()

	data, found, err := s.store.GetRecord(ctx, storage.RecordSettings)
	if err != nil {
		s.logger.Error("Failed to read settings", "error", err)
		return s.Get(), fmt.Errorf("reload settings: %w", err)
	}

	next := Defaults()
	if found {
		var fallback []string
		next, fallback, err = decode(data)
		if err != nil {
			s.logger.Warn("Persisted settings unreadable, using defaults", "error", err)
		}
		if len(fallback) > 0 {
			s.logger.Warn("Invalid settings fields replaced by defaults", "fields", fallback)
		}
	}

	s.mu.Lock()
	prev := s.current
	s.current = next
	s.mu.Unlock()

	if next != prev {
		s.logger.Info("Settings reloaded",
			"threshold_count", next.ThresholdCount,
			"idle_minutes", next.IdleMinutes,
			"heartbeat_minutes", next.HeartbeatMinutes,
			"enabled", next.Enabled,
		)
	}
	if next.HeartbeatMinutes != prev.HeartbeatMinutes && s.resched != nil {
		s.resched.Reschedule(next.HeartbeatPeriod())
	}
	return next, nil
}

// Save validates and persists next, then reloads so Get reflects it.
func (s *Store) Save(ctx context.Context, next Settings) (Settings, error) {
	if err := next.Validate(); err != nil {
		return s.Get(), err
	}

	data, err := json.Marshal(next)
	if err != nil {
		return s.Get(), fmt.Errorf("encode settings: %w", err)
	}
	if err := s.store.PutRecord(ctx, storage.RecordSettings, data); err != nil {
		return s.Get(), fmt.Errorf("save settings: %w", err)
	}

	return s.Reload(ctx)
}
