// Package telem provides bounded in-memory retention of recent update
// events and engine transitions for status reporting.
package telem

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/fieldtrack/fieldtrack/pkg/engine"
)

// Config for the telemetry store.
type Config struct {
	MaxUpdates     int           `json:"max_updates"`
	MaxTransitions int           `json:"max_transitions"`
	Retention      time.Duration `json:"retention"`
}

// DefaultConfig returns default retention limits.
func DefaultConfig() Config {
	return Config{
		MaxUpdates:     1000,
		MaxTransitions: 500,
		Retention:      24 * time.Hour,
	}
}

// Store retains recent engine output with count and age limits. It is safe
// for concurrent use: the engine loop writes, status publishers read.
type Store struct {
	mu          sync.RWMutex
	updates     []engine.UpdateEvent
	transitions []engine.Transition
	config      Config
}

// NewStore creates a telemetry store with the given configuration.
func NewStore(config Config) *Store {
	def := DefaultConfig()
	if config.MaxUpdates <= 0 {
		config.MaxUpdates = def.MaxUpdates
	}
	if config.MaxTransitions <= 0 {
		config.MaxTransitions = def.MaxTransitions
	}
	if config.Retention <= 0 {
		config.Retention = def.Retention
	}
	return &Store{
		updates:     make([]engine.UpdateEvent, 0, config.MaxUpdates),
		transitions: make([]engine.Transition, 0, config.MaxTransitions),
		config:      config,
	}
}

// AddUpdate stores a decided update event.
func (s *Store) AddUpdate(ev engine.UpdateEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.updates = append(s.updates, ev)
	if len(s.updates) > s.config.MaxUpdates {
		copy(s.updates, s.updates[len(s.updates)-s.config.MaxUpdates:])
		s.updates = s.updates[:s.config.MaxUpdates]
	}
}

// AddTransition stores an engine state transition.
func (s *Store) AddTransition(tr engine.Transition) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.transitions = append(s.transitions, tr)
	if len(s.transitions) > s.config.MaxTransitions {
		copy(s.transitions, s.transitions[len(s.transitions)-s.config.MaxTransitions:])
		s.transitions = s.transitions[:s.config.MaxTransitions]
	}
}

// Updates returns up to limit most recent update events, oldest first.
// limit <= 0 returns all retained events.
func (s *Store) Updates(limit int) []engine.UpdateEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 || limit >= len(s.updates) {
		out := make([]engine.UpdateEvent, len(s.updates))
		copy(out, s.updates)
		return out
	}
	out := make([]engine.UpdateEvent, limit)
	copy(out, s.updates[len(s.updates)-limit:])
	return out
}

// Transitions returns up to limit most recent transitions, oldest first.
func (s *Store) Transitions(limit int) []engine.Transition {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 || limit >= len(s.transitions) {
		out := make([]engine.Transition, len(s.transitions))
		copy(out, s.transitions)
		return out
	}
	out := make([]engine.Transition, limit)
	copy(out, s.transitions[len(s.transitions)-limit:])
	return out
}

// Cleanup drops entries older than the retention window.
func (s *Store) Cleanup(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := now.Add(-s.config.Retention)

	keep := 0
	for i, ev := range s.updates {
		if ev.Timestamp.After(cutoff) {
			break
		}
		keep = i + 1
	}
	if keep > 0 {
		copy(s.updates, s.updates[keep:])
		s.updates = s.updates[:len(s.updates)-keep]
	}

	keep = 0
	for i, tr := range s.transitions {
		if tr.Timestamp.After(cutoff) {
			break
		}
		keep = i + 1
	}
	if keep > 0 {
		copy(s.transitions, s.transitions[keep:])
		s.transitions = s.transitions[:len(s.transitions)-keep]
	}
}

// Stats returns retention statistics for status reporting.
func (s *Store) Stats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[engine.UpdateKind]int)
	for _, ev := range s.updates {
		counts[ev.Kind]++
	}

	return map[string]interface{}{
		"updates":         len(s.updates),
		"real_updates":    counts[engine.RealUpdate],
		"idle_updates":    counts[engine.IdleOnlyUpdate],
		"transitions":     len(s.transitions),
		"retention_hours": s.config.Retention.Hours(),
	}
}

// ExportJSON exports retained data for debugging.
func (s *Store) ExportJSON() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	export := struct {
		Updates     []engine.UpdateEvent `json:"updates"`
		Transitions []engine.Transition  `json:"transitions"`
	}{
		Updates:     s.updates,
		Transitions: s.transitions,
	}
	return json.Marshal(export)
}
