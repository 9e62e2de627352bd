package store

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/rfsentry/rfsentry/internal/model"
)

// ErrNotFound is returned when a BSSID has no recorded history.
var ErrNotFound = errors.New("network history not found")

// ObservationStore is the time-indexed history of every BSSID seen, keyed by
// identity. It is the single source of truth for all detectors. One writer
// (the cycle's recording phase) and many readers (the detectors) are safe
// concurrently; histories leave the store only as deep copies.
//
// The LRU cache doubles as the hard memory cap: when more distinct BSSIDs
// arrive than max_networks allows, the least-recently-seen entry is dropped
// regardless of the configured retention window. Recency in the cache tracks
// lastSeen because Record is the only path that touches entry order.
type ObservationStore struct {
	mu         sync.RWMutex
	networks   *lru.Cache[string, *model.NetworkHistory]
	retention  time.Duration
	staleAfter time.Duration
	channelCap int
	logger     *slog.Logger
}

// NewObservationStore creates a store bounded to maxNetworks histories of at
// most channelCap channel sightings each.
func NewObservationStore(maxNetworks, channelCap int, retention, staleAfter time.Duration, logger *slog.Logger) *ObservationStore {
	s := &ObservationStore{
		retention:  retention,
		staleAfter: staleAfter,
		channelCap: channelCap,
		logger:     logger,
	}
	s.networks, _ = lru.NewWithEvict(maxNetworks, func(bssid string, _ *model.NetworkHistory) {
		logger.Debug("Network history evicted", "bssid", bssid)
	})
	return s
}

// Record appends one observation to its BSSID's history, creating the
// history on first sighting. Past observations are never mutated; the
// aggregate state only grows forward.
func (s *ObservationStore) Record(obs model.NetworkObservation) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.networks.Peek(obs.BSSID)
	if !ok {
		h = &model.NetworkHistory{
			BSSID:           obs.BSSID,
			FirstSeen:       obs.ObservedAt,
			SSIDsSeen:       make(map[string]time.Time),
			SecurityHistory: make(map[model.Security]bool),
		}
	}

	h.LastSeen = obs.ObservedAt
	h.LastSignal = obs.SignalStrength
	h.LastChannel = obs.Channel
	h.LastSecurity = obs.Security
	h.SSIDsSeen[obs.SSID] = obs.ObservedAt
	h.SecurityHistory[obs.Security] = true
	h.ChannelHistory = append(h.ChannelHistory, model.ChannelSighting{
		Channel: obs.Channel,
		SeenAt:  obs.ObservedAt,
	})
	if len(h.ChannelHistory) > s.channelCap {
		h.ChannelHistory = h.ChannelHistory[len(h.ChannelHistory)-s.channelCap:]
	}

	// Add refreshes LRU recency, so cache order stays lastSeen order.
	s.networks.Add(obs.BSSID, h)
}

// HistoryFor returns a copy of the named BSSID's history.
func (s *ObservationStore) HistoryFor(bssid string) (*model.NetworkHistory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h, ok := s.networks.Peek(bssid)
	if !ok {
		return nil, ErrNotFound
	}
	return h.Clone(), nil
}

// AllActive returns copies of every history with lastSeen inside the
// retention window, for detectors that reason over the whole population.
func (s *ObservationStore) AllActive(now time.Time) []*model.NetworkHistory {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cutoff := now.Add(-s.retention)
	var active []*model.NetworkHistory
	for _, bssid := range s.networks.Keys() {
		h, ok := s.networks.Peek(bssid)
		if !ok {
			continue
		}
		if h.LastSeen.Before(cutoff) {
			continue
		}
		active = append(active, h.Clone())
	}
	return active
}

// EvictStale removes histories not sighted within the stale threshold and
// returns the evicted BSSIDs. Called once per cycle by the correlation
// engine; nothing else may trigger eviction.
func (s *ObservationStore) EvictStale(now time.Time) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := now.Add(-s.staleAfter)
	var evicted []string
	for _, bssid := range s.networks.Keys() {
		h, ok := s.networks.Peek(bssid)
		if !ok {
			continue
		}
		if h.LastSeen.Before(cutoff) {
			s.networks.Remove(bssid)
			evicted = append(evicted, bssid)
		}
	}
	if len(evicted) > 0 {
		s.logger.Info("Evicted stale network histories", "count", len(evicted))
	}
	return evicted
}

// Count returns the number of tracked histories.
func (s *ObservationStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.networks.Len()
}
