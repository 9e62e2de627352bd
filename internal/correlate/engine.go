package correlate

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rfsentry/rfsentry/internal/detect"
	"github.com/rfsentry/rfsentry/internal/metrics"
	"github.com/rfsentry/rfsentry/internal/model"
	"github.com/rfsentry/rfsentry/internal/normalize"
	"github.com/rfsentry/rfsentry/internal/sink"
	"github.com/rfsentry/rfsentry/internal/store"
)

// trackedFinding pairs an open finding with the cycle that last confirmed
// it, for grace-period bookkeeping.
type trackedFinding struct {
	finding        *model.Finding
	confirmedCycle uint64
}

// Engine orchestrates one scan cycle: normalize, record, detect, merge,
// publish. Cycles are strictly sequential; the engine mutex is the single
// owner of the observation store's write phase and the active finding set.
type Engine struct {
	mu         sync.Mutex
	normalizer *normalize.Normalizer
	store      *store.ObservationStore
	detectors  []detect.Detector
	sink       sink.Sink
	audit      *store.FindingAudit

	graceCycles int
	seq         uint64
	active      map[string]*trackedFinding // keyed by Finding.Key()

	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewEngine wires the engine. metrics may be nil in tests.
func NewEngine(normalizer *normalize.Normalizer, obsStore *store.ObservationStore, detectors []detect.Detector, findingSink sink.Sink, audit *store.FindingAudit, graceCycles int, m *metrics.Metrics, logger *slog.Logger) *Engine {
	return &Engine{
		normalizer:  normalizer,
		store:       obsStore,
		detectors:   detectors,
		sink:        findingSink,
		audit:       audit,
		graceCycles: graceCycles,
		active:      make(map[string]*trackedFinding),
		logger:      logger,
		metrics:     m,
	}
}

// RunCycle processes one snapshot end to end and returns the published
// batch. Detector failures degrade to empty output for that detector; only
// sink failures surface as an error, and by then the cycle's state changes
// are already committed.
func (e *Engine) RunCycle(ctx context.Context, snap model.Snapshot) (*model.FindingBatch, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	started := time.Now()
	e.seq++
	now := snap.CapturedAt
	if now.IsZero() {
		now = started
	}

	// Normalizing.
	observations, warnings := e.normalizer.Normalize(snap)
	for _, w := range warnings {
		e.logger.Warn("Scan record dropped during normalization", "bssid", w.BSSID, "reason", w.Reason)
	}

	// Recording: the store's single atomic append phase.
	for _, obs := range observations {
		e.store.Record(obs)
	}
	evicted := e.store.EvictStale(now)

	// Detecting: read-only over the store, detectors in parallel.
	activeHistories := e.store.AllActive(now)
	candidates := e.runDetectors(now, observations, activeHistories)

	// Merging and publishing.
	batch := e.merge(candidates, now)
	batch.CycleSeq = e.seq
	batch.CompletedAt = now

	e.observeCycle(started, observations, warnings, evicted, batch)

	if err := e.sink.Publish(ctx, batch); err != nil {
		e.logger.Error("Failed to publish finding batch", "cycle_seq", e.seq, "error", err)
		return batch, fmt.Errorf("publish cycle %d: %w", e.seq, err)
	}
	return batch, nil
}

// runDetectors invokes every detector in its own goroutine. A panicking
// detector contributes nothing this cycle; the others are unaffected.
func (e *Engine) runDetectors(now time.Time, current []model.NetworkObservation, active []*model.NetworkHistory) []detect.Candidate {
	results := make([][]detect.Candidate, len(e.detectors))
	var wg sync.WaitGroup
	for i, d := range e.detectors {
		wg.Add(1)
		go func(i int, d detect.Detector) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					e.logger.Warn("Detector failed, skipping its output this cycle",
						"detector", d.Name(), "panic", r)
					if e.metrics != nil {
						e.metrics.DetectorFailures.WithLabelValues(d.Name()).Inc()
					}
					results[i] = nil
				}
			}()
			results[i] = d.Detect(now, current, active)
		}(i, d)
	}
	wg.Wait()

	var all []detect.Candidate
	for _, r := range results {
		all = append(all, r...)
	}
	return all
}

// merge deduplicates candidates by (type, subject), reconciles them with the
// open finding set, and resolves findings unconfirmed for the grace period.
func (e *Engine) merge(candidates []detect.Candidate, now time.Time) *model.FindingBatch {
	batch := &model.FindingBatch{}

	// Within-cycle dedupe: several pairs can implicate the same subject.
	// Keep the strongest candidate per key.
	byKey := make(map[string]detect.Candidate)
	for _, c := range candidates {
		key := string(c.Type) + "|" + c.SubjectBSSID
		best, seen := byKey[key]
		if !seen || stronger(c, best) {
			byKey[key] = c
		}
	}

	for key, c := range byKey {
		if tracked, ok := e.active[key]; ok {
			f := tracked.finding
			f.LastConfirmedAt = now
			if c.Confidence > f.Confidence {
				f.Confidence = c.Confidence
			}
			if c.Severity.Rank() > f.Severity.Rank() {
				f.Severity = c.Severity
			}
			f.Evidence = c.Evidence
			tracked.confirmedCycle = e.seq
			batch.Confirmed = append(batch.Confirmed, f)
			continue
		}

		f := &model.Finding{
			ID:               uuid.New().String(),
			Type:             c.Type,
			Severity:         c.Severity,
			Status:           model.StatusOpen,
			SubjectBSSID:     c.SubjectBSSID,
			CounterpartBSSID: c.CounterpartBSSID,
			Evidence:         c.Evidence,
			Confidence:       c.Confidence,
			FirstDetectedAt:  now,
			LastConfirmedAt:  now,
		}
		e.active[key] = &trackedFinding{finding: f, confirmedCycle: e.seq}
		batch.New = append(batch.New, f)
		if e.metrics != nil {
			e.metrics.FindingsCreated.WithLabelValues(string(f.Type), string(f.Severity)).Inc()
		}
	}

	// Auto-resolve findings whose condition has been absent for the grace
	// period. Their history stays queryable through the audit trail.
	for key, tracked := range e.active {
		if e.seq-tracked.confirmedCycle < uint64(e.graceCycles) {
			continue
		}
		f := tracked.finding
		f.Status = model.StatusResolved
		f.ResolvedAt = now
		delete(e.active, key)
		e.audit.Add(f)
		batch.Resolved = append(batch.Resolved, f)
		if e.metrics != nil {
			e.metrics.FindingsResolved.WithLabelValues(string(f.Type)).Inc()
		}
	}

	return batch
}

// stronger reports whether candidate a outranks candidate b.
func stronger(a, b detect.Candidate) bool {
	if a.Severity.Rank() != b.Severity.Rank() {
		return a.Severity.Rank() > b.Severity.Rank()
	}
	return a.Confidence > b.Confidence
}

// ActiveFindings returns deep copies of the open findings, newest first.
// Copies keep later merge phases from mutating what a caller is still
// reading, the same discipline the store applies to histories.
func (e *Engine) ActiveFindings() []*model.Finding {
	e.mu.Lock()
	defer e.mu.Unlock()

	findings := make([]*model.Finding, 0, len(e.active))
	for _, tracked := range e.active {
		findings = append(findings, tracked.finding.Clone())
	}
	sort.Slice(findings, func(i, j int) bool {
		return findings[i].FirstDetectedAt.After(findings[j].FirstDetectedAt)
	})
	return findings
}

// CycleCount returns how many cycles the engine has run.
func (e *Engine) CycleCount() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.seq
}

func (e *Engine) observeCycle(started time.Time, observations []model.NetworkObservation, warnings []normalize.Warning, evicted []string, batch *model.FindingBatch) {
	e.logger.Info("Scan cycle complete",
		"cycle_seq", e.seq,
		"observations", len(observations),
		"warnings", len(warnings),
		"evicted", len(evicted),
		"new_findings", len(batch.New),
		"confirmed", len(batch.Confirmed),
		"resolved", len(batch.Resolved))

	if e.metrics == nil {
		return
	}
	e.metrics.CyclesTotal.Inc()
	e.metrics.CycleDuration.Observe(time.Since(started).Seconds())
	e.metrics.ObservationsRecorded.Add(float64(len(observations)))
	e.metrics.NormalizationWarnings.Add(float64(len(warnings)))
	e.metrics.EvictionsTotal.Add(float64(len(evicted)))
	e.metrics.TrackedNetworks.Set(float64(e.store.Count()))

	counts := map[model.FindingType]int{}
	for _, tracked := range e.active {
		counts[tracked.finding.Type]++
	}
	for _, t := range []model.FindingType{model.FindingEvilTwin, model.FindingKarma, model.FindingPineapple} {
		e.metrics.ActiveFindings.WithLabelValues(string(t)).Set(float64(counts[t]))
	}
}
