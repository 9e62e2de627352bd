package correlate

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rfsentry/rfsentry/internal/config"
	"github.com/rfsentry/rfsentry/internal/detect"
	"github.com/rfsentry/rfsentry/internal/model"
	"github.com/rfsentry/rfsentry/internal/normalize"
	"github.com/rfsentry/rfsentry/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// captureSink records every published batch.
type captureSink struct {
	batches []*model.FindingBatch
}

func (s *captureSink) Publish(_ context.Context, batch *model.FindingBatch) error {
	s.batches = append(s.batches, batch)
	return nil
}

// panicDetector always panics, for failure-isolation tests.
type panicDetector struct{}

func (panicDetector) Name() string { return "panicky" }
func (panicDetector) Detect(time.Time, []model.NetworkObservation, []*model.NetworkHistory) []detect.Candidate {
	panic("malformed data")
}

func newTestEngine(t *testing.T, detectors []detect.Detector) (*Engine, *captureSink, *store.FindingAudit) {
	t.Helper()
	logger := testLogger()
	cfg := config.Default()
	if detectors == nil {
		detectors = []detect.Detector{
			detect.NewEvilTwinDetector(cfg.EvilTwin, logger),
			detect.NewKarmaDetector(cfg.Karma, logger),
			detect.NewPineappleDetector(cfg.Pineapple, logger),
		}
	}
	obsStore := store.NewObservationStore(64, 16, 15*time.Minute, 30*time.Minute, logger)
	audit := store.NewFindingAudit(64)
	sink := &captureSink{}
	engine := NewEngine(normalize.New(logger), obsStore, detectors, sink, audit, 3, nil, logger)
	return engine, sink, audit
}

func twinSnapshot(at time.Time) model.Snapshot {
	return model.Snapshot{
		CapturedAt: at,
		Records: []model.RawAPRecord{
			{BSSID: "aa:aa:aa:aa:aa:01", SSID: "Cafe", Channel: 6, Capabilities: "WPA2-PSK"},
			{BSSID: "bb:bb:bb:bb:bb:02", SSID: "Cafe", Channel: 6, Capabilities: ""},
		},
	}
}

func TestEngine_EvilTwinFlaggedOnce(t *testing.T) {
	engine, _, _ := newTestEngine(t, nil)
	now := time.Now()

	batch, err := engine.RunCycle(context.Background(), twinSnapshot(now))
	require.NoError(t, err)
	require.Len(t, batch.New, 1)

	f := batch.New[0]
	assert.Equal(t, model.FindingEvilTwin, f.Type)
	assert.Equal(t, model.SeverityHigh, f.Severity)
	assert.Equal(t, "bb:bb:bb:bb:bb:02", f.SubjectBSSID)
	assert.Equal(t, model.StatusOpen, f.Status)
	assert.NotEmpty(t, f.ID)
	assert.NotEmpty(t, f.Evidence)
}

func TestEngine_IdempotentReconfirmation(t *testing.T) {
	engine, _, _ := newTestEngine(t, nil)
	base := time.Now()

	first, err := engine.RunCycle(context.Background(), twinSnapshot(base))
	require.NoError(t, err)
	require.Len(t, first.New, 1)
	id := first.New[0].ID

	// Same condition for several more cycles: exactly one finding object,
	// lastConfirmedAt advancing, never a duplicate.
	var lastConfirmed time.Time
	for i := 1; i <= 4; i++ {
		at := base.Add(time.Duration(i) * 30 * time.Second)
		batch, err := engine.RunCycle(context.Background(), twinSnapshot(at))
		require.NoError(t, err)
		assert.Empty(t, batch.New, "cycle %d", i)
		require.Len(t, batch.Confirmed, 1, "cycle %d", i)
		assert.Equal(t, id, batch.Confirmed[0].ID)
		assert.True(t, batch.Confirmed[0].LastConfirmedAt.After(lastConfirmed))
		lastConfirmed = batch.Confirmed[0].LastConfirmedAt
	}

	assert.Len(t, engine.ActiveFindings(), 1)
}

func TestEngine_StablePairConfidenceDoesNotCompound(t *testing.T) {
	engine, _, _ := newTestEngine(t, nil)
	base := time.Now()

	first, err := engine.RunCycle(context.Background(), twinSnapshot(base))
	require.NoError(t, err)
	confidence := first.New[0].Confidence
	severity := first.New[0].Severity

	for i := 1; i <= 3; i++ {
		batch, err := engine.RunCycle(context.Background(), twinSnapshot(base.Add(time.Duration(i)*30*time.Second)))
		require.NoError(t, err)
		require.Len(t, batch.Confirmed, 1)
		assert.Equal(t, confidence, batch.Confirmed[0].Confidence)
		assert.Equal(t, severity, batch.Confirmed[0].Severity)
	}
}

func TestEngine_ResolutionAfterGracePeriod(t *testing.T) {
	engine, _, audit := newTestEngine(t, nil)
	base := time.Now()

	first, err := engine.RunCycle(context.Background(), twinSnapshot(base))
	require.NoError(t, err)
	require.Len(t, first.New, 1)
	id := first.New[0].ID

	// Condition disappears; after the 3-cycle grace period the finding
	// auto-resolves.
	var resolved *model.Finding
	for i := 1; i <= 3; i++ {
		at := base.Add(time.Duration(i) * 30 * time.Second)
		batch, err := engine.RunCycle(context.Background(), model.Snapshot{CapturedAt: at})
		require.NoError(t, err)
		if len(batch.Resolved) > 0 {
			require.Len(t, batch.Resolved, 1)
			resolved = batch.Resolved[0]
			assert.Equal(t, 3, i, "should resolve exactly at the grace boundary")
		}
	}

	require.NotNil(t, resolved)
	assert.Equal(t, id, resolved.ID)
	assert.Equal(t, model.StatusResolved, resolved.Status)
	assert.False(t, resolved.ResolvedAt.IsZero())

	// Excluded from the active set but retained for audit.
	assert.Empty(t, engine.ActiveFindings())
	require.Len(t, audit.All(), 1)
	assert.Equal(t, id, audit.All()[0].ID)
}

func TestEngine_CrossCycleTwinDetected(t *testing.T) {
	engine, _, _ := newTestEngine(t, nil)
	base := time.Now()

	// Cycle 1 sees only the legitimate WPA2 AP.
	first, err := engine.RunCycle(context.Background(), model.Snapshot{
		CapturedAt: base,
		Records: []model.RawAPRecord{
			{BSSID: "aa:aa:aa:aa:aa:01", SSID: "Cafe", Channel: 6, Capabilities: "WPA2-PSK"},
		},
	})
	require.NoError(t, err)
	assert.Empty(t, first.New)

	// Cycle 2 sees only the open impostor; the legitimate AP's history is
	// still active, so the collision must be flagged.
	second, err := engine.RunCycle(context.Background(), model.Snapshot{
		CapturedAt: base.Add(30 * time.Second),
		Records: []model.RawAPRecord{
			{BSSID: "bb:bb:bb:bb:bb:02", SSID: "Cafe", Channel: 6, Capabilities: ""},
		},
	})
	require.NoError(t, err)
	require.Len(t, second.New, 1)

	f := second.New[0]
	assert.Equal(t, model.FindingEvilTwin, f.Type)
	assert.Equal(t, model.SeverityHigh, f.Severity)
	assert.Equal(t, "bb:bb:bb:bb:bb:02", f.SubjectBSSID)
	assert.Equal(t, "aa:aa:aa:aa:aa:01", f.CounterpartBSSID)
}

func TestEngine_ActiveFindingsAreCopies(t *testing.T) {
	engine, _, _ := newTestEngine(t, nil)

	_, err := engine.RunCycle(context.Background(), twinSnapshot(time.Now()))
	require.NoError(t, err)

	findings := engine.ActiveFindings()
	require.Len(t, findings, 1)
	require.NotEmpty(t, findings[0].Evidence)
	findings[0].Severity = model.SeverityLow
	findings[0].Evidence[0].Description = "tampered"

	fresh := engine.ActiveFindings()
	require.Len(t, fresh, 1)
	assert.Equal(t, model.SeverityHigh, fresh[0].Severity)
	assert.NotEqual(t, "tampered", fresh[0].Evidence[0].Description)
}

func TestEngine_ActiveFindingsSafeDuringCycles(t *testing.T) {
	engine, _, _ := newTestEngine(t, nil)
	base := time.Now()

	_, err := engine.RunCycle(context.Background(), twinSnapshot(base))
	require.NoError(t, err)

	// Re-confirmation mutates the tracked finding while a reader encodes
	// the active set; copies keep the two from racing.
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 1; i <= 25; i++ {
			at := base.Add(time.Duration(i) * time.Second)
			_, _ = engine.RunCycle(context.Background(), twinSnapshot(at))
		}
	}()
	for i := 0; i < 25; i++ {
		_, err := json.Marshal(engine.ActiveFindings())
		require.NoError(t, err)
	}
	wg.Wait()
}

func TestEngine_StaleEvictionResolvesButKeepsFindings(t *testing.T) {
	logger := testLogger()
	cfg := config.Default()
	obsStore := store.NewObservationStore(64, 16, time.Minute, 2*time.Minute, logger)
	audit := store.NewFindingAudit(64)
	detectors := []detect.Detector{
		detect.NewEvilTwinDetector(cfg.EvilTwin, logger),
		detect.NewKarmaDetector(cfg.Karma, logger),
		detect.NewPineappleDetector(cfg.Pineapple, logger),
	}
	engine := NewEngine(normalize.New(logger), obsStore, detectors, &captureSink{}, audit, 3, nil, logger)
	base := time.Now()

	first, err := engine.RunCycle(context.Background(), twinSnapshot(base))
	require.NoError(t, err)
	require.Len(t, first.New, 1)
	id := first.New[0].ID

	// The pair goes silent long enough to be stale-evicted from the
	// store; the finding must resolve through the grace period, never be
	// deleted.
	var resolved *model.Finding
	for i := 1; i <= 3; i++ {
		at := base.Add(2*time.Minute + time.Duration(i)*time.Minute)
		batch, err := engine.RunCycle(context.Background(), model.Snapshot{CapturedAt: at})
		require.NoError(t, err)
		if len(batch.Resolved) > 0 {
			require.Len(t, batch.Resolved, 1)
			resolved = batch.Resolved[0]
		}
	}

	// Histories are gone from the store.
	assert.Equal(t, 0, obsStore.Count())
	_, err = obsStore.HistoryFor("bb:bb:bb:bb:bb:02")
	assert.ErrorIs(t, err, store.ErrNotFound)

	// The finding survived eviction: resolved, out of the active set,
	// still queryable through the audit trail.
	require.NotNil(t, resolved)
	assert.Equal(t, id, resolved.ID)
	assert.Equal(t, model.StatusResolved, resolved.Status)
	assert.Empty(t, engine.ActiveFindings())
	require.Len(t, audit.All(), 1)
	assert.Equal(t, id, audit.All()[0].ID)
}

func TestEngine_WithinCycleDedupeBySubject(t *testing.T) {
	engine, _, _ := newTestEngine(t, nil)
	now := time.Now()

	// Two legitimate mesh nodes and one open rogue: both pairs implicate
	// the same subject, which must collapse to a single finding.
	snap := model.Snapshot{
		CapturedAt: now,
		Records: []model.RawAPRecord{
			{BSSID: "aa:aa:aa:aa:aa:01", SSID: "Cafe", Channel: 6, Capabilities: "WPA2"},
			{BSSID: "aa:aa:aa:aa:aa:02", SSID: "Cafe", Channel: 11, Capabilities: "WPA2"},
			{BSSID: "bb:bb:bb:bb:bb:03", SSID: "Cafe", Channel: 6, Capabilities: ""},
		},
	}

	batch, err := engine.RunCycle(context.Background(), snap)
	require.NoError(t, err)
	require.Len(t, batch.New, 1)
	assert.Equal(t, "bb:bb:bb:bb:bb:03", batch.New[0].SubjectBSSID)
}

func TestEngine_DetectorFailureIsolated(t *testing.T) {
	logger := testLogger()
	cfg := config.Default()
	detectors := []detect.Detector{
		panicDetector{},
		detect.NewEvilTwinDetector(cfg.EvilTwin, logger),
	}
	engine, _, _ := newTestEngine(t, detectors)

	batch, err := engine.RunCycle(context.Background(), twinSnapshot(time.Now()))
	require.NoError(t, err)
	require.Len(t, batch.New, 1, "surviving detector's findings must still land")
	assert.Equal(t, model.FindingEvilTwin, batch.New[0].Type)
}

func TestEngine_EmptySnapshotIsValidCycle(t *testing.T) {
	engine, sink, _ := newTestEngine(t, nil)

	batch, err := engine.RunCycle(context.Background(), model.Snapshot{CapturedAt: time.Now()})
	require.NoError(t, err)
	assert.True(t, batch.Empty())
	assert.Equal(t, uint64(1), engine.CycleCount())
	require.Len(t, sink.batches, 1)
}

func TestEngine_MalformedRecordsDoNotAbortCycle(t *testing.T) {
	engine, _, _ := newTestEngine(t, nil)
	now := time.Now()

	snap := twinSnapshot(now)
	snap.Records = append(snap.Records, model.RawAPRecord{BSSID: "garbage", SSID: "Broken"})

	batch, err := engine.RunCycle(context.Background(), snap)
	require.NoError(t, err)
	assert.Len(t, batch.New, 1)
}
