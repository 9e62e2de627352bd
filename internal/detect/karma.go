package detect

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/rfsentry/rfsentry/internal/config"
	"github.com/rfsentry/rfsentry/internal/model"
)

// Default and hotspot SSID names a karma rig typically replays to lure
// auto-joining clients. Only used to strengthen evidence text; this is not a
// gate on detection.
var genericSSIDHints = []string{
	"iphone", "android", "galaxy", "pixel", "hotspot",
	"guest", "free", "wifi", "default", "setup", "home",
}

// KarmaDetector flags a single BSSID answering for an implausibly large and
// diverse set of SSIDs within a sliding window. A persistent rogue radio is
// distinguished from coincidental MAC reuse by requiring continuous presence:
// the BSSID must not vanish and reappear between sightings.
type KarmaDetector struct {
	ssidThreshold int
	highThreshold int
	window        time.Duration
	maxGap        time.Duration
	logger        *slog.Logger
}

// NewKarmaDetector creates the detector from its configured thresholds.
func NewKarmaDetector(cfg config.KarmaConfig, logger *slog.Logger) *KarmaDetector {
	return &KarmaDetector{
		ssidThreshold: cfg.SSIDThreshold,
		highThreshold: cfg.HighThreshold,
		window:        cfg.Window(),
		maxGap:        cfg.MaxGap(),
		logger:        logger,
	}
}

// Name identifies the detector in logs and warnings.
func (d *KarmaDetector) Name() string { return "karma" }

// Detect scans every active history for SSID-set explosions inside the
// window.
func (d *KarmaDetector) Detect(now time.Time, current []model.NetworkObservation, active []*model.NetworkHistory) []Candidate {
	cutoff := now.Add(-d.window)

	var candidates []Candidate
	for _, h := range active {
		ssids := h.SSIDsWithin(cutoff)
		if len(ssids) < d.ssidThreshold {
			continue
		}
		if !continuouslyPresent(h, cutoff, now, d.maxGap) {
			d.logger.Debug("SSID-diverse network not continuously present, skipping",
				"bssid", h.BSSID, "ssids", len(ssids))
			continue
		}

		severity := model.SeverityMedium
		if len(ssids) >= d.highThreshold {
			severity = model.SeverityHigh
		}

		sort.Strings(ssids)
		evidence := []model.Evidence{
			{
				Description: fmt.Sprintf("BSSID %s broadcast %d distinct SSIDs within %s: %s",
					h.BSSID, len(ssids), d.window, strings.Join(ssids, ", ")),
				Timestamp: now,
			},
			{
				Description: fmt.Sprintf("BSSID %s remained continuously present on channel(s) throughout the window", h.BSSID),
				Timestamp:   now,
			},
		}
		if generic := countGenericSSIDs(ssids); generic*2 >= len(ssids) {
			evidence = append(evidence, model.Evidence{
				Description: fmt.Sprintf("%d of %d SSIDs match common hotspot/default naming patterns, typical of replayed probe requests", generic, len(ssids)),
				Timestamp:   now,
			})
		}

		confidence := 0.5 + 0.05*float64(len(ssids))
		if confidence > 1.0 {
			confidence = 1.0
		}

		candidates = append(candidates, Candidate{
			Type:         model.FindingKarma,
			Severity:     severity,
			SubjectBSSID: h.BSSID,
			Confidence:   confidence,
			Evidence:     evidence,
		})
	}
	return candidates
}

// continuouslyPresent reports whether the history's channel sightings cover
// the window without a gap longer than maxGap. A radio that hops away and
// back looks like separate APs coincidentally reusing a MAC, not a single
// persistent karma rig.
func continuouslyPresent(h *model.NetworkHistory, cutoff, now time.Time, maxGap time.Duration) bool {
	var inWindow []time.Time
	for _, cs := range h.ChannelHistory {
		if !cs.SeenAt.Before(cutoff) {
			inWindow = append(inWindow, cs.SeenAt)
		}
	}
	if len(inWindow) < 2 {
		return false
	}
	sort.Slice(inWindow, func(i, j int) bool { return inWindow[i].Before(inWindow[j]) })
	for i := 1; i < len(inWindow); i++ {
		if inWindow[i].Sub(inWindow[i-1]) > maxGap {
			return false
		}
	}
	return now.Sub(inWindow[len(inWindow)-1]) <= maxGap
}

func countGenericSSIDs(ssids []string) int {
	count := 0
	for _, ssid := range ssids {
		lower := strings.ToLower(ssid)
		for _, hint := range genericSSIDHints {
			if strings.Contains(lower, hint) {
				count++
				break
			}
		}
	}
	return count
}
