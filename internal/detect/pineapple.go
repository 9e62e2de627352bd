package detect

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/rfsentry/rfsentry/internal/config"
	"github.com/rfsentry/rfsentry/internal/model"
)

// How close together two same-vendor radios must first appear to count as a
// co-located burst.
const colocationBurst = 90 * time.Second

// PineappleDetector scores each BSSID against heuristic rogue-hardware
// signals. No single signal is conclusive, so this is a weighted sum against
// configurable bands rather than a binary rule; weights and thresholds are
// expected to be tuned per site.
type PineappleDetector struct {
	rogueOUIs      OUISet
	ssidPatterns   []string
	churnThreshold int
	churnWindow    time.Duration
	weights        config.PineappleWeights
	mediumScore    float64
	highScore      float64
	criticalScore  float64
	logger         *slog.Logger
}

// NewPineappleDetector creates the detector from its configured weights,
// bands, and signature lists.
func NewPineappleDetector(cfg config.PineappleConfig, logger *slog.Logger) *PineappleDetector {
	patterns := make([]string, len(cfg.SSIDPatterns))
	for i, p := range cfg.SSIDPatterns {
		patterns[i] = strings.ToLower(p)
	}
	return &PineappleDetector{
		rogueOUIs:      NewOUISet(cfg.RogueOUIs),
		ssidPatterns:   patterns,
		churnThreshold: cfg.ChurnThreshold,
		churnWindow:    cfg.ChurnWindow(),
		weights:        cfg.Weights,
		mediumScore:    cfg.MediumScore,
		highScore:      cfg.HighScore,
		criticalScore:  cfg.CriticalScore,
		logger:         logger,
	}
}

// Name identifies the detector in logs and warnings.
func (d *PineappleDetector) Name() string { return "pineapple" }

// Detect scores every active history; scores below the low-water mark
// produce no candidate.
func (d *PineappleDetector) Detect(now time.Time, current []model.NetworkObservation, active []*model.NetworkHistory) []Candidate {
	var candidates []Candidate
	for _, h := range active {
		score, evidence := d.score(h, active, now)
		severity, flagged := d.band(score)
		if !flagged {
			continue
		}

		confidence := score
		if confidence > 1.0 {
			confidence = 1.0
		}
		candidates = append(candidates, Candidate{
			Type:         model.FindingPineapple,
			Severity:     severity,
			SubjectBSSID: h.BSSID,
			Confidence:   confidence,
			Evidence:     evidence,
		})
	}
	return candidates
}

func (d *PineappleDetector) score(h *model.NetworkHistory, active []*model.NetworkHistory, now time.Time) (float64, []model.Evidence) {
	var score float64
	var evidence []model.Evidence

	if d.rogueOUIs.Contains(h.OUI()) {
		score += d.weights.RogueOUI
		evidence = append(evidence, model.Evidence{
			Description: fmt.Sprintf("vendor OUI %s of BSSID %s matches a known rogue-AP hardware prefix", h.OUI(), h.BSSID),
			Timestamp:   now,
		})
	}

	churnCutoff := now.Add(-d.churnWindow)
	if distinct := h.DistinctChannels(churnCutoff); distinct >= d.churnThreshold {
		score += d.weights.ChannelChurn
		evidence = append(evidence, model.Evidence{
			Description: fmt.Sprintf("BSSID %s used %d distinct channels within %s, consistent with automated channel rotation", h.BSSID, distinct, d.churnWindow),
			Timestamp:   now,
		})
	}

	if siblings := d.colocatedSiblings(h, active); len(siblings) > 0 {
		score += d.weights.Colocation
		evidence = append(evidence, model.Evidence{
			Description: fmt.Sprintf("BSSID %s shares vendor OUI %s with %d other radio(s) that appeared at the same time: %s",
				h.BSSID, h.OUI(), len(siblings), strings.Join(siblings, ", ")),
			Timestamp: now,
		})
	}

	if ssid, ok := d.matchSSIDPattern(h); ok {
		score += d.weights.SSIDPattern
		evidence = append(evidence, model.Evidence{
			Description: fmt.Sprintf("BSSID %s broadcast SSID %q, matching a common rogue-tool naming pattern", h.BSSID, ssid),
			Timestamp:   now,
		})
	}

	return score, evidence
}

// colocatedSiblings finds other active radios from the same vendor block
// that first appeared within the burst window, the signature of one device
// broadcasting several decoy networks at once.
func (d *PineappleDetector) colocatedSiblings(h *model.NetworkHistory, active []*model.NetworkHistory) []string {
	var siblings []string
	for _, other := range active {
		if other.BSSID == h.BSSID || other.OUI() != h.OUI() {
			continue
		}
		gap := other.FirstSeen.Sub(h.FirstSeen)
		if gap < 0 {
			gap = -gap
		}
		if gap <= colocationBurst {
			siblings = append(siblings, other.BSSID)
		}
	}
	return siblings
}

func (d *PineappleDetector) matchSSIDPattern(h *model.NetworkHistory) (string, bool) {
	for ssid := range h.SSIDsSeen {
		lower := strings.ToLower(ssid)
		for _, pattern := range d.ssidPatterns {
			if strings.Contains(lower, pattern) {
				return ssid, true
			}
		}
	}
	return "", false
}

func (d *PineappleDetector) band(score float64) (model.Severity, bool) {
	switch {
	case score >= d.criticalScore:
		return model.SeverityCritical, true
	case score >= d.highScore:
		return model.SeverityHigh, true
	case score >= d.mediumScore:
		return model.SeverityMedium, true
	default:
		return "", false
	}
}
