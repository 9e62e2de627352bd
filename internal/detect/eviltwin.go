package detect

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/rfsentry/rfsentry/internal/config"
	"github.com/rfsentry/rfsentry/internal/model"
)

// EvilTwinDetector flags SSIDs broadcast by multiple BSSIDs with
// inconsistent security or vendor identity. Multi-AP deployments
// legitimately share an SSID, so SSID equality alone is never enough: the
// pair must also disagree on security level or vendor OUI. With no
// allow-list, disagreeing pairs are flagged and left to the operator to
// dismiss.
type EvilTwinDetector struct {
	downgradeSeverity   model.Severity
	ouiMismatchSeverity model.Severity
	logger              *slog.Logger
}

// NewEvilTwinDetector creates the detector from its configured severity
// mapping.
func NewEvilTwinDetector(cfg config.EvilTwinConfig, logger *slog.Logger) *EvilTwinDetector {
	return &EvilTwinDetector{
		downgradeSeverity:   model.Severity(cfg.DowngradeSeverity),
		ouiMismatchSeverity: model.Severity(cfg.OUIMismatchSeverity),
		logger:              logger,
	}
}

// Name identifies the detector in logs and warnings.
func (d *EvilTwinDetector) Name() string { return "evil-twin" }

// twinMember is one BSSID's stake in an SSID group: its security as
// currently advertised (or last known from history), when the radio first
// appeared, and whether it is broadcasting in the current snapshot.
type twinMember struct {
	bssid     string
	security  model.Security
	firstSeen time.Time
	current   bool
}

// Detect groups every active history by the SSIDs it has broadcast, overlays
// the current snapshot for the freshest security data, and computes pairwise
// conflict signals for each SSID carried by two or more BSSIDs. A rogue is
// flagged even when its legitimate counterpart missed the current scan, as
// long as the counterpart's history is still active; a pair with neither
// side currently broadcasting produces nothing, so stale conditions age out
// through the grace period. Hidden networks are skipped: an empty SSID
// cannot be twin-compared.
func (d *EvilTwinDetector) Detect(now time.Time, current []model.NetworkObservation, active []*model.NetworkHistory) []Candidate {
	firstSeen := make(map[string]time.Time, len(active))
	for _, h := range active {
		firstSeen[h.BSSID] = h.FirstSeen
	}

	groups := make(map[string]map[string]twinMember)
	add := func(ssid string, m twinMember) {
		if ssid == "" {
			return
		}
		g, ok := groups[ssid]
		if !ok {
			g = make(map[string]twinMember)
			groups[ssid] = g
		}
		if prev, exists := g[m.bssid]; exists && prev.current && !m.current {
			return
		}
		g[m.bssid] = m
	}

	for _, h := range active {
		for ssid := range h.SSIDsSeen {
			add(ssid, twinMember{
				bssid:     h.BSSID,
				security:  h.LastSecurity,
				firstSeen: h.FirstSeen,
				current:   false,
			})
		}
	}
	for _, obs := range current {
		first, ok := firstSeen[obs.BSSID]
		if !ok {
			first = obs.ObservedAt
		}
		add(obs.SSID, twinMember{
			bssid:     obs.BSSID,
			security:  obs.Security,
			firstSeen: first,
			current:   true,
		})
	}

	var candidates []Candidate
	for ssid, group := range groups {
		if len(group) < 2 {
			continue
		}
		// Deterministic pair order keeps evidence stable across cycles.
		bssids := make([]string, 0, len(group))
		for bssid := range group {
			bssids = append(bssids, bssid)
		}
		sort.Strings(bssids)

		for i := 0; i < len(bssids); i++ {
			for j := i + 1; j < len(bssids); j++ {
				a, b := group[bssids[i]], group[bssids[j]]
				if !a.current && !b.current {
					continue
				}
				if c, ok := d.comparePair(ssid, a, b, now); ok {
					candidates = append(candidates, c)
				}
			}
		}
	}
	return candidates
}

// comparePair evaluates one BSSID pair sharing an SSID. Security mismatch is
// the classic downgrade-twin pattern; same security with a different vendor
// OUI is weaker evidence.
func (d *EvilTwinDetector) comparePair(ssid string, a, b twinMember, now time.Time) (Candidate, bool) {
	if a.security != b.security {
		// The weaker side is the presumed rogue.
		subject, counterpart := a, b
		if b.security.Rank() < a.security.Rank() {
			subject, counterpart = b, a
		}
		return Candidate{
			Type:             model.FindingEvilTwin,
			Severity:         d.downgradeSeverity,
			SubjectBSSID:     subject.bssid,
			CounterpartBSSID: counterpart.bssid,
			Confidence:       0.9,
			Evidence: []model.Evidence{{
				Description: fmt.Sprintf("SSID %q broadcast by %s (%s) and %s (%s) while both networks were active",
					ssid, counterpart.bssid, counterpart.security, subject.bssid, subject.security),
				Timestamp: now,
			}},
		}, true
	}

	if bssidOUI(a.bssid) != bssidOUI(b.bssid) {
		// Equal security, different vendor: suspect whichever radio
		// appeared more recently.
		subject, counterpart := a, b
		if b.firstSeen.After(a.firstSeen) {
			subject, counterpart = b, a
		}
		return Candidate{
			Type:             model.FindingEvilTwin,
			Severity:         d.ouiMismatchSeverity,
			SubjectBSSID:     subject.bssid,
			CounterpartBSSID: counterpart.bssid,
			Confidence:       0.6,
			Evidence: []model.Evidence{{
				Description: fmt.Sprintf("SSID %q broadcast by %s and %s with matching security (%s) but different vendor OUIs (%s vs %s)",
					ssid, counterpart.bssid, subject.bssid, a.security, bssidOUI(counterpart.bssid), bssidOUI(subject.bssid)),
				Timestamp: now,
			}},
		}, true
	}

	return Candidate{}, false
}

func bssidOUI(bssid string) string {
	if len(bssid) < 8 {
		return ""
	}
	return bssid[:8]
}
