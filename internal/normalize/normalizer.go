package normalize

import (
	"fmt"
	"log/slog"
	"net"
	"strings"

	"github.com/rfsentry/rfsentry/internal/model"
)

// Warning reports a raw record that could not be normalized. Warnings are
// never fatal; the offending record is dropped and the cycle continues.
type Warning struct {
	BSSID  string `json:"bssid"`
	Reason string `json:"reason"`
}

// Normalizer turns raw scan records into validated observations. It is a
// pure transform: no state, no side effects beyond debug logging.
type Normalizer struct {
	logger *slog.Logger
}

// New creates a normalizer.
func New(logger *slog.Logger) *Normalizer {
	return &Normalizer{logger: logger}
}

// Normalize validates and canonicalizes one snapshot. Duplicate BSSIDs
// within the same scan collapse to the strongest-signal sighting. Records
// with an unparseable BSSID are dropped and reported as warnings.
func (n *Normalizer) Normalize(snap model.Snapshot) ([]model.NetworkObservation, []Warning) {
	var warnings []Warning
	byBSSID := make(map[string]model.NetworkObservation, len(snap.Records))
	order := make([]string, 0, len(snap.Records))

	for _, rec := range snap.Records {
		bssid, err := CanonicalBSSID(rec.BSSID)
		if err != nil {
			warnings = append(warnings, Warning{BSSID: rec.BSSID, Reason: err.Error()})
			n.logger.Debug("Dropping malformed scan record", "bssid", rec.BSSID, "error", err)
			continue
		}

		obs := model.NetworkObservation{
			BSSID:          bssid,
			SSID:           strings.TrimSpace(rec.SSID),
			Channel:        rec.Channel,
			Band:           BandForChannel(rec.Channel),
			SignalStrength: rec.SignalDBM,
			Security:       ParseSecurity(rec.Capabilities),
			ObservedAt:     snap.CapturedAt,
		}

		prev, seen := byBSSID[bssid]
		if !seen {
			order = append(order, bssid)
			byBSSID[bssid] = obs
			continue
		}
		// Same BSSID twice in one scan: keep the stronger sighting.
		if obs.SignalStrength > prev.SignalStrength {
			byBSSID[bssid] = obs
		}
	}

	observations := make([]model.NetworkObservation, 0, len(byBSSID))
	for _, bssid := range order {
		observations = append(observations, byBSSID[bssid])
	}
	return observations, warnings
}

// CanonicalBSSID parses a MAC-like identifier in any of the common textual
// forms and returns the canonical lowercase colon-separated form.
func CanonicalBSSID(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", fmt.Errorf("empty bssid")
	}
	hw, err := net.ParseMAC(trimmed)
	if err != nil {
		return "", fmt.Errorf("unparseable bssid %q: %w", raw, err)
	}
	if len(hw) != 6 {
		return "", fmt.Errorf("bssid %q is not a 48-bit address", raw)
	}
	return strings.ToLower(hw.String()), nil
}

// BandForChannel maps an 802.11 channel number onto its frequency band.
// The 6GHz band reuses low channel numbers, so without center-frequency
// data the split below is the usual best effort.
func BandForChannel(channel int) model.FrequencyBand {
	switch {
	case channel >= 1 && channel <= 14:
		return model.Band24GHz
	case channel >= 32 && channel <= 177:
		return model.Band5GHz
	case channel >= 189 && channel <= 233:
		return model.Band6GHz
	default:
		return model.BandUnknown
	}
}

// ParseSecurity classifies whatever capability string the driver supplied.
func ParseSecurity(capabilities string) model.Security {
	caps := strings.ToUpper(capabilities)
	switch {
	case strings.Contains(caps, "WPA3"), strings.Contains(caps, "SAE"):
		return model.SecurityWPA3
	case strings.Contains(caps, "WPA2"), strings.Contains(caps, "RSN"):
		return model.SecurityWPA2
	case strings.Contains(caps, "WPA"):
		return model.SecurityWPA
	case strings.Contains(caps, "WEP"):
		return model.SecurityWEP
	case caps == "", caps == "ESS", strings.Contains(caps, "OPEN"):
		return model.SecurityOpen
	default:
		return model.SecurityUnknown
	}
}
