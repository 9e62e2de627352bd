package model

import (
	"time"
)

// FrequencyBand identifies the radio band a channel belongs to.
type FrequencyBand string

const (
	Band24GHz   FrequencyBand = "2.4GHz"
	Band5GHz    FrequencyBand = "5GHz"
	Band6GHz    FrequencyBand = "6GHz"
	BandUnknown FrequencyBand = "unknown"
)

// Security classifies the advertised security mode of an access point.
type Security string

const (
	SecurityOpen    Security = "open"
	SecurityWEP     Security = "wep"
	SecurityWPA     Security = "wpa"
	SecurityWPA2    Security = "wpa2"
	SecurityWPA3    Security = "wpa3"
	SecurityUnknown Security = "unknown"
)

// Rank orders security modes from weakest to strongest so detectors can
// reason about downgrades. Unknown ranks below open on purpose: an AP that
// hides its capabilities is never treated as the stronger side of a pair.
func (s Security) Rank() int {
	switch s {
	case SecurityOpen:
		return 0
	case SecurityWEP:
		return 1
	case SecurityWPA:
		return 2
	case SecurityWPA2:
		return 3
	case SecurityWPA3:
		return 4
	default:
		return -1
	}
}

// RawAPRecord is one access-point row exactly as the scan driver reported it.
// Fields may be missing or malformed; nothing downstream of the normalizer
// ever touches this type.
type RawAPRecord struct {
	BSSID        string `json:"bssid"`
	SSID         string `json:"ssid"`
	Channel      int    `json:"channel"`
	SignalDBM    int    `json:"signal_dbm"`
	Capabilities string `json:"capabilities"`
}

// Snapshot is one full scan result handed in by the external scan driver.
type Snapshot struct {
	CapturedAt time.Time     `json:"captured_at"`
	Interface  string        `json:"interface,omitempty"`
	Records    []RawAPRecord `json:"records"`
}

// NetworkObservation is a single validated sighting of a BSSID. Immutable
// once created; the store only ever appends new observations.
type NetworkObservation struct {
	BSSID          string        `json:"bssid"`
	SSID           string        `json:"ssid"`
	Channel        int           `json:"channel"`
	Band           FrequencyBand `json:"band"`
	SignalStrength int           `json:"signal_strength"` // dBm
	Security       Security      `json:"security"`
	ObservedAt     time.Time     `json:"observed_at"`
}

// OUI returns the vendor prefix (first three octets) of the observation's
// BSSID, e.g. "aa:bb:cc". BSSIDs are canonical by the time an observation
// exists, so a plain slice is safe.
func (o NetworkObservation) OUI() string {
	if len(o.BSSID) < 8 {
		return ""
	}
	return o.BSSID[:8]
}

// ChannelSighting is one (channel, timestamp) entry in a history's bounded
// channel track.
type ChannelSighting struct {
	Channel int       `json:"channel"`
	SeenAt  time.Time `json:"seen_at"`
}

// NetworkHistory is the aggregated per-BSSID state derived from its
// observations. Owned exclusively by the observation store; detectors get
// read-only copies.
type NetworkHistory struct {
	BSSID           string               `json:"bssid"`
	FirstSeen       time.Time            `json:"first_seen"`
	LastSeen        time.Time            `json:"last_seen"`
	LastSignal      int                  `json:"last_signal"`
	LastChannel     int                  `json:"last_channel"`
	LastSecurity    Security             `json:"last_security"`
	SSIDsSeen       map[string]time.Time `json:"ssids_seen"`      // SSID -> last time broadcast
	ChannelHistory  []ChannelSighting    `json:"channel_history"` // bounded, oldest dropped
	SecurityHistory map[Security]bool    `json:"security_history"`
}

// Clone returns a deep copy so readers can hold a history without racing
// the store's writer.
func (h *NetworkHistory) Clone() *NetworkHistory {
	c := *h
	c.SSIDsSeen = make(map[string]time.Time, len(h.SSIDsSeen))
	for k, v := range h.SSIDsSeen {
		c.SSIDsSeen[k] = v
	}
	c.ChannelHistory = make([]ChannelSighting, len(h.ChannelHistory))
	copy(c.ChannelHistory, h.ChannelHistory)
	c.SecurityHistory = make(map[Security]bool, len(h.SecurityHistory))
	for k, v := range h.SecurityHistory {
		c.SecurityHistory[k] = v
	}
	return &c
}

// OUI returns the vendor prefix of the history's BSSID.
func (h *NetworkHistory) OUI() string {
	if len(h.BSSID) < 8 {
		return ""
	}
	return h.BSSID[:8]
}

// SSIDsWithin returns the distinct non-hidden SSIDs this BSSID broadcast at
// or after the cutoff.
func (h *NetworkHistory) SSIDsWithin(cutoff time.Time) []string {
	var out []string
	for ssid, last := range h.SSIDsSeen {
		if ssid == "" {
			continue
		}
		if !last.Before(cutoff) {
			out = append(out, ssid)
		}
	}
	return out
}

// DistinctChannels returns the number of distinct channels in the bounded
// channel track at or after the cutoff.
func (h *NetworkHistory) DistinctChannels(cutoff time.Time) int {
	seen := map[int]bool{}
	for _, cs := range h.ChannelHistory {
		if !cs.SeenAt.Before(cutoff) {
			seen[cs.Channel] = true
		}
	}
	return len(seen)
}

// FindingType enumerates the attack signatures the engine can flag.
type FindingType string

const (
	FindingEvilTwin  FindingType = "evil-twin"
	FindingKarma     FindingType = "karma"
	FindingPineapple FindingType = "pineapple"
)

// Severity grades a finding.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank orders severities so merge logic can keep the stronger of two grades.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	default:
		return 0
	}
}

// FindingStatus tracks a finding through its lifecycle.
type FindingStatus string

const (
	StatusOpen     FindingStatus = "open"
	StatusResolved FindingStatus = "resolved"
)

// Evidence is one human-readable fact supporting a finding.
type Evidence struct {
	Description string    `json:"description"`
	Timestamp   time.Time `json:"timestamp"`
}

// Finding is a detected threat instance. Findings persist across cycles and
// are re-confirmed rather than re-created while the condition holds.
type Finding struct {
	ID               string        `json:"id"`
	Type             FindingType   `json:"type"`
	Severity         Severity      `json:"severity"`
	Status           FindingStatus `json:"status"`
	SubjectBSSID     string        `json:"subject_bssid"`
	CounterpartBSSID string        `json:"counterpart_bssid,omitempty"` // evil-twin: the presumed legitimate AP
	Evidence         []Evidence    `json:"evidence"`
	Confidence       float64       `json:"confidence"` // 0.0 to 1.0
	FirstDetectedAt  time.Time     `json:"first_detected_at"`
	LastConfirmedAt  time.Time     `json:"last_confirmed_at"`
	ResolvedAt       time.Time     `json:"resolved_at"`
}

// Key is the identity the correlation engine deduplicates findings on.
func (f *Finding) Key() string {
	return string(f.Type) + "|" + f.SubjectBSSID
}

// Clone returns a deep copy so readers can hold a finding without racing
// the engine's merge phase.
func (f *Finding) Clone() *Finding {
	c := *f
	c.Evidence = make([]Evidence, len(f.Evidence))
	copy(c.Evidence, f.Evidence)
	return &c
}

// FindingBatch is what the engine hands to the sink after each cycle.
type FindingBatch struct {
	CycleSeq    uint64     `json:"cycle_seq"`
	CompletedAt time.Time  `json:"completed_at"`
	New         []*Finding `json:"new"`
	Confirmed   []*Finding `json:"confirmed"`
	Resolved    []*Finding `json:"resolved"`
}

// Empty reports whether the batch carries anything worth publishing.
func (b *FindingBatch) Empty() bool {
	return len(b.New) == 0 && len(b.Confirmed) == 0 && len(b.Resolved) == 0
}
