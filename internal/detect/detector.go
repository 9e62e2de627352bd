package detect

import (
	"time"

	"github.com/rfsentry/rfsentry/internal/model"
)

// Candidate is a threat a detector proposes for the current cycle. The
// correlation engine owns finding identity and lifecycle; detectors only
// describe what they saw.
type Candidate struct {
	Type             model.FindingType
	Severity         model.Severity
	SubjectBSSID     string
	CounterpartBSSID string
	Confidence       float64
	Evidence         []model.Evidence
}

// Detector examines one cycle's data and proposes candidates. Inputs are
// read-only copies: current holds this cycle's normalized observations,
// active holds every history inside the retention window. Implementations
// must be side-effect free so the engine can run them in parallel.
type Detector interface {
	Name() string
	Detect(now time.Time, current []model.NetworkObservation, active []*model.NetworkHistory) []Candidate
}

// OUISet is a set of vendor prefixes in canonical lowercase colon form.
type OUISet map[string]bool

// NewOUISet builds a set from prefix strings, tolerating mixed case and
// hyphen separators.
func NewOUISet(prefixes []string) OUISet {
	set := make(OUISet, len(prefixes))
	for _, p := range prefixes {
		set[canonicalOUI(p)] = true
	}
	return set
}

// Contains reports whether the given OUI is in the set.
func (s OUISet) Contains(oui string) bool {
	return s[canonicalOUI(oui)]
}

func canonicalOUI(p string) string {
	out := make([]byte, 0, 8)
	for i := 0; i < len(p); i++ {
		c := p[i]
		switch {
		case c >= 'A' && c <= 'Z':
			out = append(out, c+('a'-'A'))
		case c == '-':
			out = append(out, ':')
		default:
			out = append(out, c)
		}
	}
	return string(out)
}
