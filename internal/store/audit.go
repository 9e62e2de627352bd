package store

import (
	"container/ring"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/rfsentry/rfsentry/internal/model"
)

// FindingAudit retains resolved findings for after-the-fact inspection. The
// active finding set lives in the correlation engine; once a finding
// resolves it moves here. A fixed-size ring buffer bounds memory and an LRU
// set guards against recording the same resolution twice.
type FindingAudit struct {
	mu      sync.RWMutex
	entries *ring.Ring
	seen    *lru.Cache[string, bool]
	cap     int
}

// NewFindingAudit creates an audit trail holding at most capacity findings.
func NewFindingAudit(capacity int) *FindingAudit {
	seen, _ := lru.New[string, bool](capacity)
	return &FindingAudit{
		entries: ring.New(capacity),
		seen:    seen,
		cap:     capacity,
	}
}

// Add records a resolved finding. Returns false if this finding was already
// recorded.
func (a *FindingAudit) Add(finding *model.Finding) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, dup := a.seen.Get(finding.ID); dup {
		return false
	}
	a.seen.Add(finding.ID, true)

	a.entries.Value = finding
	a.entries = a.entries.Next()
	return true
}

// All returns the retained findings, oldest first.
func (a *FindingAudit) All() []*model.Finding {
	a.mu.RLock()
	defer a.mu.RUnlock()

	var findings []*model.Finding
	a.entries.Do(func(value interface{}) {
		if value == nil {
			return
		}
		if f, ok := value.(*model.Finding); ok {
			findings = append(findings, f)
		}
	})
	return findings
}

// ByBSSID returns retained findings whose subject matches the given BSSID.
func (a *FindingAudit) ByBSSID(bssid string) []*model.Finding {
	var matched []*model.Finding
	for _, f := range a.All() {
		if f.SubjectBSSID == bssid {
			matched = append(matched, f)
		}
	}
	return matched
}

// Len returns how many findings are currently retained.
func (a *FindingAudit) Len() int {
	return len(a.All())
}
