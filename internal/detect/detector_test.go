package detect

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/rfsentry/rfsentry/internal/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// historyOf builds a NetworkHistory from a series of sightings for detector
// tests that bypass the store.
func historyOf(bssid string, sightings []model.NetworkObservation) *model.NetworkHistory {
	h := &model.NetworkHistory{
		BSSID:           bssid,
		SSIDsSeen:       make(map[string]time.Time),
		SecurityHistory: make(map[model.Security]bool),
	}
	for i, obs := range sightings {
		if i == 0 {
			h.FirstSeen = obs.ObservedAt
		}
		h.LastSeen = obs.ObservedAt
		h.LastChannel = obs.Channel
		h.LastSecurity = obs.Security
		h.SSIDsSeen[obs.SSID] = obs.ObservedAt
		h.SecurityHistory[obs.Security] = true
		h.ChannelHistory = append(h.ChannelHistory, model.ChannelSighting{
			Channel: obs.Channel,
			SeenAt:  obs.ObservedAt,
		})
	}
	return h
}

func TestOUISet(t *testing.T) {
	set := NewOUISet([]string{"00:13:37", "B8-27-EB"})

	assert.True(t, set.Contains("00:13:37"))
	assert.True(t, set.Contains("00-13-37"))
	assert.True(t, set.Contains("b8:27:eb"))
	assert.True(t, set.Contains("B8:27:EB"))
	assert.False(t, set.Contains("aa:bb:cc"))
}
