package normalize

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rfsentry/rfsentry/internal/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNormalize_CanonicalizesBSSID(t *testing.T) {
	n := New(testLogger())
	snap := model.Snapshot{
		CapturedAt: time.Now(),
		Records: []model.RawAPRecord{
			{BSSID: "AA:BB:CC:DD:EE:FF", SSID: "Cafe", Channel: 6, Capabilities: "WPA2-PSK"},
			{BSSID: "11-22-33-44-55-66", SSID: "Office", Channel: 36, Capabilities: "WPA3-SAE"},
		},
	}

	obs, warnings := n.Normalize(snap)
	require.Len(t, obs, 2)
	assert.Empty(t, warnings)
	assert.Equal(t, "aa:bb:cc:dd:ee:ff", obs[0].BSSID)
	assert.Equal(t, "11:22:33:44:55:66", obs[1].BSSID)
}

func TestNormalize_DropsMalformedBSSID(t *testing.T) {
	n := New(testLogger())
	snap := model.Snapshot{
		CapturedAt: time.Now(),
		Records: []model.RawAPRecord{
			{BSSID: "not-a-mac", SSID: "Broken", Channel: 1},
			{BSSID: "", SSID: "Empty", Channel: 1},
			{BSSID: "aa:bb:cc:dd:ee:ff", SSID: "Good", Channel: 1},
		},
	}

	obs, warnings := n.Normalize(snap)
	require.Len(t, obs, 1)
	assert.Equal(t, "Good", obs[0].SSID)
	assert.Len(t, warnings, 2)
	assert.Equal(t, "not-a-mac", warnings[0].BSSID)
}

func TestNormalize_DeduplicatesByStrongestSignal(t *testing.T) {
	n := New(testLogger())
	snap := model.Snapshot{
		CapturedAt: time.Now(),
		Records: []model.RawAPRecord{
			{BSSID: "aa:bb:cc:dd:ee:ff", SSID: "Cafe", Channel: 6, SignalDBM: -70},
			{BSSID: "AA:BB:CC:DD:EE:FF", SSID: "Cafe", Channel: 6, SignalDBM: -50},
		},
	}

	obs, warnings := n.Normalize(snap)
	require.Len(t, obs, 1)
	assert.Empty(t, warnings)
	assert.Equal(t, -50, obs[0].SignalStrength)
}

func TestNormalize_StampsObservationTime(t *testing.T) {
	n := New(testLogger())
	captured := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	snap := model.Snapshot{
		CapturedAt: captured,
		Records:    []model.RawAPRecord{{BSSID: "aa:bb:cc:dd:ee:ff", Channel: 6}},
	}

	obs, _ := n.Normalize(snap)
	require.Len(t, obs, 1)
	assert.Equal(t, captured, obs[0].ObservedAt)
}

func TestNormalize_EmptySnapshotIsValid(t *testing.T) {
	n := New(testLogger())
	obs, warnings := n.Normalize(model.Snapshot{CapturedAt: time.Now()})
	assert.Empty(t, obs)
	assert.Empty(t, warnings)
}

func TestBandForChannel(t *testing.T) {
	tests := []struct {
		channel int
		band    model.FrequencyBand
	}{
		{1, model.Band24GHz},
		{6, model.Band24GHz},
		{14, model.Band24GHz},
		{36, model.Band5GHz},
		{165, model.Band5GHz},
		{197, model.Band6GHz},
		{0, model.BandUnknown},
		{-3, model.BandUnknown},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.band, BandForChannel(tt.channel), "channel %d", tt.channel)
	}
}

func TestParseSecurity(t *testing.T) {
	tests := []struct {
		caps     string
		expected model.Security
	}{
		{"WPA3-SAE-CCMP", model.SecurityWPA3},
		{"[WPA2-PSK-CCMP][ESS]", model.SecurityWPA2},
		{"RSN-PSK", model.SecurityWPA2},
		{"WPA-PSK-TKIP", model.SecurityWPA},
		{"WEP", model.SecurityWEP},
		{"", model.SecurityOpen},
		{"ESS", model.SecurityOpen},
		{"something-else", model.SecurityUnknown},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, ParseSecurity(tt.caps), "caps %q", tt.caps)
	}
}
