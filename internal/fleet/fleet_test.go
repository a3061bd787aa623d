package fleet

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nexusfleet/nexus/internal/registry"
)

func TestAnalyzeFiltersBySampleDaysAndRequestCount(t *testing.T) {
	tr := New(Config{Enabled: true, MinSampleDays: 3, MinRequestCount: 5, MaxRecommendations: 10}, nil)
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)

	// qualifies: 6 requests spread over 6 days.
	for i := 0; i < 6; i++ {
		tr.RecordRequest("llama3:8b", now.AddDate(0, 0, -i))
	}
	// too few requests.
	tr.RecordRequest("mistral:7b", now)
	tr.RecordRequest("mistral:7b", now.AddDate(0, 0, -1))

	recs := tr.Analyze(now)
	require.Len(t, recs, 1)
	require.Equal(t, "llama3:8b", recs[0].ModelID)
	require.Equal(t, 6, recs[0].RequestCount)
}

func TestAnalyzePrunesSamplesOutsideWindow(t *testing.T) {
	tr := New(Config{Enabled: true, MinSampleDays: 1, MinRequestCount: 1, MaxRecommendations: 10}, nil)
	now := time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)

	tr.RecordRequest("stale:model", now.AddDate(0, 0, -45))
	tr.RecordRequest("fresh:model", now.AddDate(0, 0, -1))

	recs := tr.Analyze(now)
	require.Len(t, recs, 1)
	require.Equal(t, "fresh:model", recs[0].ModelID)
}

func TestAnalyzeOrdersByScoreThenModelID(t *testing.T) {
	tr := New(Config{Enabled: true, MinSampleDays: 1, MinRequestCount: 1, MaxRecommendations: 10}, nil)
	now := time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 10; i++ {
		tr.RecordRequest("popular:model", now)
	}
	tr.RecordRequest("rare:model", now)

	recs := tr.Analyze(now)
	require.Len(t, recs, 2)
	require.Equal(t, "popular:model", recs[0].ModelID)
	require.Equal(t, "rare:model", recs[1].ModelID)
}

func TestAnalyzeCapsAtMaxRecommendations(t *testing.T) {
	tr := New(Config{Enabled: true, MinSampleDays: 1, MinRequestCount: 1, MaxRecommendations: 2}, nil)
	now := time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)

	tr.RecordRequest("a", now)
	tr.RecordRequest("b", now)
	tr.RecordRequest("c", now)

	recs := tr.Analyze(now)
	require.Len(t, recs, 2)
}

func TestDisabledTrackerRecordsNothing(t *testing.T) {
	tr := New(Config{Enabled: false, MinSampleDays: 1, MinRequestCount: 1}, nil)
	now := time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)
	tr.RecordRequest("a", now)
	require.Empty(t, tr.Analyze(now))
}

func TestRecommendationsEmptyUntilAnalyzed(t *testing.T) {
	tr := New(DefaultConfig(), nil)
	require.Empty(t, tr.Recommendations())
}

func TestAnalyzeTargetsEligibleBackendsOnly(t *testing.T) {
	reg := registry.New()
	require.NoError(t, reg.AddBackend(registry.Backend{
		ID: "b1", Name: "b1", Status: registry.StatusHealthy,
		Models: []registry.Model{{ID: "codellama:7b"}},
	}))
	require.NoError(t, reg.AddBackend(registry.Backend{
		ID: "b2", Name: "b2", Status: registry.StatusHealthy,
	}))
	require.NoError(t, reg.AddBackend(registry.Backend{
		ID: "b3", Name: "b3", Status: registry.StatusUnhealthy,
	}))

	tr := New(Config{Enabled: true, MinSampleDays: 1, MinRequestCount: 1, MaxRecommendations: 10}, reg)
	now := time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)
	tr.RecordRequest("llama3:8b", now)

	recs := tr.Analyze(now)
	require.Len(t, recs, 1)
	require.ElementsMatch(t, []string{"b1", "b2"}, recs[0].TargetBackendIDs)
}

func TestAnalyzeSkipsHotModel(t *testing.T) {
	reg := registry.New()
	require.NoError(t, reg.AddBackend(registry.Backend{
		ID: "b1", Name: "b1", Status: registry.StatusHealthy,
		Models: []registry.Model{{ID: "llama3:8b"}},
	}))
	require.NoError(t, reg.AddBackend(registry.Backend{
		ID: "b2", Name: "b2", Status: registry.StatusHealthy,
	}))

	tr := New(Config{Enabled: true, MinSampleDays: 1, MinRequestCount: 1, MaxRecommendations: 10}, reg)
	now := time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)
	tr.RecordRequest("llama3:8b", now)

	require.Empty(t, tr.Analyze(now))
}

func TestAnalyzeSkipsModelWithNoEligibleBackend(t *testing.T) {
	reg := registry.New()
	require.NoError(t, reg.AddBackend(registry.Backend{
		ID: "b1", Name: "b1", Status: registry.StatusUnhealthy,
	}))

	tr := New(Config{Enabled: true, MinSampleDays: 1, MinRequestCount: 1, MaxRecommendations: 10}, reg)
	now := time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)
	tr.RecordRequest("llama3:8b", now)

	require.Empty(t, tr.Analyze(now))
}
