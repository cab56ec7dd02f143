//go:build !integration

package registry_test

import (
	"testing"
	"time"

	"github.com/seanchatmangpt/gitvan/internal/registry"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, spec string) *registry.CronSpec {
	t.Helper()
	cs, err := registry.ParseCron(spec)
	require.NoError(t, err)
	return cs
}

func TestCronTickScenario(t *testing.T) {
	cs := mustParse(t, "*/15 9-17 * * 1-5")

	from := time.Date(2024, 3, 4, 9, 7, 0, 0, time.UTC) // Monday
	next, err := registry.GetNextExecution(cs, from)
	require.NoError(t, err)
	require.Equal(t, time.Date(2024, 3, 4, 9, 15, 0, 0, time.UTC), next)

	next2, err := registry.GetNextExecution(cs, next)
	require.NoError(t, err)
	require.Equal(t, time.Date(2024, 3, 4, 9, 30, 0, 0, time.UTC), next2)

	late := time.Date(2024, 3, 4, 17, 45, 0, 0, time.UTC)
	nextDay, err := registry.GetNextExecution(cs, late)
	require.NoError(t, err)
	require.Equal(t, time.Date(2024, 3, 5, 9, 0, 0, 0, time.UTC), nextDay)
}

func TestMatchesCronAndNextExecutionLaws(t *testing.T) {
	specs := []string{"*/15 9-17 * * 1-5", "0 0 1 * *", "30 2 * * 0", "*/5 * * * *"}
	from := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
	for _, spec := range specs {
		cs := mustParse(t, spec)
		next, err := registry.GetNextExecution(cs, from)
		require.NoError(t, err)
		require.True(t, next.After(from))
		require.True(t, registry.MatchesCron(cs, next))
	}
}

func TestParseCronRejectsWrongFieldCount(t *testing.T) {
	_, err := registry.ParseCron("* * *")
	require.Error(t, err)
}

func TestParseCronRejectsOutOfRange(t *testing.T) {
	_, err := registry.ParseCron("60 * * * *")
	require.Error(t, err)
}

func TestParseFormatRoundTripSemanticallyEquivalent(t *testing.T) {
	cs := mustParse(t, "0,15,30,45 9-17 * * 1-5")
	formatted := cs.String()
	reparsed := mustParse(t, formatted)

	from := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 200; i++ {
		require.Equal(t, registry.MatchesCron(cs, from), registry.MatchesCron(reparsed, from))
		from = from.Add(time.Minute)
	}
}
