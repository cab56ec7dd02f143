//go:build !integration

package signal_test

import (
	"testing"
	"time"

	"github.com/seanchatmangpt/gitvan/internal/signal"
	"github.com/stretchr/testify/require"
)

func TestPredicateMessageRegex(t *testing.T) {
	p := signal.Predicate{Message: "^release:"}
	require.True(t, p.Match(signal.Event{Message: "release: v1.0.0"}))
	require.False(t, p.Match(signal.Event{Message: "fix: bug"}))
}

func TestPredicatePathChangedGlob(t *testing.T) {
	p := signal.Predicate{PathChanged: "src/**"}
	require.True(t, p.Match(signal.Event{ChangedPaths: []string{"src/a/b.go"}}))
	require.False(t, p.Match(signal.Event{ChangedPaths: []string{"docs/readme.md"}}))
}

func TestPredicateAllRequiresEverySubMatch(t *testing.T) {
	p := signal.Predicate{All: []signal.Predicate{
		{Message: "^release:"},
		{Branch: "main"},
	}}
	require.True(t, p.Match(signal.Event{Message: "release: v1", Branch: "main"}))
	require.False(t, p.Match(signal.Event{Message: "release: v1", Branch: "dev"}))
}

func TestPredicateAnyRequiresOneSubMatch(t *testing.T) {
	p := signal.Predicate{Any: []signal.Predicate{
		{Branch: "main"},
		{Branch: "release"},
	}}
	require.True(t, p.Match(signal.Event{Branch: "release"}))
	require.False(t, p.Match(signal.Event{Branch: "dev"}))
}

func TestPredicateNotInverts(t *testing.T) {
	p := signal.Predicate{Not: &signal.Predicate{Branch: "main"}}
	require.True(t, p.Match(signal.Event{Branch: "dev"}))
	require.False(t, p.Match(signal.Event{Branch: "main"}))
}

func TestCronTickerEmitsOnlyMatchingSpecs(t *testing.T) {
	fixed := time.Date(2024, 3, 4, 9, 15, 0, 0, time.UTC) // Monday
	ticker, errs := signal.NewCronTicker(map[string]string{
		"job/match":    "*/15 9-17 * * 1-5",
		"job/nomatch":  "0 0 1 * *",
		"job/invalid":  "not a cron spec",
	}, func() time.Time { return fixed })
	require.Len(t, errs, 1)
	require.Contains(t, errs, "job/invalid")

	matches := ticker.Tick()
	require.Contains(t, matches, "job/match")
	require.NotContains(t, matches, "job/nomatch")
}
