// Package signal implements the Signal Engine (spec §4.11, C11): cron
// ticks and git-derived change events, matched against event-binding
// predicates to produce job invocations. Grounded on gitadapter's
// DiffNameOnly/CommitMessage/RevParse (already shaped for this exact
// purpose) for the GitWatcher half, and on registry.MatchesCron for the
// CronTicker half.
package signal

import (
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// Kind enumerates the SignalEvent categories.
type Kind string

const (
	KindCronTick     Kind = "cronTick"
	KindTagCreate    Kind = "tagCreate"
	KindCommit       Kind = "commit"
	KindBranchChange Kind = "branchChange"
)

// Event is one observed signal (spec §4.11 "SignalEvent").
type Event struct {
	Kind           Kind
	CronSpec       string
	Commit         string
	PreviousCommit string
	ChangedPaths   []string
	Message        string
	Branch         string
	Tag            string
	Timestamp      time.Time
}

// Predicate is the logical-composition matcher over an Event (spec §4.11:
// "{all:[...], any:[...], not:[...]}" composed of tagCreate/message/
// pathChanged/branch leaves).
type Predicate struct {
	All []Predicate
	Any []Predicate
	Not *Predicate

	TagCreate   string // regex against Event.Tag
	Message     string // regex against Event.Message
	PathChanged string // glob against each of Event.ChangedPaths
	Branch      string // exact match against Event.Branch
}

// Match evaluates p against ev.
func (p Predicate) Match(ev Event) bool {
	if len(p.All) > 0 {
		for _, sub := range p.All {
			if !sub.Match(ev) {
				return false
			}
		}
		return true
	}
	if len(p.Any) > 0 {
		for _, sub := range p.Any {
			if sub.Match(ev) {
				return true
			}
		}
		return false
	}
	if p.Not != nil {
		return !p.Not.Match(ev)
	}

	if p.TagCreate != "" {
		return matchRegex(p.TagCreate, ev.Tag)
	}
	if p.Message != "" {
		return matchRegex(p.Message, ev.Message)
	}
	if p.PathChanged != "" {
		for _, path := range ev.ChangedPaths {
			if ok, _ := filepath.Match(p.PathChanged, path); ok {
				return true
			}
			if matchesGlobPrefix(p.PathChanged, path) {
				return true
			}
		}
		return false
	}
	if p.Branch != "" {
		return p.Branch == ev.Branch
	}
	return false
}

func matchRegex(pattern, s string) bool {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return false
	}
	return re.MatchString(s)
}

// matchesGlobPrefix supports the "**" recursive-directory glob segment
// that filepath.Match does not, e.g. "src/**" matching "src/a/b.go".
func matchesGlobPrefix(pattern, path string) bool {
	if !strings.Contains(pattern, "**") {
		return false
	}
	prefix := strings.SplitN(pattern, "**", 2)[0]
	prefix = strings.TrimSuffix(prefix, "/")
	return prefix == "" || strings.HasPrefix(path, prefix+"/") || path == prefix
}

// FromPredicateSpec builds a Predicate from a registry.EventBinding's kind
// and pattern, for the common case of a single leaf predicate (the
// composed {all,any,not} forms are authored directly as Predicate values
// by callers that need them, e.g. daemon configuration).
func FromPredicateSpec(kind, pattern string) Predicate {
	switch kind {
	case "tagCreate":
		return Predicate{TagCreate: pattern}
	case "message":
		return Predicate{Message: pattern}
	case "pathChanged":
		return Predicate{PathChanged: pattern}
	case "branch":
		return Predicate{Branch: pattern}
	default:
		return Predicate{}
	}
}
