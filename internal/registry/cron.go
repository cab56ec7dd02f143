// Cron parsing and scheduling for the Job/Event/Cron Registry (spec §4.9,
// C9). Grounded on the classical 5-field cron grammar rather than wrapping
// a third-party cron library: none of the example pack's dependencies
// (go-gh, semver, sprig, conc, fsnotify, jsonschema, go-yaml) cover cron
// parsing, and the spec's round-trip laws (parseCron ∘ formatCron is the
// identity; matchesCron(spec, getNextExecution(spec, t)) = true) are
// easiest to guarantee over a hand-rolled field model rather than an
// adapter over an external schedule type — see DESIGN.md.
package registry

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/seanchatmangpt/gitvan/internal/gverr"
)

// fieldBounds are the [min,max] inclusive ranges for minute, hour, day,
// month, weekday respectively.
var fieldBounds = [5][2]int{
	{0, 59}, // minute
	{0, 23}, // hour
	{1, 31}, // day of month
	{1, 12}, // month
	{0, 6},  // weekday, 0=Sunday
}

var fieldNames = [5]string{"minute", "hour", "day", "month", "weekday"}

// CronSpec is a parsed 5-field cron expression.
type CronSpec struct {
	raw    string
	fields [5]fieldSpec
}

// fieldSpec is either "any" (null/*) or a sorted set of allowed values.
type fieldSpec struct {
	any    bool
	values map[int]bool
}

// ParseCron parses a classical 5-field cron spec (minute hour day month
// weekday). Each field is `*`, an integer, a range `a-b`, a step `*/s` or
// `a/s`, or a comma union of the above.
func ParseCron(spec string) (*CronSpec, error) {
	parts := strings.Fields(spec)
	if len(parts) != 5 {
		return nil, gverr.New(gverr.KindManifestInvalid, "cron spec %q must have 5 fields, got %d", spec, len(parts))
	}
	cs := &CronSpec{raw: spec}
	for i, part := range parts {
		fs, err := parseField(part, fieldBounds[i])
		if err != nil {
			return nil, gverr.Wrap(gverr.KindManifestInvalid, err, "cron spec %q field %s", spec, fieldNames[i])
		}
		cs.fields[i] = fs
	}
	return cs, nil
}

func parseField(part string, bounds [2]int) (fieldSpec, error) {
	fs := fieldSpec{values: map[int]bool{}}
	for _, term := range strings.Split(part, ",") {
		if err := parseTerm(term, bounds, &fs); err != nil {
			return fieldSpec{}, err
		}
	}
	if len(fs.values) == bounds[1]-bounds[0]+1 {
		fs.any = true
	}
	return fs, nil
}

func parseTerm(term string, bounds [2]int, fs *fieldSpec) error {
	if term == "*" {
		for v := bounds[0]; v <= bounds[1]; v++ {
			fs.values[v] = true
		}
		return nil
	}

	base, step := term, 1
	if idx := strings.Index(term, "/"); idx >= 0 {
		base = term[:idx]
		s, err := strconv.Atoi(term[idx+1:])
		if err != nil || s <= 0 {
			return fmt.Errorf("invalid step in %q", term)
		}
		step = s
	}

	lo, hi := bounds[0], bounds[1]
	if base != "*" {
		if dash := strings.Index(base, "-"); dash >= 0 {
			a, errA := strconv.Atoi(base[:dash])
			b, errB := strconv.Atoi(base[dash+1:])
			if errA != nil || errB != nil || a > b {
				return fmt.Errorf("invalid range %q", base)
			}
			lo, hi = a, b
		} else {
			n, err := strconv.Atoi(base)
			if err != nil {
				return fmt.Errorf("invalid value %q", base)
			}
			lo, hi = n, n
			if step != 1 {
				hi = bounds[1]
			}
		}
	}
	if lo < bounds[0] || hi > bounds[1] {
		return fmt.Errorf("value out of range in %q (bounds %d-%d)", term, bounds[0], bounds[1])
	}

	for v := lo; v <= hi; v += step {
		fs.values[v] = true
	}
	return nil
}

// String formats the spec back into its canonical 5-field textual form.
// Since the parser only retains the resolved value sets (not the original
// operator shorthand), the formatted output uses the most compact
// equivalent form: "*" for a full range, else a sorted comma list with
// contiguous runs collapsed to "a-b".
func (cs *CronSpec) String() string {
	parts := make([]string, 5)
	for i, fs := range cs.fields {
		parts[i] = formatField(fs, fieldBounds[i])
	}
	return strings.Join(parts, " ")
}

func formatField(fs fieldSpec, bounds [2]int) string {
	if fs.any {
		return "*"
	}
	values := make([]int, 0, len(fs.values))
	for v := range fs.values {
		values = append(values, v)
	}
	sort.Ints(values)

	var segments []string
	for i := 0; i < len(values); {
		start := values[i]
		j := i
		for j+1 < len(values) && values[j+1] == values[j]+1 {
			j++
		}
		end := values[j]
		if start == end {
			segments = append(segments, strconv.Itoa(start))
		} else {
			segments = append(segments, fmt.Sprintf("%d-%d", start, end))
		}
		i = j + 1
	}
	return strings.Join(segments, ",")
}

// MatchesCron returns true iff every field of spec matches t's local
// minute/hour/day/month/weekday components. Seconds and sub-second
// precision are ignored (the spec is minute-precision).
func MatchesCron(cs *CronSpec, t time.Time) bool {
	return cs.fields[0].values[t.Minute()] &&
		cs.fields[1].values[t.Hour()] &&
		cs.fields[2].values[t.Day()] &&
		cs.fields[3].values[int(t.Month())] &&
		cs.fields[4].values[int(t.Weekday())]
}

// maxLookahead bounds the forward walk in GetNextExecution so a
// pathologically unsatisfiable spec (impossible day/month combination)
// cannot spin forever.
const maxLookahead = 5 * 366 * 24 * 60

// GetNextExecution returns the smallest t' > from, rounded to the next
// whole minute, satisfying MatchesCron(spec, t'). It walks forward minute
// by minute; cron's field space is small enough (max ~366*24*60 minutes
// for a yearly spec) that this remains fast without per-field pruning.
func GetNextExecution(cs *CronSpec, from time.Time) (time.Time, error) {
	t := from.Truncate(time.Minute).Add(time.Minute)
	if t.Before(from) || t.Equal(from) {
		t = t.Add(time.Minute)
	}
	for i := 0; i < maxLookahead; i++ {
		if MatchesCron(cs, t) {
			return t, nil
		}
		t = t.Add(time.Minute)
	}
	return time.Time{}, gverr.New(gverr.KindManifestInvalid, "cron spec %q has no matching execution within lookahead window", cs.raw)
}
