// CronTicker producer (spec §4.11): at each minute boundary, evaluates
// every registered cron spec and emits one Event per match.
package signal

import (
	"context"
	"time"

	"github.com/seanchatmangpt/gitvan/internal/registry"
)

// CronTicker emits a KindCronTick Event for every spec that matches the
// current minute, once per minute boundary.
type CronTicker struct {
	specs map[string]*registry.CronSpec // jobID -> parsed spec
	now   func() time.Time
}

// NewCronTicker parses specsByJobID (job id -> cron spec text) once at
// construction; invalid specs are dropped with their error returned.
func NewCronTicker(specsByJobID map[string]string, now func() time.Time) (*CronTicker, map[string]error) {
	if now == nil {
		now = time.Now
	}
	parsed := map[string]*registry.CronSpec{}
	errs := map[string]error{}
	for jobID, spec := range specsByJobID {
		cs, err := registry.ParseCron(spec)
		if err != nil {
			errs[jobID] = err
			continue
		}
		parsed[jobID] = cs
	}
	return &CronTicker{specs: parsed, now: now}, errs
}

// Tick evaluates all specs against the current time and returns one Event
// per job id whose spec matches.
func (c *CronTicker) Tick() map[string]Event {
	t := c.now()
	matches := map[string]Event{}
	for jobID, cs := range c.specs {
		if registry.MatchesCron(cs, t) {
			matches[jobID] = Event{Kind: KindCronTick, CronSpec: cs.String(), Timestamp: t}
		}
	}
	return matches
}

// Run calls onTick once per minute boundary until ctx is cancelled,
// passing the result of Tick each time.
func (c *CronTicker) Run(ctx context.Context, onTick func(map[string]Event)) {
	for {
		now := c.now()
		next := now.Truncate(time.Minute).Add(time.Minute)
		wait := next.Sub(now)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			onTick(c.Tick())
		}
	}
}
