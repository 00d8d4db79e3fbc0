// Package progress estimates how far a year-by-year batch job has come from
// the output files it has written so far.
//
// The estimate assumes roughly uniform output density per year. Jobs whose
// years produce very different file counts get a proportionally rougher
// estimate; that error is accepted rather than corrected.
package progress

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/bmatcuk/doublestar/v4"
)

// Default tunables for the heuristic.
const (
	// DefaultBaselineFilesPerYear is the typical number of output files per year.
	DefaultBaselineFilesPerYear = 300

	// DefaultFallbackPerYear is the time estimate per declared year when there
	// is no rate evidence.
	DefaultFallbackPerYear = 3*time.Minute + 30*time.Second

	// DefaultPlateauPercent is reported when the evidence looks complete but
	// the job is not.
	DefaultPlateauPercent = 0.99

	// DefaultPlateauRemaining accompanies DefaultPlateauPercent.
	DefaultPlateauRemaining = time.Second

	// DefaultSeparator follows the year label in evidence file names.
	DefaultSeparator = "."
)

// Config holds the tunables for an Estimator.
type Config struct {
	// BaselineFilesPerYear is the assumed output density. The refined average
	// never drops below it.
	BaselineFilesPerYear float64

	// FallbackPerYear is multiplied by the declared year count when the start
	// time is unknown or nothing has been produced.
	FallbackPerYear time.Duration

	// PlateauPercent replaces a 100% estimate for a job that is not complete.
	PlateauPercent float64

	// PlateauRemaining is the time remaining reported with PlateauPercent.
	PlateauRemaining time.Duration

	// Separator must follow the 4-digit year at the start of a file name.
	Separator string

	// Include optionally restricts evidence to names matching a doublestar glob.
	Include string
}

// DefaultConfig returns the calibrated defaults.
func DefaultConfig() Config {
	return Config{
		BaselineFilesPerYear: DefaultBaselineFilesPerYear,
		FallbackPerYear:      DefaultFallbackPerYear,
		PlateauPercent:       DefaultPlateauPercent,
		PlateauRemaining:     DefaultPlateauRemaining,
		Separator:            DefaultSeparator,
	}
}

// Validate checks that the tunables are usable.
func (c Config) Validate() error {
	if c.BaselineFilesPerYear <= 0 {
		return fmt.Errorf("baseline files per year must be > 0")
	}
	if c.FallbackPerYear < 0 {
		return fmt.Errorf("fallback per year must be >= 0")
	}
	if c.PlateauPercent <= 0 || c.PlateauPercent >= 1 {
		return fmt.Errorf("plateau percent must be in (0, 1)")
	}
	if c.PlateauRemaining <= 0 {
		return fmt.Errorf("plateau remaining must be > 0")
	}
	if c.Separator == "" {
		return fmt.Errorf("separator is required")
	}
	if c.Include != "" && !doublestar.ValidatePattern(c.Include) {
		return fmt.Errorf("invalid include pattern %q", c.Include)
	}
	return nil
}

// DirLister lists the entry names of a directory.
//
// A missing directory is reported as an empty listing, not an error.
type DirLister interface {
	ListDir(ctx context.Context, dir string) ([]string, error)
}

// Snapshot is the estimator output.
type Snapshot struct {
	// Years are the distinct years observed, ascending.
	Years []int `json:"years"`

	// Count is the total number of evidence files.
	Count int `json:"count"`

	// EstimatedPercentComplete is a fraction in [0, 1].
	EstimatedPercentComplete float64 `json:"estimatedPercentComplete"`

	// TimeRemaining is never negative.
	TimeRemaining time.Duration `json:"-"`
}

// TimeRemainingMillis returns TimeRemaining in (fractional) milliseconds.
func (s Snapshot) TimeRemainingMillis() float64 {
	return float64(s.TimeRemaining) / float64(time.Millisecond)
}

// Estimator computes Snapshots. It is safe for concurrent use.
type Estimator struct {
	cfg Config
	now func() time.Time
}

// Option configures an Estimator.
type Option func(*Estimator)

// WithClock overrides the time source used for elapsed-time extrapolation.
func WithClock(now func() time.Time) Option {
	return func(e *Estimator) {
		if now != nil {
			e.now = now
		}
	}
}

// New creates an Estimator.
func New(cfg Config, opts ...Option) (*Estimator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("estimator config: %w", err)
	}
	e := &Estimator{cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Config returns the estimator tunables.
func (e *Estimator) Config() Config {
	return e.cfg
}

// Inventory parses directory entry names with the estimator's naming rules.
func (e *Estimator) Inventory(names []string) Inventory {
	return NewInventory(names, e.cfg.Separator, e.cfg.Include)
}

// Estimate lists dir and estimates progress for a job declared over
// [startYear, endYear] that started at started (nil if unknown).
//
// complete is the authoritative completion signal; it only decides whether a
// 100% estimate is trusted.
func (e *Estimator) Estimate(ctx context.Context, lister DirLister, dir string, startYear, endYear int, started *time.Time, complete bool) (Snapshot, error) {
	names, err := lister.ListDir(ctx, dir)
	if err != nil {
		return Snapshot{}, fmt.Errorf("list %s: %w", dir, err)
	}
	return e.FromInventory(e.Inventory(names), startYear, endYear, started, complete), nil
}

// FromInventory is the pure estimate over already-collected evidence.
func (e *Estimator) FromInventory(inv Inventory, startYear, endYear int, started *time.Time, complete bool) Snapshot {
	if inv.Empty() {
		return Snapshot{Years: []int{}}
	}

	years := inv.Years()
	totalYears := endYear - startYear + 1
	observed := float64(inv.Count())
	baseline := e.cfg.BaselineFilesPerYear

	estimatedTotal := baseline * float64(totalYears)
	if len(years) > 1 {
		// The most recent year is in progress; earlier ones are complete.
		current := years[len(years)-1]
		inCurrent := float64(inv.CountFor(current))
		completedYears := float64(len(years) - 1)

		avg := math.Max((observed-inCurrent)/completedYears, baseline)
		remainingCurrent := math.Max(avg-inCurrent, 0)
		unstartedYears := math.Max(float64(endYear-current), 0)

		estimatedTotal = observed + remainingCurrent + avg*unstartedYears
	}

	percent := 0.0
	if estimatedTotal > 0 {
		percent = observed / estimatedTotal
	}

	snap := Snapshot{Years: years, Count: inv.Count()}
	switch {
	case percent >= 1 && !complete:
		snap.EstimatedPercentComplete = e.cfg.PlateauPercent
		snap.TimeRemaining = e.cfg.PlateauRemaining
	case percent >= 1:
		snap.EstimatedPercentComplete = 1
	case started != nil && !started.IsZero() && percent > 0:
		snap.EstimatedPercentComplete = percent
		elapsed := e.now().Sub(*started)
		if elapsed > 0 {
			snap.TimeRemaining = durationOf(float64(elapsed)/percent - float64(elapsed))
		}
	default:
		snap.EstimatedPercentComplete = percent
		if totalYears > 0 {
			snap.TimeRemaining = e.cfg.FallbackPerYear * time.Duration(totalYears)
		}
	}
	return snap
}

func durationOf(ns float64) time.Duration {
	switch {
	case ns <= 0 || math.IsNaN(ns):
		return 0
	case ns >= math.MaxInt64:
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(ns)
}
