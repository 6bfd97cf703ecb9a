package segment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/veredalabs/segmenta/internal/model"
)

// Source supplies client records from the external data store. Reads are
// finite and restartable per invocation.
type Source interface {
	Profiles(ctx context.Context) ([]string, error)
	ClientsByProfile(ctx context.Context, profile string) ([]model.ClientRecord, error)
}

// Outcome is the per-profile entry of the batch summary report: either a
// completed result or the profile-scoped failure that skipped it.
type Outcome struct {
	Profile  string
	Result   *Result
	Err      error
	Duration time.Duration
}

// Failed reports whether the profile was skipped.
func (o Outcome) Failed() bool { return o.Err != nil }

// Runner processes a set of profiles as independent pipeline executions,
// in parallel, recovering profile-scoped failures and reporting them.
type Runner struct {
	source   Source
	pipeline *Pipeline
	profiles []string // empty means all profiles in the source
	workers  int
	timeout  time.Duration
	logger   *slog.Logger

	succeeded metric.Int64Counter
	skipped   metric.Int64Counter
	duration  metric.Float64Histogram
}

// NewRunner builds a batch runner. profiles may be empty to process every
// distinct profile the source reports. timeout of zero disables the
// per-profile wall-clock budget.
func NewRunner(source Source, pipeline *Pipeline, profiles []string, workers int, timeout time.Duration, logger *slog.Logger) *Runner {
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	meter := otel.Meter("github.com/veredalabs/segmenta/internal/segment")
	succeeded, _ := meter.Int64Counter("segmenta.profiles.succeeded")
	skipped, _ := meter.Int64Counter("segmenta.profiles.skipped")
	duration, _ := meter.Float64Histogram("segmenta.profile.duration",
		metric.WithUnit("s"))

	return &Runner{
		source:    source,
		pipeline:  pipeline,
		profiles:  profiles,
		workers:   workers,
		timeout:   timeout,
		logger:    logger,
		succeeded: succeeded,
		skipped:   skipped,
		duration:  duration,
	}
}

// Run executes the pipeline for every selected profile. Profile-scoped
// failures become Outcomes; any other error aborts the whole batch.
// Outcomes are ordered by profile name regardless of completion order.
func (r *Runner) Run(ctx context.Context) ([]Outcome, error) {
	profiles := r.profiles
	if len(profiles) == 0 {
		var err error
		profiles, err = r.source.Profiles(ctx)
		if err != nil {
			return nil, fmt.Errorf("batch: list profiles: %w", err)
		}
	}
	if len(profiles) == 0 {
		return nil, nil
	}

	outcomes := make([]Outcome, len(profiles))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for i, profile := range profiles {
		g.Go(func() error {
			outcome, err := r.runProfile(gctx, profile)
			if err != nil {
				return err
			}
			outcomes[i] = outcome
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(outcomes, func(i, j int) bool { return outcomes[i].Profile < outcomes[j].Profile })
	r.report(outcomes)
	return outcomes, nil
}

// runProfile executes one profile's pipeline under its wall-clock budget.
// Profile-scoped errors are folded into the Outcome; anything else is
// returned and aborts the batch.
func (r *Runner) runProfile(ctx context.Context, profile string) (Outcome, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	start := time.Now()
	records, err := r.source.ClientsByProfile(ctx, profile)
	if err != nil {
		return Outcome{}, fmt.Errorf("batch: load clients for profile %q: %w", profile, err)
	}

	result, err := r.pipeline.Run(ctx, profile, records)
	elapsed := time.Since(start)
	r.duration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(attribute.String("profile", profile)))

	switch {
	case err == nil:
		r.succeeded.Add(ctx, 1)
		return Outcome{Profile: profile, Result: result, Duration: elapsed}, nil
	case IsProfileError(err) || errors.Is(err, context.DeadlineExceeded):
		r.skipped.Add(ctx, 1)
		return Outcome{Profile: profile, Err: err, Duration: elapsed}, nil
	default:
		return Outcome{}, fmt.Errorf("batch: profile %q: %w", profile, err)
	}
}

// report logs the batch summary: per profile, success with (chosen k,
// quality score) or the failure kind and reason.
func (r *Runner) report(outcomes []Outcome) {
	succeeded := 0
	for _, o := range outcomes {
		if o.Failed() {
			r.logger.Warn("profile skipped",
				"profile", o.Profile,
				"reason", o.Err.Error(),
				"duration", o.Duration,
			)
			continue
		}
		succeeded++
		r.logger.Info("profile completed",
			"profile", o.Profile,
			"run_id", o.Result.Run.ID,
			"chosen_k", o.Result.Run.Metrics.ChosenK,
			"silhouette", o.Result.Run.Metrics.Silhouette,
			"duration", o.Duration,
		)
	}
	r.logger.Info("batch finished", "profiles", len(outcomes), "succeeded", succeeded, "skipped", len(outcomes)-succeeded)
}
