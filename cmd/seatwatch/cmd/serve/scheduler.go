package serve

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/agentstation/seatwatch"
	"github.com/agentstation/seatwatch/pkg/constants"
	"github.com/agentstation/seatwatch/pkg/errors"
)

// Scheduler triggers a scrape cycle for every semester and prefix on a cron
// schedule. A tick that fires while the previous one is still running is
// skipped.
type Scheduler struct {
	c         *cron.Cron
	pipeline  *seatwatch.Pipeline
	source    seatwatch.Source
	semesters []string
	prefixes  []string
	logger    *zerolog.Logger
	now       func() time.Time
}

// parser accepts five-field specs, an optional seconds field and
// descriptors such as @every 5m.
var parser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// NewScheduler validates spec and prepares the schedule. It does not start.
func NewScheduler(spec string, p *seatwatch.Pipeline, src seatwatch.Source, semesters, prefixes []string, logger *zerolog.Logger) (*Scheduler, error) {
	if _, err := parser.Parse(spec); err != nil {
		return nil, errors.NewConfigError("schedule", "invalid cron spec "+spec, err)
	}
	s := &Scheduler{
		pipeline:  p,
		source:    src,
		semesters: semesters,
		prefixes:  prefixes,
		logger:    logger,
		now:       time.Now,
	}
	cl := cronLogger{logger}
	s.c = cron.New(
		cron.WithParser(parser),
		cron.WithLocation(time.UTC),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	if _, err := s.c.AddFunc(spec, func() { s.Tick(context.Background()) }); err != nil {
		return nil, errors.NewConfigError("schedule", "could not schedule "+spec, err)
	}
	return s, nil
}

// Start begins triggering in the background.
func (s *Scheduler) Start() {
	s.c.Start()
	for _, e := range s.c.Entries() {
		s.logger.Info().Time("next", e.Next).Msg("Scheduler started")
	}
}

// Stop stops triggering and waits for a running tick or ctx.
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.c.Stop().Done():
	case <-ctx.Done():
	}
}

// Tick runs one batch. The batch timestamp is the tick time truncated to
// the minute, so a duplicate trigger in the same minute is skipped by the
// idempotency guard.
func (s *Scheduler) Tick(ctx context.Context) []seatwatch.CycleReport {
	ctx, cancel := context.WithTimeout(ctx, constants.CycleTimeout)
	defer cancel()

	ts := s.now().UTC().Truncate(time.Minute)
	var all []seatwatch.CycleReport
	for _, semester := range s.semesters {
		reports, err := s.pipeline.RunAll(ctx, s.source, semester, s.prefixes, ts)
		all = append(all, reports...)
		if err != nil {
			s.logger.Error().Err(err).Str("semester", semester).Time("batch", ts).Msg("Scheduled cycle failed")
		}
	}
	return all
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	logger *zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug().Fields(keysAndValues).Msg("cron: " + msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg("cron: " + msg)
}
