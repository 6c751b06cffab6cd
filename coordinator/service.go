package coordinator

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	pkgerrors "github.com/absmach/fedasync/pkg/errors"
	"github.com/absmach/fedasync/pkg/fl"
	"github.com/absmach/fedasync/pkg/participant"
	"github.com/absmach/fedasync/pkg/quorum"
	"github.com/absmach/fedasync/pkg/selection"
	"github.com/absmach/fedasync/pkg/staleness"
	"github.com/absmach/fedasync/pkg/storage"
	"github.com/absmach/fedasync/pkg/trainer"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

var _ Service = (*service)(nil)

// pending is a dispatched local execution that has not been admitted yet.
type pending struct {
	participantID string
	dispatchRound int
	result        fl.LocalResult
	remaining     time.Duration
	failed        bool
}

type best struct {
	round   int
	metric  float64
	version int
}

type service struct {
	cfg          Config
	runID        string
	registry     *participant.Registry
	policy       selection.Policy
	estimator    quorum.Estimator
	staleness    staleness.Model
	aggregator   fl.Aggregator
	trainer      trainer.Trainer
	rounds       storage.RoundRepository
	participants storage.ParticipantRepository
	checkpoints  *fl.PersistentStorage
	notifier     Notifier
	logger       *slog.Logger

	// runMu serialises rounds. mu guards the fields below it for readers.
	runMu sync.Mutex

	mu            sync.RWMutex
	phase         Phase
	round         int
	model         fl.Model
	backlog       []*pending
	timeOfRound   time.Duration
	best          best
	communication int
	reports       []fl.RoundReport
	err           error
}

// NewService bootstraps the participant population and publishes the initial
// global model as version 0. checkpoints may be nil, and a nil notifier
// disables notifications.
func NewService(
	cfg Config,
	initial fl.Params,
	t trainer.Trainer,
	rounds storage.RoundRepository,
	participants storage.ParticipantRepository,
	checkpoints *fl.PersistentStorage,
	notifier Notifier,
	logger *slog.Logger,
) (Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if t == nil || rounds == nil || participants == nil {
		return nil, fmt.Errorf("%w: trainer and repositories are required", pkgerrors.ErrInvalidConfig)
	}
	if len(initial) == 0 {
		return nil, fmt.Errorf("%w: initial model is empty", pkgerrors.ErrInvalidConfig)
	}

	policy, err := selection.New(cfg.Selection, cfg.Seed, cfg.Bins)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", pkgerrors.ErrInvalidConfig, err)
	}
	estimator, err := quorum.New(cfg.Quorum, cfg.AggClientsPerRound)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", pkgerrors.ErrInvalidConfig, err)
	}
	weights, err := staleness.New(cfg.Staleness)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", pkgerrors.ErrInvalidConfig, err)
	}
	if notifier == nil {
		notifier = NewNoopNotifier()
	}
	if cfg.MetricKey == "" {
		cfg.MetricKey = "accuracy"
	}
	if cfg.MetricGoal == "" {
		cfg.MetricGoal = Maximize
	}

	svc := &service{
		cfg:          cfg,
		runID:        uuid.NewString(),
		registry:     participant.NewRegistry(cfg.NumClients),
		policy:       policy,
		estimator:    estimator,
		staleness:    weights,
		aggregator:   fl.NewWeightedAggregator(cfg.SampleCount, cfg.Normalization),
		trainer:      t,
		rounds:       rounds,
		participants: participants,
		checkpoints:  checkpoints,
		notifier:     notifier,
		logger:       logger,
		phase:        Idle,
	}
	svc.model = fl.Model{
		Version:  0,
		Params:   initial.Clone(),
		Metadata: map[string]any{"run_id": svc.runID},
	}

	if checkpoints != nil {
		if err := checkpoints.SaveModel(svc.model); err != nil {
			return nil, err
		}
	}

	return svc, nil
}

func (svc *service) Run(ctx context.Context) (fl.RunSummary, error) {
	for {
		if err := ctx.Err(); err != nil {
			return fl.RunSummary{}, err
		}

		svc.mu.RLock()
		done, runErr := svc.phase == Done, svc.err
		svc.mu.RUnlock()
		if runErr != nil {
			return fl.RunSummary{}, fmt.Errorf("run aborted: %w", runErr)
		}
		if done {
			return svc.summary(), nil
		}

		if _, err := svc.Step(ctx); err != nil && !errors.Is(err, pkgerrors.ErrRunComplete) {
			return fl.RunSummary{}, err
		}
	}
}

func (svc *service) Step(ctx context.Context) (fl.RoundReport, error) {
	svc.runMu.Lock()
	defer svc.runMu.Unlock()

	if err := ctx.Err(); err != nil {
		return fl.RoundReport{}, err
	}
	// A started round always completes. Cancelling ctx only keeps the next
	// round from starting.
	ctx = context.WithoutCancel(ctx)

	svc.mu.Lock()
	switch {
	case svc.err != nil:
		err := svc.err
		svc.mu.Unlock()

		return fl.RoundReport{}, fmt.Errorf("run aborted: %w", err)
	case svc.phase == Done:
		svc.mu.Unlock()

		return fl.RoundReport{}, pkgerrors.ErrRunComplete
	case svc.phase == Idle:
		if err := svc.transition(Dispatching); err != nil {
			svc.mu.Unlock()

			return fl.RoundReport{}, err
		}
	}
	svc.round++
	round := svc.round
	svc.carryOver(round)
	global := svc.model.Params
	svc.mu.Unlock()

	report, err := svc.executeRound(ctx, round, global)
	if err != nil {
		svc.abort(ctx, err)

		return fl.RoundReport{}, err
	}
	svc.record(ctx, report)

	return report, nil
}

// carryOver charges every result dispatched in an earlier round with the time
// the previous round took.
func (svc *service) carryOver(round int) {
	for _, p := range svc.backlog {
		if p.dispatchRound < round {
			p.remaining -= svc.timeOfRound
		}
	}
}

func (svc *service) executeRound(ctx context.Context, round int, global fl.Params) (fl.RoundReport, error) {
	selected, err := svc.dispatch(ctx, round, global)
	if err != nil {
		return fl.RoundReport{}, err
	}

	report := fl.RoundReport{
		RunID:    svc.runID,
		Round:    round,
		Selected: selected,
	}

	candidates := svc.candidates()
	if len(candidates) == 0 {
		return svc.skipRound(report)
	}

	times := make([]float64, len(candidates))
	for i, c := range candidates {
		times[i] = c.remaining.Seconds()
	}
	q, err := svc.estimator.Estimate(times)
	if err != nil {
		return fl.RoundReport{}, err
	}

	cutoff := max(0, candidates[q-1].remaining)
	admitted := candidates[:q:q]
	forced := 0
	for _, c := range candidates[q:] {
		if c.remaining-cutoff <= 0 {
			admitted = append(admitted, c)
			forced++
			svc.logger.InfoContext(ctx, "Forced admission of local result",
				slog.String("participant_id", c.participantID),
				slog.Int("round", round),
				slog.String("remaining", c.remaining.String()),
			)
		}
	}

	svc.mu.Lock()
	err = svc.transition(Aggregating)
	svc.mu.Unlock()
	if err != nil {
		return fl.RoundReport{}, err
	}

	results := make([]fl.WeightedResult, len(admitted))
	admissions := make([]fl.Admission, len(admitted))
	for i, c := range admitted {
		w := svc.staleness.Weight(c.dispatchRound, round)
		results[i] = fl.WeightedResult{
			ParticipantID: c.participantID,
			Result:        c.result,
			Weight:        w,
		}
		admissions[i] = fl.Admission{
			ParticipantID: c.participantID,
			DispatchRound: c.dispatchRound,
			Weight:        w,
			Remaining:     c.remaining,
			Forced:        i >= q,
		}
	}

	begin := time.Now()
	params, metrics, err := svc.aggregator.Aggregate(results)
	if err != nil {
		return fl.RoundReport{}, fmt.Errorf("aggregate round %d: %w", round, err)
	}
	duration := time.Since(begin)

	for _, a := range admissions {
		if err := svc.registry.MarkAdmitted(a.ParticipantID); err != nil {
			return fl.RoundReport{}, err
		}
		if err := svc.registry.Release(a.ParticipantID); err != nil {
			return fl.RoundReport{}, err
		}
	}

	svc.mu.Lock()
	defer svc.mu.Unlock()

	svc.model = fl.Model{
		Version: svc.model.Version + 1,
		Round:   round,
		Params:  params,
		Metadata: map[string]any{
			"run_id":   svc.runID,
			"admitted": len(admissions),
		},
	}
	svc.removeAdmitted(admissions)
	svc.timeOfRound = cutoff + duration
	svc.communication += len(admissions) * params.NumParams()

	metric := metrics[svc.cfg.MetricKey]
	if svc.best.round == 0 || svc.better(metric) {
		svc.best = best{round: round, metric: metric, version: svc.model.Version}
	}

	report.Quorum = q
	report.Admitted = admissions
	report.Forced = forced
	report.Outstanding = len(svc.backlog)
	report.Metrics = metrics
	report.Metric = metric
	report.AggregationDuration = duration
	report.TimeOfRound = svc.timeOfRound
	report.Communication = svc.communication
	report.ModelVersion = svc.model.Version
	report.CompletedAt = time.Now()

	if err := svc.finishRound(round, report); err != nil {
		return fl.RoundReport{}, err
	}

	return report, nil
}

// dispatch selects idle participants, trains each of them concurrently on its
// own copy of the global model and queues the results.
func (svc *service) dispatch(ctx context.Context, round int, global fl.Params) ([]string, error) {
	idle := svc.registry.ListIdle()
	candidates := make([]selection.Candidate, 0, len(idle))
	for _, p := range idle {
		params, err := svc.registry.LocalParams(p.ID)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, selection.Candidate{Participant: p, Params: params})
	}

	chosen, err := svc.policy.Select(round, candidates, svc.cfg.ClientsPerRound, global)
	if err != nil {
		return nil, err
	}

	ids := make([]string, len(chosen))
	for i, p := range chosen {
		if err := svc.registry.MarkDispatched(p.ID, round); err != nil {
			return nil, err
		}
		ids[i] = p.ID
	}

	results := make([]*pending, len(ids))
	var g errgroup.Group
	for i, id := range ids {
		local := global.Clone()
		g.Go(func() error {
			p := &pending{participantID: id, dispatchRound: round}
			res, err := svc.trainer.Train(ctx, id, local)
			if err != nil {
				p.failed = true
				svc.logger.WarnContext(ctx, "Local training failed",
					slog.String("participant_id", id),
					slog.Int("round", round),
					slog.Any("error", err),
				)
			} else {
				p.result = res
				p.remaining = res.CompletionTime
			}
			results[i] = p

			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, p := range results {
		if p.failed {
			continue
		}
		if err := svc.registry.SetLocalParams(p.participantID, p.result.Params); err != nil {
			return nil, err
		}
	}

	svc.mu.Lock()
	defer svc.mu.Unlock()

	svc.backlog = append(svc.backlog, results...)
	if err := svc.transition(Collecting); err != nil {
		return nil, err
	}

	return ids, nil
}

// candidates returns the outstanding results that can still be admitted,
// fastest first. Ties keep dispatch order.
func (svc *service) candidates() []*pending {
	svc.mu.RLock()
	defer svc.mu.RUnlock()

	ret := make([]*pending, 0, len(svc.backlog))
	for _, p := range svc.backlog {
		if !p.failed {
			ret = append(ret, p)
		}
	}
	slices.SortStableFunc(ret, func(a, b *pending) int {
		return cmp.Compare(a.remaining, b.remaining)
	})

	return ret
}

// skipRound closes a round in which nothing could be admitted. The global
// model is left untouched.
func (svc *service) skipRound(report fl.RoundReport) (fl.RoundReport, error) {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	svc.timeOfRound = 0
	report.Outstanding = len(svc.backlog)
	report.Communication = svc.communication
	report.ModelVersion = svc.model.Version
	report.CompletedAt = time.Now()

	if err := svc.finishRound(report.Round, report); err != nil {
		return fl.RoundReport{}, err
	}

	return report, nil
}

// finishRound moves the run to the next round or ends it. The caller holds
// the write lock.
func (svc *service) finishRound(round int, report fl.RoundReport) error {
	next := Dispatching
	if round >= svc.cfg.MaxRound {
		next = Done
	}
	if err := svc.transition(next); err != nil {
		return err
	}
	svc.reports = append(svc.reports, report)

	return nil
}

func (svc *service) removeAdmitted(admissions []fl.Admission) {
	ids := make(map[string]struct{}, len(admissions))
	for _, a := range admissions {
		ids[a.ParticipantID] = struct{}{}
	}
	svc.backlog = slices.DeleteFunc(svc.backlog, func(p *pending) bool {
		_, ok := ids[p.participantID]

		return ok && !p.failed
	})
}

func (svc *service) better(metric float64) bool {
	if svc.cfg.MetricGoal == Minimize {
		return metric < svc.best.metric
	}

	return metric > svc.best.metric
}

// record persists and announces a completed round. Sink failures are logged
// and never fail the round.
func (svc *service) record(ctx context.Context, report fl.RoundReport) {
	if err := svc.rounds.Save(ctx, report); err != nil {
		svc.logger.WarnContext(ctx, "Failed to save round report", slog.Int("round", report.Round), slog.Any("error", err))
	}

	if svc.checkpoints != nil {
		if err := svc.checkpoints.SaveRound(report); err != nil {
			svc.logger.WarnContext(ctx, "Failed to write round checkpoint", slog.Int("round", report.Round), slog.Any("error", err))
		}
		if len(report.Admitted) > 0 {
			model := svc.snapshot()
			if err := svc.checkpoints.SaveModel(model); err != nil {
				svc.logger.WarnContext(ctx, "Failed to write model checkpoint", slog.Int("version", model.Version), slog.Any("error", err))
			}
		}
	}

	if err := svc.notifier.RoundCompleted(ctx, report); err != nil {
		svc.logger.WarnContext(ctx, "Failed to publish round completion", slog.Int("round", report.Round), slog.Any("error", err))
	}

	svc.mu.RLock()
	done := svc.phase == Done
	svc.mu.RUnlock()
	if done {
		svc.finishRun(ctx)
	}
}

func (svc *service) finishRun(ctx context.Context) {
	if err := svc.participants.Save(ctx, svc.runID, svc.registry.Summaries()); err != nil {
		svc.logger.WarnContext(ctx, "Failed to save participant summaries", slog.Any("error", err))
	}

	summary := svc.summary()
	if err := svc.notifier.RunCompleted(ctx, summary); err != nil {
		svc.logger.WarnContext(ctx, "Failed to publish run completion", slog.Any("error", err))
	}
	svc.logger.InfoContext(ctx, "Run completed",
		slog.String("run_id", summary.RunID),
		slog.Int("rounds", summary.Rounds),
		slog.Int("best_round", summary.BestRound),
		slog.Float64("best_metric", summary.BestMetric),
	)
}

func (svc *service) abort(ctx context.Context, err error) {
	svc.mu.Lock()
	svc.err = err
	svc.phase = Done
	svc.mu.Unlock()

	svc.logger.ErrorContext(ctx, "Run aborted", slog.String("run_id", svc.runID), slog.Any("error", err))
}

func (svc *service) summary() fl.RunSummary {
	svc.mu.RLock()
	defer svc.mu.RUnlock()

	return fl.RunSummary{
		RunID:         svc.runID,
		Rounds:        svc.round,
		BestRound:     svc.best.round,
		BestMetric:    svc.best.metric,
		BestVersion:   svc.best.version,
		Communication: svc.communication,
		ModelVersion:  svc.model.Version,
		Reports:       slices.Clone(svc.reports),
	}
}

func (svc *service) Status(_ context.Context) (Status, error) {
	idle := len(svc.registry.ListIdle())

	svc.mu.RLock()
	defer svc.mu.RUnlock()

	status := Status{
		RunID:         svc.runID,
		Phase:         svc.phase,
		Round:         svc.round,
		MaxRound:      svc.cfg.MaxRound,
		ModelVersion:  svc.model.Version,
		Outstanding:   len(svc.backlog),
		Idle:          idle,
		BestRound:     svc.best.round,
		BestMetric:    svc.best.metric,
		BestVersion:   svc.best.version,
		Communication: svc.communication,
	}
	if svc.err != nil {
		status.Error = svc.err.Error()
	}

	return status, nil
}

func (svc *service) GetRound(ctx context.Context, round int) (fl.RoundReport, error) {
	return svc.rounds.Get(ctx, svc.runID, round)
}

func (svc *service) ListRounds(ctx context.Context, offset, limit uint64) (RoundPage, error) {
	reports, total, err := svc.rounds.List(ctx, svc.runID, offset, limit)
	if err != nil {
		return RoundPage{}, err
	}

	return RoundPage{
		Offset: offset,
		Limit:  limit,
		Total:  total,
		Rounds: reports,
	}, nil
}

func (svc *service) ListParticipants(_ context.Context, offset, limit uint64) (ParticipantPage, error) {
	page := ParticipantPage{
		Offset:       offset,
		Limit:        limit,
		Total:        uint64(svc.registry.Len()),
		Participants: []participant.Participant{},
	}
	if offset >= page.Total {
		return page, nil
	}

	all := svc.registry.List()
	end := offset + min(limit, uint64(len(all))-offset)
	page.Participants = all[offset:end]

	return page, nil
}

func (svc *service) GetParticipant(_ context.Context, id string) (participant.Participant, error) {
	return svc.registry.Get(id)
}

func (svc *service) GlobalModel(_ context.Context) (fl.Model, error) {
	return svc.snapshot(), nil
}

// snapshot returns an independent copy of the published model.
func (svc *service) snapshot() fl.Model {
	svc.mu.RLock()
	defer svc.mu.RUnlock()

	model := svc.model
	model.Params = svc.model.Params.Clone()
	model.Metadata = maps.Clone(svc.model.Metadata)

	return model
}
