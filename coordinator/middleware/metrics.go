package middleware

import (
	"context"
	"time"

	"github.com/absmach/fedasync/coordinator"
	"github.com/absmach/fedasync/pkg/fl"
	"github.com/absmach/fedasync/pkg/participant"
	"github.com/absmach/fedasync/pkg/prometheus"
	"github.com/go-kit/kit/metrics"
)

var _ coordinator.Service = (*metricsMiddleware)(nil)

type metricsMiddleware struct {
	counter metrics.Counter
	latency metrics.Histogram
	rounds  prometheus.RoundMetrics
	svc     coordinator.Service
}

func Metrics(counter metrics.Counter, latency metrics.Histogram, rounds prometheus.RoundMetrics, svc coordinator.Service) coordinator.Service {
	return &metricsMiddleware{
		counter: counter,
		latency: latency,
		rounds:  rounds,
		svc:     svc,
	}
}

func (mm *metricsMiddleware) Run(ctx context.Context) (fl.RunSummary, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "run").Add(1)
		mm.latency.With("method", "run").Observe(time.Since(begin).Seconds())
	}(time.Now())

	status, err := mm.svc.Status(ctx)
	if err != nil {
		return fl.RunSummary{}, err
	}

	summary, err := mm.svc.Run(ctx)
	if err != nil {
		return summary, err
	}
	// Rounds stepped before this call were observed by Step.
	for _, report := range summary.Reports {
		if report.Round > status.Round {
			mm.observe(report)
		}
	}

	return summary, nil
}

func (mm *metricsMiddleware) Step(ctx context.Context) (fl.RoundReport, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "step").Add(1)
		mm.latency.With("method", "step").Observe(time.Since(begin).Seconds())
	}(time.Now())

	report, err := mm.svc.Step(ctx)
	if err != nil {
		return report, err
	}
	mm.observe(report)

	return report, nil
}

func (mm *metricsMiddleware) observe(report fl.RoundReport) {
	mm.rounds.Quorum.Set(float64(report.Quorum))
	mm.rounds.Admitted.Add(float64(len(report.Admitted)))
	mm.rounds.Forced.Add(float64(report.Forced))
	mm.rounds.Metric.Set(report.Metric)
	for _, a := range report.Admitted {
		mm.rounds.Staleness.Observe(a.Weight)
	}
}

func (mm *metricsMiddleware) Status(ctx context.Context) (coordinator.Status, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "status").Add(1)
		mm.latency.With("method", "status").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.Status(ctx)
}

func (mm *metricsMiddleware) GetRound(ctx context.Context, round int) (fl.RoundReport, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "get-round").Add(1)
		mm.latency.With("method", "get-round").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.GetRound(ctx, round)
}

func (mm *metricsMiddleware) ListRounds(ctx context.Context, offset, limit uint64) (coordinator.RoundPage, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "list-rounds").Add(1)
		mm.latency.With("method", "list-rounds").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.ListRounds(ctx, offset, limit)
}

func (mm *metricsMiddleware) ListParticipants(ctx context.Context, offset, limit uint64) (coordinator.ParticipantPage, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "list-participants").Add(1)
		mm.latency.With("method", "list-participants").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.ListParticipants(ctx, offset, limit)
}

func (mm *metricsMiddleware) GetParticipant(ctx context.Context, id string) (participant.Participant, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "get-participant").Add(1)
		mm.latency.With("method", "get-participant").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.GetParticipant(ctx, id)
}

func (mm *metricsMiddleware) GlobalModel(ctx context.Context) (fl.Model, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "global-model").Add(1)
		mm.latency.With("method", "global-model").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.GlobalModel(ctx)
}
