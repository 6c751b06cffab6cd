package middleware

import (
	"context"

	"github.com/absmach/fedasync/coordinator"
	"github.com/absmach/fedasync/pkg/fl"
	"github.com/absmach/fedasync/pkg/participant"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var _ coordinator.Service = (*tracing)(nil)

type tracing struct {
	tracer trace.Tracer
	svc    coordinator.Service
}

func Tracing(tracer trace.Tracer, svc coordinator.Service) coordinator.Service {
	return &tracing{tracer, svc}
}

func (tm *tracing) Run(ctx context.Context) (resp fl.RunSummary, err error) {
	ctx, span := tm.tracer.Start(ctx, "run")
	defer func() {
		span.SetAttributes(
			attribute.String("run_id", resp.RunID),
			attribute.Int("rounds", resp.Rounds),
			attribute.Int("model_version", resp.ModelVersion),
		)
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	return tm.svc.Run(ctx)
}

func (tm *tracing) Step(ctx context.Context) (resp fl.RoundReport, err error) {
	ctx, span := tm.tracer.Start(ctx, "step")
	defer func() {
		span.SetAttributes(
			attribute.Int("round", resp.Round),
			attribute.Int("quorum", resp.Quorum),
			attribute.StringSlice("admitted", resp.AdmittedIDs()),
			attribute.Int("model_version", resp.ModelVersion),
		)
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	return tm.svc.Step(ctx)
}

func (tm *tracing) Status(ctx context.Context) (resp coordinator.Status, err error) {
	ctx, span := tm.tracer.Start(ctx, "status")
	defer span.End()

	return tm.svc.Status(ctx)
}

func (tm *tracing) GetRound(ctx context.Context, round int) (resp fl.RoundReport, err error) {
	ctx, span := tm.tracer.Start(ctx, "get-round", trace.WithAttributes(
		attribute.Int("round", round),
	))
	defer span.End()

	return tm.svc.GetRound(ctx, round)
}

func (tm *tracing) ListRounds(ctx context.Context, offset, limit uint64) (resp coordinator.RoundPage, err error) {
	ctx, span := tm.tracer.Start(ctx, "list-rounds", trace.WithAttributes(
		attribute.Int64("offset", int64(offset)),
		attribute.Int64("limit", int64(limit)),
	))
	defer span.End()

	return tm.svc.ListRounds(ctx, offset, limit)
}

func (tm *tracing) ListParticipants(ctx context.Context, offset, limit uint64) (resp coordinator.ParticipantPage, err error) {
	ctx, span := tm.tracer.Start(ctx, "list-participants", trace.WithAttributes(
		attribute.Int64("offset", int64(offset)),
		attribute.Int64("limit", int64(limit)),
	))
	defer span.End()

	return tm.svc.ListParticipants(ctx, offset, limit)
}

func (tm *tracing) GetParticipant(ctx context.Context, id string) (resp participant.Participant, err error) {
	ctx, span := tm.tracer.Start(ctx, "get-participant", trace.WithAttributes(
		attribute.String("id", id),
	))
	defer span.End()

	return tm.svc.GetParticipant(ctx, id)
}

func (tm *tracing) GlobalModel(ctx context.Context) (resp fl.Model, err error) {
	ctx, span := tm.tracer.Start(ctx, "global-model")
	defer span.End()

	return tm.svc.GlobalModel(ctx)
}
