package coordinator

import (
	"context"
	"log/slog"

	"github.com/absmach/fedasync/pkg/fl"
	"github.com/absmach/fedasync/pkg/mqtt"
)

// Notifier announces published global models to participants and observers.
type Notifier interface {
	RoundCompleted(ctx context.Context, report fl.RoundReport) error
	RunCompleted(ctx context.Context, summary fl.RunSummary) error
}

type mqttNotifier struct {
	pubsub mqtt.PubSub
}

func NewMQTTNotifier(pubsub mqtt.PubSub) Notifier {
	return &mqttNotifier{pubsub: pubsub}
}

func (n *mqttNotifier) RoundCompleted(ctx context.Context, report fl.RoundReport) error {
	msg := map[string]any{
		"run_id":        report.RunID,
		"round":         report.Round,
		"model_version": report.ModelVersion,
		"quorum":        report.Quorum,
		"admitted":      report.AdmittedIDs(),
		"metric":        report.Metric,
		"completed_at":  report.CompletedAt,
	}

	return n.pubsub.Publish(ctx, mqtt.RoundsCompletedTopic, msg)
}

func (n *mqttNotifier) RunCompleted(ctx context.Context, summary fl.RunSummary) error {
	msg := map[string]any{
		"run_id":        summary.RunID,
		"rounds":        summary.Rounds,
		"best_round":    summary.BestRound,
		"best_metric":   summary.BestMetric,
		"model_version": summary.ModelVersion,
	}

	return n.pubsub.Publish(ctx, mqtt.RunCompletedTopic, msg)
}

type noopNotifier struct{}

func NewNoopNotifier() Notifier {
	return noopNotifier{}
}

func (noopNotifier) RoundCompleted(context.Context, fl.RoundReport) error {
	return nil
}

func (noopNotifier) RunCompleted(context.Context, fl.RunSummary) error {
	return nil
}

// SubscribeControl lets operators drive the run over MQTT. A "step" command
// executes one round and a "run" command executes the remaining rounds, both
// in the background.
func SubscribeControl(ctx context.Context, pubsub mqtt.PubSub, svc Service, logger *slog.Logger) error {
	return pubsub.Subscribe(ctx, mqtt.ControlTopic, HandleControl(ctx, svc, logger))
}

func HandleControl(ctx context.Context, svc Service, logger *slog.Logger) mqtt.Handler {
	return func(msg mqtt.Message) error {
		command, _ := msg.Payload["command"].(string)
		switch command {
		case "step":
			go func() {
				if _, err := svc.Step(ctx); err != nil {
					logger.WarnContext(ctx, "control step failed", slog.Any("error", err))
				}
			}()
		case "run":
			go func() {
				if _, err := svc.Run(ctx); err != nil {
					logger.WarnContext(ctx, "control run failed", slog.Any("error", err))
				}
			}()
		default:
			logger.WarnContext(ctx, "ignoring unknown control command", slog.String("command", command))
		}

		return nil
	}
}
