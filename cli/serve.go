package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/absmach/fedasync/coordinator"
	"github.com/absmach/fedasync/coordinator/api"
	"github.com/absmach/fedasync/pkg/server"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func NewServeCmd() *cobra.Command {
	var autoRun bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the scheduler over HTTP",
		Long: `Serve the scheduler HTTP API. Rounds are driven with POST /rounds, over the
MQTT control topic when enabled, or all at once with --run.`,
		Run: func(cmd *cobra.Command, _ []string) {
			cfg, err := loadConfig()
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			g, ctx := errgroup.WithContext(ctx)

			n, err := bootstrap(ctx, cfg)
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			defer n.close(context.Background())
			logger := n.logger

			if n.pubsub != nil && cfg.MQTT.Control {
				if err := coordinator.SubscribeControl(ctx, n.pubsub, n.svc, logger); err != nil {
					logErrorCmd(*cmd, fmt.Errorf("failed to subscribe to control topic: %w", err))

					return
				}
			}

			hs := server.NewServer(svcName, cfg.HTTP, api.MakeHandler(n.svc, logger, cfg.InstanceID), logger)

			g.Go(func() error {
				return hs.Start()
			})

			if autoRun {
				g.Go(func() error {
					if _, err := n.svc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
						return err
					}

					return nil
				})
			}

			g.Go(func() error {
				return server.StopSignalHandler(ctx, cancel, logger, svcName, hs)
			})

			if err := g.Wait(); err != nil {
				logger.Error(fmt.Sprintf("%s service exited with error: %s", svcName, err), slog.String("instance_id", cfg.InstanceID))
			}
		},
	}

	cmd.Flags().BoolVar(&autoRun, "run", false, "Execute every round in the background once serving")

	return cmd
}
