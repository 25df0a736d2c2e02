package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"personal/botkit/src/client"
	"personal/botkit/src/config"
	"personal/botkit/src/gateway"
	"personal/botkit/src/handlers"
	"personal/botkit/src/issue"
	"personal/botkit/src/logging"
)

func newRunCmd(flags *rootFlags) *cobra.Command {
	var watch bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Connect to the gateway and serve handlers until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg, watch)
		},
	}
	cmd.Flags().BoolVarP(&watch, "watch", "w", true, "reload handlers when files change")
	return cmd
}

func run(ctx context.Context, cfg *config.Config, watch bool) error {
	logger := logging.WithComponent("cli")
	reporter := issue.NewDefaultReporter()

	live, err := handlers.NewLive(cfg.ProjectDir, reporter)
	if err != nil {
		return err
	}

	rest := client.New(cfg.Token(), client.WithBaseURL(cfg.APIURL))
	gatewayURL := resolveGateway(ctx, cfg, rest, logger)

	session, err := gateway.NewSession(gateway.Options{
		Credentials:        cfg,
		GatewayURL:         gatewayURL,
		Registry:           live,
		Responder:          rest,
		Issues:             reporter,
		HandlerTimeout:     cfg.HandlerTimeout,
		MaxConnectAttempts: cfg.Reconnect.MaxAttempts,
		InitialBackoff:     cfg.Reconnect.InitialInterval,
		MaxBackoff:         cfg.Reconnect.MaxInterval,
	})
	if err != nil {
		return err
	}
	logger.Info().
		Str(logging.FieldRunID, session.RunID()).
		Str(logging.FieldPath, cfg.ProjectDir).
		Msg("starting bot")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return session.Run(gctx)
	})
	if watch {
		// Hot reload is best effort: the bot keeps serving the handlers it has.
		g.Go(func() error {
			if err := live.Watch(gctx); err != nil {
				logger.Warn().Err(err).Msg("handler watcher stopped")
			}
			return nil
		})
	}
	if cfg.MetricsAddr != "" {
		serveMetrics(gctx, g, cfg.MetricsAddr, logger)
	}
	return g.Wait()
}

// resolveGateway prefers the configured URL, then asks the REST API. The
// lookup is best effort; the default gateway works for unsharded bots.
func resolveGateway(ctx context.Context, cfg *config.Config, rest *client.Client, logger zerolog.Logger) string {
	if cfg.GatewayURL != "" {
		return cfg.GatewayURL
	}
	lookupCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	gw, err := rest.GatewayBot(lookupCtx)
	if err != nil {
		logger.Warn().Err(err).Str(logging.FieldURL, client.DefaultGateway).Msg("gateway lookup failed, using default")
		return client.DefaultGateway
	}
	logger.Debug().
		Str(logging.FieldURL, gw.URL).
		Int("sessions_remaining", gw.SessionStartLimit.Remaining).
		Msg("gateway resolved")
	return gw.URL
}

func serveMetrics(ctx context.Context, g *errgroup.Group, addr string, logger zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g.Go(func() error {
		logger.Info().Str("addr", addr).Msg("metrics listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}
