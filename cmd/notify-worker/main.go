// Command notify-worker consumes order lifecycle events and delivers the
// customer notifications.
package main

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/ruxstar-pod/internal/notify"
	"github.com/xenking/ruxstar-pod/pkg/health"
)

func main() {
	app.Run(func(ctx context.Context, lg *zap.Logger, _ *app.Telemetry) error {
		cfg, err := LoadConfig()
		if err != nil {
			return err
		}
		return run(zctx.Base(ctx, lg), lg, cfg)
	})
}

func run(ctx context.Context, lg *zap.Logger, cfg *Config) error {
	readers := map[string]notify.MessageReader{
		cfg.CreatedTopic: notify.NewReader(cfg.Brokers, cfg.CreatedTopic, cfg.Group),
		cfg.ReadyTopic:   notify.NewReader(cfg.Brokers, cfg.ReadyTopic, cfg.Group),
	}
	defer func() {
		var err error
		for _, r := range readers {
			err = multierr.Append(err, r.Close())
		}
		if err != nil {
			lg.Warn("Close kafka readers", zap.Error(err))
		}
	}()

	healthSvc := health.New()
	healthSvc.Liveness("goroutines", health.Goroutines(1000), health.WithTimeout(time.Second))
	mux := http.NewServeMux()
	healthSvc.Register(mux)
	server := &http.Server{
		Addr:              cfg.HealthAddr,
		Handler:           mux,
		ReadHeaderTimeout: time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	for topic, r := range readers {
		g.Go(func() error {
			lg.Info("Consuming", zap.String("topic", topic), zap.String("group", cfg.Group))
			if err := notify.Consume(ctx, r, deliver); err != nil {
				return errors.Wrapf(err, "consume %s", topic)
			}
			return nil
		})
	}
	g.Go(func() error {
		return healthSvc.Run(ctx, 10*time.Second)
	})
	g.Go(func() error {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "health server")
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		healthSvc.SetReady(false)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.CloseTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	healthSvc.SetReady(true)

	return g.Wait()
}

func deliver(ctx context.Context, e notify.Event) error {
	notify.Deliver(ctx, e)
	return nil
}
