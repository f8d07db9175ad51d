// Command api-server serves the print-on-demand storefront and vendor API.
package main

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"go.uber.org/zap"

	pod "github.com/xenking/ruxstar-pod/internal/app"
)

func main() {
	app.Run(func(ctx context.Context, lg *zap.Logger, t *app.Telemetry) error {
		cfg, err := pod.LoadConfig()
		if err != nil {
			return errors.Wrap(err, "config")
		}
		return pod.Run(ctx, lg.Named("api"), t, cfg)
	})
}
