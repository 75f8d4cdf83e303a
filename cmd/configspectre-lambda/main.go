package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"github.com/ppiankov/configspectre/internal/aws"
	"github.com/ppiankov/configspectre/internal/config"
	"github.com/ppiankov/configspectre/internal/logging"
	"github.com/ppiankov/configspectre/internal/runner"
)

// Response is returned to the scheduler and visible in the invocation log.
type Response struct {
	Reports    int      `json:"reports"`
	Dispatched int      `json:"dispatched"`
	Failed     int      `json:"failed"`
	Errors     []string `json:"errors,omitempty"`
}

func handler(ctx context.Context, event events.CloudWatchEvent) (Response, error) {
	slog.Info("Scheduled run", "event_id", event.ID, "source", event.Source, "time", event.Time)

	cfg, err := config.Load(".")
	if err != nil {
		return Response{}, err
	}
	if cfg, err = config.ApplyEnv(cfg); err != nil {
		return Response{}, err
	}
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return Response{}, err
	}

	if d := cfg.TimeoutDuration(); d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	client, err := aws.NewClient(ctx, "", cfg.HomeRegion, aws.RetryConfig{
		MaxAttempts: cfg.MaxAttempts,
		MaxBackoff:  cfg.MaxBackoffDuration(),
	})
	if err != nil {
		return Response{}, err
	}

	r, err := runner.Setup(ctx, cfg, client, runner.SetupOptions{Regions: cfg.Regions, Out: os.Stdout})
	if err != nil {
		return Response{}, fmt.Errorf("prepare run: %w", err)
	}

	result, err := r.Run(ctx)
	if err != nil {
		return Response{}, fmt.Errorf("run compliance reports: %w", err)
	}

	return Response{
		Reports:    len(result.Reports),
		Dispatched: result.Dispatched,
		Failed:     result.Failed,
		Errors:     result.Errors,
	}, nil
}

func main() {
	logging.Init(os.Getenv("CONFIGSPECTRE_VERBOSE") == "true", "json")
	lambda.Start(handler)
}
