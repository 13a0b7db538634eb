// Package main runs the cascade deleter as a Lambda function subscribed to
// the directory table's stream. The stream must carry old images and the
// event source mapping must report batch item failures.
package main

import (
	"context"
	"log"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/joho/godotenv"

	"github.com/chessdojo/dirtree/crossref"
	"github.com/chessdojo/dirtree/internal/config"
	"github.com/chessdojo/dirtree/internal/metrics"
	"github.com/chessdojo/dirtree/store"
	"github.com/chessdojo/dirtree/stream"
)

func main() {
	// Load .env for local runs; absent in Lambda.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)

	ctx := context.Background()
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		log.Fatalf("Failed to load AWS config: %v", err)
	}

	st := store.New(dynamodb.NewFromConfig(awsCfg), cfg.Store, store.WithLogger(logger))
	collector := metrics.NewCollector(cfg.MetricsNamespace)

	h := stream.NewHandler(st, logger,
		stream.WithCrossReferencer(crossref.New(st, st.Config().GameTable)),
		stream.WithMetrics(collector),
		stream.WithRetry(cfg.CascadeMaxRetries, cfg.CascadeBackoff),
	)

	logger.Info("cascade deleter starting",
		"environment", cfg.Environment,
		"directoryTable", st.Config().DirectoryTable,
		"gameTable", st.Config().GameTable,
		"breaker", cfg.Store.Breaker.Enabled,
	)

	lambda.Start(func(ctx context.Context, event events.DynamoDBEvent) (events.DynamoDBEventResponse, error) {
		resp, err := h.HandleCascadeDelete(ctx, event)
		if snap, serr := collector.Snapshot(); serr == nil {
			logger.Debug("cascade counters", "records", len(event.Records), "failures", len(resp.BatchItemFailures), "counters", snap)
		}
		return resp, err
	})
}
