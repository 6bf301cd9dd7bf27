package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"

	"github.com/euoc/aws-data-pipeline/internal/config"
	"github.com/euoc/aws-data-pipeline/internal/ingest"
	"github.com/euoc/aws-data-pipeline/internal/loader"
	"github.com/euoc/aws-data-pipeline/internal/logging"
	"github.com/euoc/aws-data-pipeline/internal/parser"
	"github.com/euoc/aws-data-pipeline/internal/secrets"
	"github.com/euoc/aws-data-pipeline/internal/source"

	// register all backends with the storage factory.
	_ "github.com/euoc/aws-data-pipeline/internal/storage/all"
)

// app is the process wiring shared by the commands that write to a store.
type app struct {
	cfg config.Config
	log *slog.Logger
	aws aws.Config

	stopMetrics func()
}

// loadConfig reads the environment and builds the process logger.
func loadConfig(opts *globalOptions) (config.Config, *slog.Logger, error) {
	cfg, err := config.FromEnv()
	if err != nil {
		return cfg, nil, err
	}
	return cfg, newLogger(cfg, opts), nil
}

func newLogger(cfg config.Config, opts *globalOptions) *slog.Logger {
	lvl, err := cfg.Log.SlogLevel()
	if err != nil || opts.verbose {
		lvl = slog.LevelDebug
	}
	log := logging.New(lvl, cfg.Log.Format, os.Stderr)
	slog.SetDefault(log)
	return log
}

func newApp(ctx context.Context, opts *globalOptions) (*app, error) {
	cfg, log, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}

	var optFns []func(*awsconfig.LoadOptions) error
	if cfg.Source.Region != "" {
		optFns = append(optFns, awsconfig.WithRegion(cfg.Source.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return &app{
		cfg:         cfg,
		log:         log,
		aws:         awsCfg,
		stopMetrics: setupMetrics(ctx, cfg.Metrics, log),
	}, nil
}

// close flushes metrics. Safe to call once per app.
func (a *app) close() {
	if a.stopMetrics != nil {
		a.stopMetrics()
	}
}

func (a *app) s3() *source.S3 {
	return source.NewS3(a.aws, source.S3Options{
		Endpoint:     a.cfg.Source.Endpoint,
		UsePathStyle: a.cfg.Source.PathStyle,
	})
}

func (a *app) handler(src source.Source) *ingest.Handler {
	return newHandler(a.cfg, a.log, src, secrets.NewResolver(a.aws))
}

func newHandler(cfg config.Config, log *slog.Logger, src source.Source, pw ingest.PasswordResolver) *ingest.Handler {
	return &ingest.Handler{
		Source:  src,
		Connect: ingest.NewConnector(cfg.DB, pw),
		Pipeline: &loader.Pipeline{
			Schema:      cfg.DB.Schema,
			StampColumn: cfg.Load.StampColumn,
			Logger:      log,
		},
		Decode: parser.Options{
			Delimiter: cfg.Load.Delimiter,
			Encoding:  cfg.Load.Encoding,
		},
		Logger:          log,
		ContinueOnError: cfg.Load.ContinueOnError,
	}
}
