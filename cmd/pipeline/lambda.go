package main

import (
	"context"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/spf13/cobra"

	"github.com/euoc/aws-data-pipeline/internal/ingest"
	"github.com/euoc/aws-data-pipeline/internal/metrics"
)

func newLambdaCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "lambda",
		Short: "Serve S3 ObjectCreated events as an AWS Lambda function",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.close()

			lambda.Start(flushEach(a.handler(a.s3())))
			return nil
		},
	}
}

// flushEach flushes metrics after every invocation; the execution environment
// may be frozen between events.
func flushEach(h *ingest.Handler) func(context.Context, events.S3Event) (ingest.Response, error) {
	return func(ctx context.Context, evt events.S3Event) (ingest.Response, error) {
		resp, err := h.HandleS3Event(ctx, evt)
		if ferr := metrics.Flush(); ferr != nil {
			h.Logger.Warn("metrics: flush error", "reason", ferr.Error())
		}
		return resp, err
	}
}
