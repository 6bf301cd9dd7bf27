package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newSweepCmd(opts *globalOptions) *cobra.Command {
	var (
		bucket          string
		prefix          string
		continueOnError bool
	)

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Load every tabular object under S3_BUCKET/S3_PREFIX",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, opts)
			if err != nil {
				return err
			}
			defer a.close()

			if cmd.Flags().Changed("bucket") {
				a.cfg.Source.Bucket = bucket
			}
			if cmd.Flags().Changed("prefix") {
				a.cfg.Source.Prefix = prefix
			}
			if cmd.Flags().Changed("continue-on-error") {
				a.cfg.Load.ContinueOnError = continueOnError
			}
			if err := a.cfg.Validate(); err != nil {
				return err
			}
			if err := a.cfg.RequireBucket(); err != nil {
				return err
			}

			rep, err := a.handler(a.s3()).Sweep(ctx, a.cfg.Source.Bucket, a.cfg.Source.Prefix)
			fmt.Fprintf(cmd.OutOrStdout(), "run %s: %d loaded, %d failed, %d skipped, %d rows\n",
				rep.RunID, rep.Loaded(), rep.Failed(), len(rep.Skipped), rep.Rows())
			return err
		},
	}
	cmd.Flags().StringVar(&bucket, "bucket", "", "bucket to sweep (overrides S3_BUCKET)")
	cmd.Flags().StringVar(&prefix, "prefix", "", "key prefix (overrides S3_PREFIX)")
	cmd.Flags().BoolVar(&continueOnError, "continue-on-error", false, "keep going after a failed file (overrides SWEEP_CONTINUE_ON_ERROR)")
	return cmd
}
