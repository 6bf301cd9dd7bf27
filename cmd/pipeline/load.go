package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/euoc/aws-data-pipeline/internal/source"
)

func newLoadCmd(opts *globalOptions) *cobra.Command {
	var table string

	cmd := &cobra.Command{
		Use:   "load <path-or-s3-uri>",
		Short: "Load one local file or s3://bucket/key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			loc, err := source.ParseURI(args[0])
			if err != nil {
				return err
			}

			a, err := newApp(ctx, opts)
			if err != nil {
				return err
			}
			defer a.close()

			var src source.Source
			if loc.Bucket != "" {
				src = a.s3()
			} else {
				src, loc, err = localObject(loc.Key)
				if err != nil {
					return err
				}
			}

			h := a.handler(src)
			store, err := h.Connect(ctx)
			if err != nil {
				return err
			}
			defer func() {
				if err := store.Close(context.WithoutCancel(ctx)); err != nil {
					a.log.Error("close store failed", "reason", err.Error())
				}
			}()

			fr := h.LoadObject(ctx, store, loc.Bucket, loc.Key, table)
			if fr.Err != nil {
				return fr.Err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "loaded %d rows into %s (%s)\n", fr.Rows, fr.Table, fr.Load.Sync.Status)
			return nil
		},
	}
	cmd.Flags().StringVar(&table, "table", "", "destination table (default: derived from the file name)")
	return cmd
}

// localObject turns a filesystem path into a Local source rooted at its
// directory and the file's key.
func localObject(path string) (source.Source, source.Location, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, source.Location{}, err
	}
	return source.NewLocal(filepath.Dir(abs)), source.Location{Key: filepath.Base(abs)}, nil
}
