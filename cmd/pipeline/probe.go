package main

import (
	"errors"
	"fmt"
	"io"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/euoc/aws-data-pipeline/internal/config"
	"github.com/euoc/aws-data-pipeline/internal/dataset"
	"github.com/euoc/aws-data-pipeline/internal/ingest"
	"github.com/euoc/aws-data-pipeline/internal/loader"
	"github.com/euoc/aws-data-pipeline/internal/parser"
	"github.com/euoc/aws-data-pipeline/internal/schema"
	"github.com/euoc/aws-data-pipeline/internal/storage"
)

// probeSettings are the only variables probe reads; database and S3 settings
// may be absent.
var probeSettings = []string{"CSV_DELIMITER", "SOURCE_ENCODING", "LOAD_STAMP_COLUMN", "LOG_"}

func newProbeCmd(opts *globalOptions) *cobra.Command {
	var (
		table  string
		report bool
	)

	cmd := &cobra.Command{
		Use:   "probe <path>",
		Short: "Print the table a local file would be loaded into",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromEnv()
			if err != nil {
				var cfgErr *config.Error
				if !errors.As(err, &cfgErr) {
					return err
				}
				if err := cfgErr.Only(probeSettings...); err != nil {
					return err
				}
			}
			log := newLogger(cfg, opts)

			src, loc, err := localObject(args[0])
			if err != nil {
				return err
			}
			if table == "" {
				table = ingest.TableName(loc.Key)
			}

			h := &ingest.Handler{
				Source: src,
				Decode: parser.Options{Delimiter: cfg.Load.Delimiter, Encoding: cfg.Load.Encoding},
				Logger: log,
			}
			ds, err := h.ReadDataset(cmd.Context(), "", loc.Key)
			if err != nil {
				return err
			}

			if report {
				_, err := fmt.Fprintln(cmd.OutOrStdout(), schema.ComputeUniqueness(ds).Format())
				return err
			}
			p := &loader.Pipeline{Schema: cfg.DB.Schema, StampColumn: cfg.Load.StampColumn}
			return writePlan(cmd.OutOrStdout(), p, ds, table, cfg.DB.Kind)
		},
	}
	cmd.Flags().StringVar(&table, "table", "", "destination table (default: derived from the file name)")
	cmd.Flags().BoolVar(&report, "report", false, "print a per-column uniqueness report instead of the table plan")
	return cmd
}

type plan struct {
	Backend    string            `json:"backend"`
	Table      string            `json:"table"`
	Rows       int               `json:"rows"`
	Surrogate  string            `json:"surrogate_key,omitempty"`
	Constraint []string          `json:"constraints,omitempty"`
	Spec       storage.TableSpec `json:"spec"`
}

// writePlan prints the table Load would create for ds on a kind backend,
// with constraint names shortened to that backend's identifier limit.
func writePlan(w io.Writer, p *loader.Pipeline, ds *dataset.Dataset, table, kind string) error {
	spec, err := p.Plan(ds, table)
	if err != nil {
		return err
	}
	maxIdent := storage.IdentifierLimit(kind)
	if err := storage.ValidateTableSpec(spec, maxIdent); err != nil {
		return err
	}
	out := plan{Backend: kind, Table: spec.QualifiedName(), Rows: ds.Len(), Spec: spec}
	if len(spec.NaturalKey) == 0 {
		out.Surrogate = storage.SurrogateKeyColumn
	}
	for _, k := range spec.NaturalKey {
		out.Constraint = append(out.Constraint, storage.ConstraintName(spec.Name, k, maxIdent))
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
