// Command pipeline loads tabular files into a relational table.
//
// Each file becomes one table named after the file (base name up to the first
// '.', lower-cased). Column types are inferred from the values, a natural key
// is detected from the header, and rows are upserted on that key inside one
// transaction per file.
//
// Subcommands
//
//   - sweep:  load every tabular object under S3_BUCKET/S3_PREFIX over one
//     connection. The first failure aborts unless --continue-on-error
//     (or SWEEP_CONTINUE_ON_ERROR) is set.
//   - lambda: run the AWS Lambda runtime loop with the S3 event handler.
//     ObjectCreated records are loaded; everything else is ignored.
//   - load:   load one local file or s3://bucket/key.
//   - probe:  decode a local file and print the planned table (JSON), or a
//     uniqueness report with --report. Never touches a database.
//
// # Configuration
//
// Settings come from the environment, after an optional .env file
// (--env-file, default ".env"; a missing file is ignored). See
// internal/config for the variables. --verbose forces LOG_LEVEL=debug.
//
// # Exit codes
//
//	0  success
//	1  load, source or connection failure
//	2  invalid configuration
package main

import "os"

func main() {
	os.Exit(execute(os.Args[1:], os.Stdout, os.Stderr))
}
