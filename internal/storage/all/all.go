// Package all registers every storage backend with the storage registry.
package all

import (
	_ "github.com/euoc/aws-data-pipeline/internal/storage/mssql"
	_ "github.com/euoc/aws-data-pipeline/internal/storage/postgres"
	_ "github.com/euoc/aws-data-pipeline/internal/storage/sqlite"
)
