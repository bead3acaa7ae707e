package migrations

import "embed"

// FS holds the goose migrations applied by repository.Migrate and testutil.
//
//go:embed *.sql
var FS embed.FS
