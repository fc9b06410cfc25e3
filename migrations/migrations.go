// Package migrations embeds the SQL schema files so that the API binary,
// the migration script and the integration tests apply the same schema.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
