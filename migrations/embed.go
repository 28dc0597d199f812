// Package migrations embeds the SQL files that provision the historian
// schema on a TimescaleDB database.
package migrations

import "embed"

//go:embed historian/*.sql
var HistorianFS embed.FS

// HistorianDir is the directory inside HistorianFS holding the migrations.
const HistorianDir = "historian"
