package telemetry

import (
	"database/sql"

	"github.com/HerbHall/guardian/internal/store"
)

func migrations() []store.Migration {
	return []store.Migration{
		{
			Version:     1,
			Description: "create location and alert tables",
			Up: func(tx *sql.Tx) error {
				stmts := []string{
					`CREATE TABLE IF NOT EXISTS locations (
						id          INTEGER PRIMARY KEY AUTOINCREMENT,
						device_id   TEXT     NOT NULL,
						lat         REAL     NOT NULL,
						lng         REAL     NOT NULL,
						recorded_at DATETIME NOT NULL
					)`,
					`CREATE INDEX IF NOT EXISTS idx_locations_device_time ON locations(device_id, recorded_at)`,

					`CREATE TABLE IF NOT EXISTS alerts (
						id          TEXT PRIMARY KEY,
						device_id   TEXT     NOT NULL,
						kind        TEXT     NOT NULL,
						lat         REAL,
						lng         REAL,
						image_url   TEXT     NOT NULL DEFAULT '',
						resolved    INTEGER  NOT NULL DEFAULT 0,
						created_at  DATETIME NOT NULL,
						resolved_at DATETIME
					)`,
					`CREATE INDEX IF NOT EXISTS idx_alerts_device_time ON alerts(device_id, created_at)`,
				}
				for _, stmt := range stmts {
					if _, err := tx.Exec(stmt); err != nil {
						return err
					}
				}
				return nil
			},
		},
	}
}
