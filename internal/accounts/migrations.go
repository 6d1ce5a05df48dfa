package accounts

import (
	"database/sql"

	"github.com/HerbHall/guardian/internal/store"
)

func migrations() []store.Migration {
	return []store.Migration{
		{
			Version:     1,
			Description: "create users table",
			Up: func(tx *sql.Tx) error {
				_, err := tx.Exec(`CREATE TABLE IF NOT EXISTS users (
					id               TEXT PRIMARY KEY,
					email            TEXT     NOT NULL UNIQUE,
					name             TEXT     NOT NULL DEFAULT '',
					geo_fence_radius REAL     NOT NULL DEFAULT 500,
					created_at       DATETIME NOT NULL
				)`)
				return err
			},
		},
	}
}
