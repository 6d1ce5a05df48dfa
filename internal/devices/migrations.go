package devices

import (
	"database/sql"

	"github.com/HerbHall/guardian/internal/store"
)

func migrations() []store.Migration {
	return []store.Migration{
		{
			Version:     1,
			Description: "create devices table",
			Up: func(tx *sql.Tx) error {
				_, err := tx.Exec(`CREATE TABLE IF NOT EXISTS devices (
					id         TEXT PRIMARY KEY,
					status     TEXT     NOT NULL DEFAULT 'offline',
					battery    INTEGER  NOT NULL DEFAULT 0,
					signal     INTEGER  NOT NULL DEFAULT 0,
					last_seen  DATETIME,
					user_id    TEXT,
					created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
				)`)
				if err != nil {
					return err
				}
				_, err = tx.Exec(`CREATE INDEX IF NOT EXISTS idx_devices_user ON devices(user_id)`)
				return err
			},
		},
	}
}
