package db

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
)

// DataMigration is a versioned SQL change that AutoMigrate cannot express.
type DataMigration struct {
	Version     string
	Description string
	Up          func(*sql.DB) error
	Down        func(*sql.DB) error
}

// GetDataMigrations returns all data migrations in apply order.
func GetDataMigrations() []DataMigration {
	return []DataMigration{
		{
			Version:     "data_001",
			Description: "Add pool check constraints",
			Up:          addPoolCheckConstraints,
			Down:        dropPoolCheckConstraints,
		},
	}
}

var poolCheckConstraints = []struct {
	table, name, check string
}{
	{"pool_configs", "chk_pool_configs_singleton", "id = 1"},
	{"pool_configs", "chk_pool_configs_fee_bps", "fee_bps <= 1000"},
	{"commitment_trees", "chk_commitment_trees_singleton", "id = 1"},
	{"root_history_slots", "chk_root_history_slots_range", "slot >= 0 AND slot < 32"},
	{"commitment_records", "chk_commitment_records_leaf_index", "leaf_index >= 0"},
	{"custody_balances", "chk_custody_balances_range", "balance >= 0 AND balance <= 18446744073709551615"},
}

func addPoolCheckConstraints(db *sql.DB) error {
	for _, c := range poolCheckConstraints {
		stmt := fmt.Sprintf("ALTER TABLE %s ADD CONSTRAINT %s CHECK (%s)", c.table, c.name, c.check)
		if _, err := db.Exec(stmt); err != nil {
			if strings.Contains(err.Error(), "already exists") {
				continue
			}
			return fmt.Errorf("add constraint %s: %w", c.name, err)
		}
	}
	return nil
}

func dropPoolCheckConstraints(db *sql.DB) error {
	for _, c := range poolCheckConstraints {
		stmt := fmt.Sprintf("ALTER TABLE %s DROP CONSTRAINT IF EXISTS %s", c.table, c.name)
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("drop constraint %s: %w", c.name, err)
		}
	}
	return nil
}

// RunDataMigrations applies every migration not yet recorded in
// schema_migrations_log.
func RunDataMigrations(db *sql.DB) error {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations_log (
			id SERIAL PRIMARY KEY,
			version VARCHAR(50) NOT NULL UNIQUE,
			description TEXT,
			executed_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			rollback_at TIMESTAMP,
			status VARCHAR(20) DEFAULT 'completed'
		)
	`); err != nil {
		return fmt.Errorf("create schema_migrations_log: %w", err)
	}

	for _, migration := range GetDataMigrations() {
		var count int
		err := db.QueryRow(
			"SELECT COUNT(*) FROM schema_migrations_log WHERE version = $1 AND status = 'completed'",
			migration.Version,
		).Scan(&count)
		if err != nil {
			return err
		}
		if count > 0 {
			logrus.WithField("version", migration.Version).Debug("Data migration already applied")
			continue
		}

		logrus.WithField("version", migration.Version).Infof("Running data migration: %s", migration.Description)
		if err := migration.Up(db); err != nil {
			return err
		}
		_, err = db.Exec(`
			INSERT INTO schema_migrations_log (version, description) VALUES ($1, $2)
			ON CONFLICT (version) DO UPDATE SET status = 'completed', executed_at = CURRENT_TIMESTAMP, rollback_at = NULL`,
			migration.Version, migration.Description,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

// RollbackDataMigration reverts a single applied migration.
func RollbackDataMigration(db *sql.DB, version string) error {
	for _, migration := range GetDataMigrations() {
		if migration.Version != version {
			continue
		}
		if err := migration.Down(db); err != nil {
			return err
		}
		_, err := db.Exec(
			"UPDATE schema_migrations_log SET status = 'rolled_back', rollback_at = CURRENT_TIMESTAMP WHERE version = $1",
			version,
		)
		return err
	}
	return fmt.Errorf("unknown data migration %s", version)
}
