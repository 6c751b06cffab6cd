package sqlite

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/absmach/fedasync/pkg/storage/sqldb"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	migrate "github.com/rubenv/sql-migrate"
)

var (
	ErrDBConnection = errors.New("database connection error")
	ErrMigration    = errors.New("database migration error")
)

type Database struct {
	*sqlx.DB
}

func NewDatabase(path string) (*Database, error) {
	db, err := sqlx.Connect("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDBConnection, err)
	}

	// A single writer avoids SQLITE_BUSY between the scheduler and readers.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(5 * time.Minute)

	database := &Database{DB: db}

	if err := database.Migrate(context.Background()); err != nil {
		db.Close()

		return nil, err
	}

	return database, nil
}

func NewRepositories(db *Database) *sqldb.Repositories {
	return sqldb.NewRepositories(db.DB)
}

func (db *Database) Migrate(ctx context.Context) error {
	migrations := &migrate.MemoryMigrationSource{
		Migrations: []*migrate.Migration{
			{
				Id: "1_create_run_tables",
				Up: []string{
					`CREATE TABLE IF NOT EXISTS rounds (
						run_id TEXT NOT NULL,
						round INTEGER NOT NULL,
						quorum INTEGER NOT NULL,
						forced INTEGER NOT NULL DEFAULT 0,
						outstanding INTEGER NOT NULL DEFAULT 0,
						metric REAL NOT NULL DEFAULT 0,
						metrics TEXT,
						aggregation_ns INTEGER NOT NULL DEFAULT 0,
						time_of_round_ns INTEGER NOT NULL DEFAULT 0,
						communication INTEGER NOT NULL DEFAULT 0,
						model_version INTEGER NOT NULL,
						completed_at TIMESTAMP NOT NULL,
						PRIMARY KEY (run_id, round)
					)`,
					`CREATE TABLE IF NOT EXISTS selections (
						run_id TEXT NOT NULL,
						round INTEGER NOT NULL,
						position INTEGER NOT NULL,
						participant_id TEXT NOT NULL,
						PRIMARY KEY (run_id, round, position),
						FOREIGN KEY (run_id, round) REFERENCES rounds(run_id, round) ON DELETE CASCADE
					)`,
					`CREATE TABLE IF NOT EXISTS admissions (
						run_id TEXT NOT NULL,
						round INTEGER NOT NULL,
						position INTEGER NOT NULL,
						participant_id TEXT NOT NULL,
						dispatch_round INTEGER NOT NULL,
						weight REAL NOT NULL,
						remaining_ns INTEGER NOT NULL DEFAULT 0,
						forced INTEGER NOT NULL DEFAULT 0,
						PRIMARY KEY (run_id, round, position),
						FOREIGN KEY (run_id, round) REFERENCES rounds(run_id, round) ON DELETE CASCADE
					)`,
					`CREATE INDEX IF NOT EXISTS idx_admissions_participant ON admissions(run_id, participant_id)`,
					`CREATE TABLE IF NOT EXISTS participants (
						run_id TEXT NOT NULL,
						position INTEGER NOT NULL,
						id TEXT NOT NULL,
						name TEXT NOT NULL,
						busy INTEGER NOT NULL DEFAULT 0,
						dispatch_round INTEGER NOT NULL DEFAULT 0,
						selection_count INTEGER NOT NULL DEFAULT 0,
						admission_count INTEGER NOT NULL DEFAULT 0,
						PRIMARY KEY (run_id, id)
					)`,
				},
				Down: []string{
					`DROP TABLE IF EXISTS participants`,
					`DROP INDEX IF EXISTS idx_admissions_participant`,
					`DROP TABLE IF EXISTS admissions`,
					`DROP TABLE IF EXISTS selections`,
					`DROP TABLE IF EXISTS rounds`,
				},
			},
		},
	}

	if _, err := migrate.ExecContext(ctx, db.DB.DB, "sqlite3", migrations, migrate.Up); err != nil {
		return fmt.Errorf("%w: %w", ErrMigration, err)
	}

	return nil
}
