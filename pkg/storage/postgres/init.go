package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/absmach/fedasync/pkg/storage/sqldb"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	migrate "github.com/rubenv/sql-migrate"
)

var (
	ErrDBConnection = errors.New("database connection error")
	ErrMigration    = errors.New("database migration error")
)

type Database struct {
	*sqlx.DB
}

func NewDatabase(host, port, user, pass, name, sslMode string) (*Database, error) {
	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s", host, port, user, pass, name, sslMode)
	db, err := sqlx.Connect("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDBConnection, err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
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
						run_id VARCHAR(36) NOT NULL,
						round INTEGER NOT NULL,
						quorum INTEGER NOT NULL,
						forced INTEGER NOT NULL DEFAULT 0,
						outstanding INTEGER NOT NULL DEFAULT 0,
						metric DOUBLE PRECISION NOT NULL DEFAULT 0,
						metrics TEXT,
						aggregation_ns BIGINT NOT NULL DEFAULT 0,
						time_of_round_ns BIGINT NOT NULL DEFAULT 0,
						communication BIGINT NOT NULL DEFAULT 0,
						model_version INTEGER NOT NULL,
						completed_at TIMESTAMPTZ NOT NULL,
						PRIMARY KEY (run_id, round)
					)`,
					`CREATE TABLE IF NOT EXISTS selections (
						run_id VARCHAR(36) NOT NULL,
						round INTEGER NOT NULL,
						position INTEGER NOT NULL,
						participant_id VARCHAR(64) NOT NULL,
						PRIMARY KEY (run_id, round, position),
						FOREIGN KEY (run_id, round) REFERENCES rounds(run_id, round) ON DELETE CASCADE
					)`,
					`CREATE TABLE IF NOT EXISTS admissions (
						run_id VARCHAR(36) NOT NULL,
						round INTEGER NOT NULL,
						position INTEGER NOT NULL,
						participant_id VARCHAR(64) NOT NULL,
						dispatch_round INTEGER NOT NULL,
						weight DOUBLE PRECISION NOT NULL,
						remaining_ns BIGINT NOT NULL DEFAULT 0,
						forced BOOLEAN NOT NULL DEFAULT FALSE,
						PRIMARY KEY (run_id, round, position),
						FOREIGN KEY (run_id, round) REFERENCES rounds(run_id, round) ON DELETE CASCADE
					)`,
					`CREATE INDEX IF NOT EXISTS idx_admissions_participant ON admissions(run_id, participant_id)`,
					`CREATE TABLE IF NOT EXISTS participants (
						run_id VARCHAR(36) NOT NULL,
						position INTEGER NOT NULL,
						id VARCHAR(64) NOT NULL,
						name VARCHAR(255) NOT NULL,
						busy BOOLEAN NOT NULL DEFAULT FALSE,
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

	if _, err := migrate.ExecContext(ctx, db.DB.DB, "postgres", migrations, migrate.Up); err != nil {
		return fmt.Errorf("%w: %w", ErrMigration, err)
	}

	return nil
}
