package storage

import (
	"fmt"
	"io"

	"github.com/absmach/fedasync/pkg/storage/badger"
	"github.com/absmach/fedasync/pkg/storage/postgres"
	"github.com/absmach/fedasync/pkg/storage/sqlite"
)

type Config struct {
	Type string `toml:"type" yaml:"type" env:"TYPE" envDefault:"memory"`

	PostgresHost    string `toml:"postgres_host"    yaml:"postgres_host"    env:"POSTGRES_HOST"    envDefault:"localhost"`
	PostgresPort    string `toml:"postgres_port"    yaml:"postgres_port"    env:"POSTGRES_PORT"    envDefault:"5432"`
	PostgresUser    string `toml:"postgres_user"    yaml:"postgres_user"    env:"POSTGRES_USER"    envDefault:"fedasync"`
	PostgresPass    string `toml:"postgres_pass"    yaml:"postgres_pass"    env:"POSTGRES_PASS"    envDefault:"fedasync"`
	PostgresDB      string `toml:"postgres_db"      yaml:"postgres_db"      env:"POSTGRES_DB"      envDefault:"fedasync"`
	PostgresSSLMode string `toml:"postgres_sslmode" yaml:"postgres_sslmode" env:"POSTGRES_SSLMODE" envDefault:"disable"`

	SQLitePath string `toml:"sqlite_path" yaml:"sqlite_path" env:"SQLITE_PATH" envDefault:"./fedasync.db"`

	BadgerPath string `toml:"badger_path" yaml:"badger_path" env:"BADGER_PATH" envDefault:"./data/badger"`
}

type Repositories struct {
	Rounds       RoundRepository
	Participants ParticipantRepository
	// Closer closes the underlying persistent storage connection.
	// It is nil for the in-memory backend.
	Closer io.Closer
}

func NewRepositories(cfg Config) (*Repositories, error) {
	switch cfg.Type {
	case "postgres":
		return newPostgresRepositories(cfg)
	case "sqlite":
		return newSQLiteRepositories(cfg)
	case "badger":
		return newBadgerRepositories(cfg)
	case "memory", "":
		return newMemoryRepositories(), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, cfg.Type)
	}
}

func newPostgresRepositories(cfg Config) (*Repositories, error) {
	db, err := postgres.NewDatabase(
		cfg.PostgresHost,
		cfg.PostgresPort,
		cfg.PostgresUser,
		cfg.PostgresPass,
		cfg.PostgresDB,
		cfg.PostgresSSLMode,
	)
	if err != nil {
		return nil, err
	}

	repos := postgres.NewRepositories(db)

	return &Repositories{
		Rounds:       repos.Rounds,
		Participants: repos.Participants,
		Closer:       db,
	}, nil
}

func newSQLiteRepositories(cfg Config) (*Repositories, error) {
	db, err := sqlite.NewDatabase(cfg.SQLitePath)
	if err != nil {
		return nil, err
	}

	repos := sqlite.NewRepositories(db)

	return &Repositories{
		Rounds:       repos.Rounds,
		Participants: repos.Participants,
		Closer:       db,
	}, nil
}

func newBadgerRepositories(cfg Config) (*Repositories, error) {
	db, err := badger.NewDatabase(cfg.BadgerPath)
	if err != nil {
		return nil, err
	}

	repos := badger.NewRepositories(db)

	return &Repositories{
		Rounds:       repos.Rounds,
		Participants: repos.Participants,
		Closer:       db,
	}, nil
}

func newMemoryRepositories() *Repositories {
	return &Repositories{
		Rounds:       newMemoryRoundRepository(NewInMemoryStorage()),
		Participants: newMemoryParticipantRepository(NewInMemoryStorage()),
	}
}
