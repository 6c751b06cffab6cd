package sqldb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	pkgerrors "github.com/absmach/fedasync/pkg/errors"
	"github.com/absmach/fedasync/pkg/fl"
	"github.com/jmoiron/sqlx"
)

type RoundRepository interface {
	Save(ctx context.Context, report fl.RoundReport) error
	Get(ctx context.Context, runID string, round int) (fl.RoundReport, error)
	List(ctx context.Context, runID string, offset, limit uint64) ([]fl.RoundReport, uint64, error)
}

type roundRepo struct {
	db *sqlx.DB
}

func NewRoundRepository(db *sqlx.DB) RoundRepository {
	return &roundRepo{db: db}
}

type dbRound struct {
	RunID               string    `db:"run_id"`
	Round               int       `db:"round"`
	Quorum              int       `db:"quorum"`
	Forced              int       `db:"forced"`
	Outstanding         int       `db:"outstanding"`
	Metric              float64   `db:"metric"`
	Metrics             []byte    `db:"metrics"`
	AggregationDuration int64     `db:"aggregation_ns"`
	TimeOfRound         int64     `db:"time_of_round_ns"`
	Communication       int64     `db:"communication"`
	ModelVersion        int       `db:"model_version"`
	CompletedAt         time.Time `db:"completed_at"`
}

type dbAdmission struct {
	Round         int     `db:"round"`
	ParticipantID string  `db:"participant_id"`
	DispatchRound int     `db:"dispatch_round"`
	Weight        float64 `db:"weight"`
	Remaining     int64   `db:"remaining_ns"`
	Forced        bool    `db:"forced"`
}

type dbSelection struct {
	Round         int    `db:"round"`
	ParticipantID string `db:"participant_id"`
}

func (r *roundRepo) Save(ctx context.Context, report fl.RoundReport) error {
	metrics, err := json.Marshal(report.Metrics)
	if err != nil {
		return fmt.Errorf("marshal error: %w", err)
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCreate, err)
	}
	defer tx.Rollback()

	query := `INSERT INTO rounds (run_id, round, quorum, forced, outstanding, metric, metrics, aggregation_ns, time_of_round_ns, communication, model_version, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if _, err := tx.ExecContext(ctx, tx.Rebind(query),
		report.RunID, report.Round, report.Quorum, report.Forced, report.Outstanding, report.Metric, string(metrics),
		int64(report.AggregationDuration), int64(report.TimeOfRound), int64(report.Communication), report.ModelVersion, report.CompletedAt.UTC(),
	); err != nil {
		return fmt.Errorf("%w: %w", ErrCreate, err)
	}

	query = `INSERT INTO selections (run_id, round, position, participant_id) VALUES (?, ?, ?, ?)`
	for i, id := range report.Selected {
		if _, err := tx.ExecContext(ctx, tx.Rebind(query), report.RunID, report.Round, i, id); err != nil {
			return fmt.Errorf("%w: %w", ErrCreate, err)
		}
	}

	query = `INSERT INTO admissions (run_id, round, position, participant_id, dispatch_round, weight, remaining_ns, forced)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	for i, a := range report.Admitted {
		if _, err := tx.ExecContext(ctx, tx.Rebind(query),
			report.RunID, report.Round, i, a.ParticipantID, a.DispatchRound, a.Weight, int64(a.Remaining), a.Forced,
		); err != nil {
			return fmt.Errorf("%w: %w", ErrCreate, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %w", ErrCreate, err)
	}

	return nil
}

func (r *roundRepo) Get(ctx context.Context, runID string, round int) (fl.RoundReport, error) {
	query := `SELECT run_id, round, quorum, forced, outstanding, metric, metrics, aggregation_ns, time_of_round_ns, communication, model_version, completed_at
		FROM rounds WHERE run_id = ? AND round = ?`

	var dbr dbRound
	if err := r.db.GetContext(ctx, &dbr, r.db.Rebind(query), runID, round); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fl.RoundReport{}, fmt.Errorf("round %d of run %s: %w", round, runID, pkgerrors.ErrNotFound)
		}

		return fl.RoundReport{}, fmt.Errorf("%w: %w", ErrDBQuery, err)
	}

	reports, err := r.hydrate(ctx, runID, []dbRound{dbr})
	if err != nil {
		return fl.RoundReport{}, err
	}

	return reports[0], nil
}

func (r *roundRepo) List(ctx context.Context, runID string, offset, limit uint64) ([]fl.RoundReport, uint64, error) {
	var total uint64
	if err := r.db.GetContext(ctx, &total, r.db.Rebind(`SELECT COUNT(*) FROM rounds WHERE run_id = ?`), runID); err != nil {
		return nil, 0, fmt.Errorf("%w: %w", ErrDBQuery, err)
	}

	query := `SELECT run_id, round, quorum, forced, outstanding, metric, metrics, aggregation_ns, time_of_round_ns, communication, model_version, completed_at
		FROM rounds WHERE run_id = ? ORDER BY round LIMIT ? OFFSET ?`

	var rows []dbRound
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), runID, limit, offset); err != nil {
		return nil, 0, fmt.Errorf("%w: %w", ErrDBScan, err)
	}

	reports, err := r.hydrate(ctx, runID, rows)
	if err != nil {
		return nil, 0, err
	}

	return reports, total, nil
}

// hydrate attaches selections and admissions to the round rows.
func (r *roundRepo) hydrate(ctx context.Context, runID string, rows []dbRound) ([]fl.RoundReport, error) {
	reports := make([]fl.RoundReport, len(rows))
	if len(rows) == 0 {
		return reports, nil
	}

	index := make(map[int]int, len(rows))
	for i, row := range rows {
		report, err := toReport(row)
		if err != nil {
			return nil, err
		}
		reports[i] = report
		index[row.Round] = i
	}

	first, last := rows[0].Round, rows[len(rows)-1].Round

	var selections []dbSelection
	query := `SELECT round, participant_id FROM selections WHERE run_id = ? AND round BETWEEN ? AND ? ORDER BY round, position`
	if err := r.db.SelectContext(ctx, &selections, r.db.Rebind(query), runID, first, last); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDBScan, err)
	}
	for _, s := range selections {
		if i, ok := index[s.Round]; ok {
			reports[i].Selected = append(reports[i].Selected, s.ParticipantID)
		}
	}

	var admissions []dbAdmission
	query = `SELECT round, participant_id, dispatch_round, weight, remaining_ns, forced FROM admissions
		WHERE run_id = ? AND round BETWEEN ? AND ? ORDER BY round, position`
	if err := r.db.SelectContext(ctx, &admissions, r.db.Rebind(query), runID, first, last); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDBScan, err)
	}
	for _, a := range admissions {
		if i, ok := index[a.Round]; ok {
			reports[i].Admitted = append(reports[i].Admitted, fl.Admission{
				ParticipantID: a.ParticipantID,
				DispatchRound: a.DispatchRound,
				Weight:        a.Weight,
				Remaining:     time.Duration(a.Remaining),
				Forced:        a.Forced,
			})
		}
	}

	return reports, nil
}

func toReport(row dbRound) (fl.RoundReport, error) {
	report := fl.RoundReport{
		RunID:               row.RunID,
		Round:               row.Round,
		Quorum:              row.Quorum,
		Forced:              row.Forced,
		Outstanding:         row.Outstanding,
		Metric:              row.Metric,
		AggregationDuration: time.Duration(row.AggregationDuration),
		TimeOfRound:         time.Duration(row.TimeOfRound),
		Communication:       int(row.Communication),
		ModelVersion:        row.ModelVersion,
		CompletedAt:         row.CompletedAt,
	}
	if len(row.Metrics) > 0 {
		if err := json.Unmarshal(row.Metrics, &report.Metrics); err != nil {
			return fl.RoundReport{}, fmt.Errorf("%w: %w", ErrDBScan, err)
		}
	}

	return report, nil
}
