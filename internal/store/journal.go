package store

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/Checker-Finance/marketplace/internal/ledger"
)

// PGJournal is the durable ledger journal: one row per committed entry in
// ledger.journal, keyed by seq. The primary key rejects a second writer that
// races for the same seq.
type PGJournal struct {
	db     DB
	logger *zap.Logger
}

func NewPGJournal(db DB, logger *zap.Logger) *PGJournal {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PGJournal{db: db, logger: logger}
}

func (j *PGJournal) Append(ctx context.Context, e ledger.Entry) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal entry %d: %w", e.Seq, err)
	}
	_, err = j.db.Exec(ctx, `
		INSERT INTO ledger.journal (seq, kind, account, payload, recorded_at)
		VALUES ($1, $2, $3, $4, $5)
	`, int64(e.Seq), string(e.Kind), e.Account.String(), payload, e.RecordedAt)
	if err != nil {
		j.logger.Error("store.pg.append_failed",
			zap.Uint64("seq", e.Seq),
			zap.String("kind", string(e.Kind)),
			zap.Error(err),
		)
		return fmt.Errorf("failed to insert entry %d: %w", e.Seq, err)
	}
	return nil
}

func (j *PGJournal) Load(ctx context.Context) ([]ledger.Entry, error) {
	rows, err := j.db.Query(ctx, `SELECT payload FROM ledger.journal ORDER BY seq ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to load journal: %w", err)
	}
	defer rows.Close()

	var entries []ledger.Entry
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan journal row: %w", err)
		}
		var e ledger.Entry
		if err := json.Unmarshal(payload, &e); err != nil {
			return nil, fmt.Errorf("failed to decode journal row %d: %w", len(entries)+1, err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating journal rows: %w", err)
	}
	return entries, nil
}
