package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// PostgresStore persists transactions and predictions in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed ledger store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Compile-time interface check
var _ Store = (*PostgresStore)(nil)

const rawColumns = `
	id, trans_date_trans_time, cc_num, merchant, category, amt,
	"first", "last", gender, street, city, state, zip, lat, long,
	city_pop, job, dob, trans_num, unix_time, merch_lat, merch_long,
	created_at`

const predictionColumns = `
	id, trans_date_trans_time, cc_num, merchant, category, amt,
	"first", "last", gender, street, city, state, zip, lat, long,
	city_pop, job, dob, trans_num, unix_time, merch_lat, merch_long,
	prediction, created_at`

func (s *PostgresStore) InsertRaw(ctx context.Context, tx *RawTransaction) error {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO raw_transactions (
			trans_date_trans_time, cc_num, merchant, category, amt,
			"first", "last", gender, street, city, state, zip, lat, long,
			city_pop, job, dob, trans_num, unix_time, merch_lat, merch_long
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)
		RETURNING id, created_at
	`,
		nullTime(tx.TransDateTransTime), tx.CCNum, tx.Merchant, tx.Category, tx.Amt,
		tx.First, tx.Last, tx.Gender, tx.Street, tx.City, tx.State, tx.Zip, tx.Lat, tx.Long,
		tx.CityPop, tx.Job, nullTime(tx.DOB), tx.TransNum, tx.UnixTime, tx.MerchLat, tx.MerchLong,
	).Scan(&tx.ID, &tx.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return ErrDuplicateTransaction
		}
		return fmt.Errorf("insert raw transaction: %w", err)
	}
	return nil
}

func (s *PostgresStore) LatestRaw(ctx context.Context) (*RawTransaction, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+rawColumns+`
		FROM raw_transactions
		ORDER BY id DESC
		LIMIT 1
	`)
	return scanRaw(row)
}

func (s *PostgresStore) NextUnscored(ctx context.Context) (*RawTransaction, error) {
	// Left anti-join: newest raw row whose trans_num has no prediction.
	row := s.db.QueryRowContext(ctx, `
		SELECT `+rawColumns+`
		FROM raw_transactions r
		WHERE NOT EXISTS (
			SELECT 1 FROM predictions p WHERE p.trans_num = r.trans_num
		)
		ORDER BY r.id DESC
		LIMIT 1
	`)
	return scanRaw(row)
}

func (s *PostgresStore) InsertPrediction(ctx context.Context, p *Prediction) error {
	// Conditional append: the unique index on trans_num makes the second
	// concurrent writer lose cleanly instead of duplicating a score.
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO predictions (
			trans_date_trans_time, cc_num, merchant, category, amt,
			"first", "last", gender, street, city, state, zip, lat, long,
			city_pop, job, dob, trans_num, unix_time, merch_lat, merch_long,
			prediction
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22)
		ON CONFLICT (trans_num) DO NOTHING
		RETURNING id, created_at
	`,
		p.TransDateTransTime, p.CCNum, p.Merchant, p.Category, p.Amt,
		p.First, p.Last, p.Gender, p.Street, p.City, p.State, p.Zip, p.Lat, p.Long,
		p.CityPop, p.Job, nullTime(p.DOB), p.TransNum, p.UnixTime, p.MerchLat, p.MerchLong,
		p.Prediction,
	).Scan(&p.ID, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrAlreadyScored
	}
	if err != nil {
		return fmt.Errorf("insert prediction: %w", err)
	}
	return nil
}

func (s *PostgresStore) LatestPrediction(ctx context.Context) (*Prediction, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+predictionColumns+`
		FROM predictions
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`)
	return scanPrediction(row)
}

func (s *PostgresStore) ListPredictions(ctx context.Context, limit int) ([]*Prediction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+predictionColumns+`
		FROM predictions
		ORDER BY created_at DESC, id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list predictions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []*Prediction
	for rows.Next() {
		p, err := scanPrediction(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

// scanner abstracts *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRaw(row scanner) (*RawTransaction, error) {
	var tx RawTransaction
	var transTime, dob sql.NullTime
	err := row.Scan(
		&tx.ID, &transTime, &tx.CCNum, &tx.Merchant, &tx.Category, &tx.Amt,
		&tx.First, &tx.Last, &tx.Gender, &tx.Street, &tx.City, &tx.State,
		&tx.Zip, &tx.Lat, &tx.Long, &tx.CityPop, &tx.Job, &dob,
		&tx.TransNum, &tx.UnixTime, &tx.MerchLat, &tx.MerchLong, &tx.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan raw transaction: %w", err)
	}
	if transTime.Valid {
		tx.TransDateTransTime = transTime.Time
	}
	if dob.Valid {
		tx.DOB = dob.Time
	}
	return &tx, nil
}

func scanPrediction(row scanner) (*Prediction, error) {
	var p Prediction
	var dob sql.NullTime
	err := row.Scan(
		&p.ID, &p.TransDateTransTime, &p.CCNum, &p.Merchant, &p.Category, &p.Amt,
		&p.First, &p.Last, &p.Gender, &p.Street, &p.City, &p.State,
		&p.Zip, &p.Lat, &p.Long, &p.CityPop, &p.Job, &dob,
		&p.TransNum, &p.UnixTime, &p.MerchLat, &p.MerchLong, &p.Prediction, &p.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan prediction: %w", err)
	}
	if dob.Valid {
		p.DOB = dob.Time
	}
	return &p, nil
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
