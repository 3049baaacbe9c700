package exchange

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGAgreementStore persists enterprise agreements and their pay rates.
// The parent and its children are only ever written inside one transaction:
// no reader can observe rates without an agreement or vice versa.
type PGAgreementStore struct {
	pool *pgxpool.Pool
}

// NewPGAgreementStore creates an agreement store backed by the pool.
func NewPGAgreementStore(pool *pgxpool.Pool) *PGAgreementStore {
	return &PGAgreementStore{pool: pool}
}

// SaveAgreement writes the agreement and its full rate set atomically.
func (s *PGAgreementStore) SaveAgreement(ctx context.Context, agreement *EnterpriseAgreement, rates []ExtractedPayRate) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO enterprise_agreements (id, title, reference, employer_name, effective_from, expires_at, file_name, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		agreement.ID, agreement.Title, agreement.Reference, agreement.EmployerName,
		agreement.EffectiveFrom, agreement.ExpiresAt, agreement.FileName, agreement.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert agreement: %w", err)
	}

	for i, rate := range rates {
		_, err = tx.Exec(ctx, `
			INSERT INTO agreement_pay_rates (id, agreement_id, position, classification, rate, effective_date, notes)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			uuid.New(), agreement.ID, i, rate.Classification, rate.Rate, rate.EffectiveDate, rate.Notes,
		)
		if err != nil {
			return fmt.Errorf("insert pay rate %d: %w", i, err)
		}
	}

	return tx.Commit(ctx)
}

// GetAgreement reads an agreement and its rates in extraction order.
func (s *PGAgreementStore) GetAgreement(ctx context.Context, id uuid.UUID) (*EnterpriseAgreement, []ExtractedPayRate, error) {
	var a EnterpriseAgreement
	var effectiveFrom, expiresAt *time.Time

	err := s.pool.QueryRow(ctx, `
		SELECT id, title, reference, employer_name, effective_from, expires_at, file_name, created_at
		FROM enterprise_agreements WHERE id = $1`, id).
		Scan(&a.ID, &a.Title, &a.Reference, &a.EmployerName, &effectiveFrom, &expiresAt, &a.FileName, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil, fmt.Errorf("agreement %s: not found", id)
	}
	if err != nil {
		return nil, nil, err
	}
	a.EffectiveFrom = effectiveFrom
	a.ExpiresAt = expiresAt

	rows, err := s.pool.Query(ctx, `
		SELECT classification, rate, effective_date, notes
		FROM agreement_pay_rates WHERE agreement_id = $1 ORDER BY position`, id)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var rates []ExtractedPayRate
	for rows.Next() {
		var r ExtractedPayRate
		if err := rows.Scan(&r.Classification, &r.Rate, &r.EffectiveDate, &r.Notes); err != nil {
			return nil, nil, err
		}
		rates = append(rates, r)
	}
	return &a, rates, rows.Err()
}
