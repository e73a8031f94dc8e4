package doctors

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrDoctorNotFound is returned when no doctor row matches the id.
var ErrDoctorNotFound = errors.New("doctor not found")

// Repository loads doctor records from the relational database.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository initializes a repo backed by pgxpool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	if pool == nil {
		panic("doctors: pgx pool required")
	}
	return &Repository{pool: pool}
}

// GetByID fetches a doctor.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	query := `
		SELECT id, full_name, email, verified, hourly_rate_cents,
		       COALESCE(payout_account_id, ''), COALESCE(ledger_profile, ''), created_at
		FROM doctors
		WHERE id = $1
	`
	row := r.pool.QueryRow(ctx, query, id)
	var d Doctor
	if err := row.Scan(
		&d.ID,
		&d.FullName,
		&d.Email,
		&d.Verified,
		&d.HourlyRateCents,
		&d.PayoutAccountID,
		&d.LedgerProfile,
		&d.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDoctorNotFound
		}
		return nil, fmt.Errorf("doctors: select failed: %w", err)
	}
	return &d, nil
}
