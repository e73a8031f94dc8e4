package patients

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrPatientNotFound is returned when no patient row matches.
	ErrPatientNotFound = errors.New("patient not found")

	// ErrEmailRequired is returned when an inline profile has no email.
	ErrEmailRequired = errors.New("patient email is required")
)

// Repository stores patients in the relational database.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository initializes a repo backed by pgxpool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	if pool == nil {
		panic("patients: pgx pool required")
	}
	return &Repository{pool: pool}
}

// Create inserts a new patient row.
func (r *Repository) Create(ctx context.Context, req *CreatePatientRequest) (*Patient, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" {
		return nil, ErrEmailRequired
	}

	id := uuid.New()
	query := `
		INSERT INTO patients (id, email, full_name, phone, date_of_birth)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`
	var p Patient
	if err := r.pool.QueryRow(ctx, query,
		id,
		email,
		req.FullName,
		req.Phone,
		req.DateOfBirth,
	).Scan(&p.CreatedAt); err != nil {
		return nil, fmt.Errorf("patients: insert failed: %w", err)
	}

	p.ID = id
	p.Email = email
	p.FullName = req.FullName
	p.Phone = req.Phone
	p.DateOfBirth = req.DateOfBirth
	return &p, nil
}

// GetByID fetches a patient.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	query := patientSelect + ` WHERE id = $1`
	return r.scanOne(r.pool.QueryRow(ctx, query, id))
}

// FindByEmail fetches a patient by normalized email.
func (r *Repository) FindByEmail(ctx context.Context, email string) (*Patient, error) {
	query := patientSelect + ` WHERE email = $1`
	return r.scanOne(r.pool.QueryRow(ctx, query, strings.ToLower(strings.TrimSpace(email))))
}

// LinkWallet stores the patient's ledger wallet address.
func (r *Repository) LinkWallet(ctx context.Context, id uuid.UUID, walletAddress string) error {
	query := `UPDATE patients SET wallet_address = $2 WHERE id = $1`
	ct, err := r.pool.Exec(ctx, query, id, walletAddress)
	if err != nil {
		return fmt.Errorf("patients: link wallet: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrPatientNotFound
	}
	return nil
}

const patientSelect = `
	SELECT id, email, full_name, COALESCE(phone, ''), COALESCE(date_of_birth, ''),
	       COALESCE(wallet_address, ''), created_at
	FROM patients`

func (r *Repository) scanOne(row pgx.Row) (*Patient, error) {
	var p Patient
	if err := row.Scan(
		&p.ID,
		&p.Email,
		&p.FullName,
		&p.Phone,
		&p.DateOfBirth,
		&p.WalletAddress,
		&p.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, fmt.Errorf("patients: select failed: %w", err)
	}
	return &p, nil
}
