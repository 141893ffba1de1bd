// Package db holds hand-written pgx queries for the bridge's small schema:
// operator users, the single-row Dynamics configuration, and transfer history.
package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/leadsuccess/dynamics-bridge/internal/configstore"
)

type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

type AuthUser struct {
	ID           int64
	Email        string
	PasswordHash string
	Role         string
	IsActive     bool
	CreatedAt    time.Time
	LastLoginAt  *time.Time
	LastLoginIP  string
}

func (s *Store) GetAuthUser(ctx context.Context, id int64) (AuthUser, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, email, password_hash, role, is_active, created_at, last_login_at, last_login_ip
		FROM auth_users WHERE id = $1`, id)
	return scanAuthUser(row)
}

func (s *Store) GetAuthUserByEmail(ctx context.Context, email string) (AuthUser, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, email, password_hash, role, is_active, created_at, last_login_at, last_login_ip
		FROM auth_users WHERE email = $1`, email)
	return scanAuthUser(row)
}

func (s *Store) CountAuthUsers(ctx context.Context) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM auth_users`).Scan(&n)
	return n, err
}

func (s *Store) CountAuthAdmins(ctx context.Context) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM auth_users WHERE role = 'admin' AND is_active`).Scan(&n)
	return n, err
}

type CreateAuthUserParams struct {
	Email        string
	PasswordHash string
	Role         string
	IsActive     bool
}

func (s *Store) CreateAuthUser(ctx context.Context, p CreateAuthUserParams) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO auth_users (email, password_hash, role, is_active)
		VALUES ($1, $2, $3, $4) RETURNING id`,
		p.Email, p.PasswordHash, p.Role, p.IsActive).Scan(&id)
	return id, err
}

func (s *Store) UpdateAuthUserLoginMeta(ctx context.Context, id int64, at time.Time, ip string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE auth_users SET last_login_at = $2, last_login_ip = $3 WHERE id = $1`,
		id, at, ip)
	return err
}

func scanAuthUser(row pgx.Row) (AuthUser, error) {
	var u AuthUser
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Role, &u.IsActive, &u.CreatedAt, &u.LastLoginAt, &u.LastLoginIP)
	return u, err
}

// Load implements configstore.Store over the single bridge_config row.
func (s *Store) Load(ctx context.Context) (configstore.ClientConfiguration, bool, error) {
	var cfg configstore.ClientConfiguration
	err := s.pool.QueryRow(ctx, `
		SELECT client_id, tenant_id, resource_url FROM bridge_config WHERE id = 1`).
		Scan(&cfg.ClientID, &cfg.TenantID, &cfg.ResourceURL)
	if errors.Is(err, pgx.ErrNoRows) {
		return configstore.ClientConfiguration{}, false, nil
	}
	if err != nil {
		return configstore.ClientConfiguration{}, false, err
	}
	return cfg, true, nil
}

func (s *Store) Save(ctx context.Context, cfg configstore.ClientConfiguration) error {
	cfg = cfg.Normalized()
	if err := cfg.Validate(); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO bridge_config (id, client_id, tenant_id, resource_url, updated_at)
		VALUES (1, $1, $2, $3, now())
		ON CONFLICT (id) DO UPDATE
		SET client_id = EXCLUDED.client_id,
		    tenant_id = EXCLUDED.tenant_id,
		    resource_url = EXCLUDED.resource_url,
		    updated_at = now()`,
		cfg.ClientID, cfg.TenantID, cfg.ResourceURL)
	return err
}

func (s *Store) Clear(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM bridge_config WHERE id = 1`)
	return err
}

type TransferRecord struct {
	ID                     int64     `json:"id"`
	LeadID                 string    `json:"leadId"`
	LeadName               string    `json:"leadName"`
	DynamicsURL            string    `json:"dynamicsUrl"`
	Message                string    `json:"message"`
	Success                bool      `json:"success"`
	AttachmentsTotal       int       `json:"attachmentsTotal"`
	AttachmentsTransferred int       `json:"attachmentsTransferred"`
	AttachmentErrors       []string  `json:"attachmentErrors"`
	CreatedAt              time.Time `json:"createdAt"`
}

func (s *Store) RecordTransfer(ctx context.Context, rec TransferRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO transfer_history
			(lead_id, lead_name, dynamics_url, message, success,
			 attachments_total, attachments_transferred, attachment_errors)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		rec.LeadID, rec.LeadName, rec.DynamicsURL, rec.Message, rec.Success,
		rec.AttachmentsTotal, rec.AttachmentsTransferred, rec.AttachmentErrors)
	return err
}

func (s *Store) ListRecentTransfers(ctx context.Context, limit int) ([]TransferRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, lead_id, lead_name, dynamics_url, message, success,
		       attachments_total, attachments_transferred, attachment_errors, created_at
		FROM transfer_history ORDER BY created_at DESC, id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TransferRecord
	for rows.Next() {
		var rec TransferRecord
		if err := rows.Scan(&rec.ID, &rec.LeadID, &rec.LeadName, &rec.DynamicsURL,
			&rec.Message, &rec.Success, &rec.AttachmentsTotal,
			&rec.AttachmentsTransferred, &rec.AttachmentErrors, &rec.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
