package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Sentini2/edusp/internal/model"
)

// LicenseRepository provides data access for licenses and their bound hardware.
type LicenseRepository struct {
	db *sql.DB
}

// NewLicenseRepository creates a new LicenseRepository.
func NewLicenseRepository(db *sql.DB) *LicenseRepository {
	return &LicenseRepository{db: db}
}

// Create inserts a new license into the database.
func (r *LicenseRepository) Create(ctx context.Context, license *model.License) error {
	query := `
		INSERT INTO licenses (key, kind, banned, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?)
	`

	var expiresAt sql.NullTime
	if license.ExpiresAt != nil {
		expiresAt = sql.NullTime{Time: license.ExpiresAt.UTC(), Valid: true}
	}

	_, err := r.db.ExecContext(ctx, query,
		license.Key,
		license.Kind,
		license.Banned,
		license.CreatedAt.UTC(),
		expiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create license: %w", err)
	}

	return nil
}

// GetByKey retrieves a license and its bound hardware ids.
func (r *LicenseRepository) GetByKey(ctx context.Context, key string) (*model.License, error) {
	query := `
		SELECT key, kind, banned, created_at, expires_at
		FROM licenses
		WHERE key = ?
	`

	license, err := scanLicense(r.db.QueryRowContext(ctx, query, key))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrLicenseNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get license: %w", err)
	}

	hardware, err := r.hardware(ctx, r.db, key)
	if err != nil {
		return nil, err
	}
	license.Hardware = hardware

	return license, nil
}

// List retrieves every license, newest first.
func (r *LicenseRepository) List(ctx context.Context) ([]*model.License, error) {
	query := `
		SELECT key, kind, banned, created_at, expires_at
		FROM licenses
		ORDER BY created_at DESC, key
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list licenses: %w", err)
	}
	defer rows.Close()

	var licenses []*model.License
	for rows.Next() {
		license, err := scanLicense(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan license: %w", err)
		}
		licenses = append(licenses, license)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating licenses: %w", err)
	}
	rows.Close()

	for _, license := range licenses {
		hardware, err := r.hardware(ctx, r.db, license.Key)
		if err != nil {
			return nil, err
		}
		license.Hardware = hardware
	}

	return licenses, nil
}

// Delete removes a license. Bound hardware goes with it.
func (r *LicenseRepository) Delete(ctx context.Context, key string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM licenses WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("failed to delete license: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return model.ErrLicenseNotFound
	}

	return nil
}

// ToggleBan flips the banned flag and returns the new value.
func (r *LicenseRepository) ToggleBan(ctx context.Context, key string) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var banned bool
	err = tx.QueryRowContext(ctx, `SELECT banned FROM licenses WHERE key = ?`, key).Scan(&banned)
	if errors.Is(err, sql.ErrNoRows) {
		return false, model.ErrLicenseNotFound
	}
	if err != nil {
		return false, fmt.Errorf("failed to read ban flag: %w", err)
	}

	banned = !banned
	if _, err := tx.ExecContext(ctx, `UPDATE licenses SET banned = ? WHERE key = ?`, banned, key); err != nil {
		return false, fmt.Errorf("failed to update ban flag: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit ban flag: %w", err)
	}
	return banned, nil
}

// BindHardware records hardwareID against a license and returns how many
// machines are bound afterwards. A machine already bound is not counted
// twice. With maxHardware > 0 a new machine beyond the limit is refused with
// model.ErrHardwareLimit.
func (r *LicenseRepository) BindHardware(ctx context.Context, key, hardwareID string, maxHardware int) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM licenses WHERE key = ?`, key).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, model.ErrLicenseNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to check license existence: %w", err)
	}

	var count int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM license_hardware WHERE license_key = ?`, key).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count hardware: %w", err)
	}

	var bound int
	err = tx.QueryRowContext(ctx,
		`SELECT 1 FROM license_hardware WHERE license_key = ? AND hardware_id = ?`,
		key, hardwareID,
	).Scan(&bound)
	switch {
	case err == nil:
		return count, nil
	case !errors.Is(err, sql.ErrNoRows):
		return 0, fmt.Errorf("failed to check hardware binding: %w", err)
	}

	if maxHardware > 0 && count >= maxHardware {
		return count, model.ErrHardwareLimit
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO license_hardware (license_key, hardware_id, bound_at) VALUES (?, ?, ?)`,
		key, hardwareID, time.Now().UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to bind hardware: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit hardware binding: %w", err)
	}
	return count + 1, nil
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (r *LicenseRepository) hardware(ctx context.Context, q queryer, key string) ([]string, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT hardware_id FROM license_hardware WHERE license_key = ? ORDER BY bound_at, hardware_id`,
		key,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list hardware: %w", err)
	}
	defer rows.Close()

	hardware := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan hardware: %w", err)
		}
		hardware = append(hardware, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating hardware: %w", err)
	}
	return hardware, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanLicense(s scanner) (*model.License, error) {
	license := &model.License{}
	var expiresAt sql.NullTime

	err := s.Scan(
		&license.Key,
		&license.Kind,
		&license.Banned,
		&license.CreatedAt,
		&expiresAt,
	)
	if err != nil {
		return nil, err
	}

	if expiresAt.Valid {
		exp := expiresAt.Time
		license.ExpiresAt = &exp
	}
	return license, nil
}
