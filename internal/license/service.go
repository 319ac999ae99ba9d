// Package license issues license keys and checks agents against them.
package license

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Sentini2/edusp/internal/model"
)

// Store is the persistence the service needs.
type Store interface {
	Create(ctx context.Context, license *model.License) error
	GetByKey(ctx context.Context, key string) (*model.License, error)
	List(ctx context.Context) ([]*model.License, error)
	Delete(ctx context.Context, key string) error
	ToggleBan(ctx context.Context, key string) (bool, error)
	BindHardware(ctx context.Context, key, hardwareID string, maxHardware int) (int, error)
}

// Config tunes validation.
type Config struct {
	// MaxHardware is how many machines one key may be bound to. Zero means unlimited.
	MaxHardware int
}

// Service manages licenses.
type Service struct {
	store  Store
	cfg    Config
	logger *slog.Logger
	now    func() time.Time
}

// NewService creates a Service. Pass nil logger for default.
func NewService(store Store, cfg Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  store,
		cfg:    cfg,
		logger: logger.With("component", "license"),
		now:    time.Now,
	}
}

// NewKey returns a fresh key in XXXX-XXXX-XXXX-XXXX form.
func NewKey() string {
	raw := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return raw[0:4] + "-" + raw[4:8] + "-" + raw[8:12] + "-" + raw[12:16]
}

// Issue creates a license of the given kind.
func (s *Service) Issue(ctx context.Context, kind model.LicenseKind) (*model.License, error) {
	kind, err := model.ParseLicenseKind(string(kind))
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	license := &model.License{
		Key:       NewKey(),
		Kind:      kind,
		CreatedAt: now,
		ExpiresAt: kind.ExpiresAt(now),
		Hardware:  []string{},
	}
	if err := s.store.Create(ctx, license); err != nil {
		return nil, fmt.Errorf("issue %s license: %w", kind, err)
	}

	s.logger.Info("license issued", "key", license.Key, "kind", kind)
	return license, nil
}

// Validate checks key and binds hardwareID to it when there is room.
//
// Unknown, banned and over-limit keys fail with model.ErrLicenseInvalid;
// keys past their expiry fail with model.ErrLicenseExpired.
func (s *Service) Validate(ctx context.Context, key, hardwareID string) (*model.Validation, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, model.ErrLicenseInvalid
	}

	license, err := s.store.GetByKey(ctx, key)
	if errors.Is(err, model.ErrLicenseNotFound) {
		return nil, model.ErrLicenseInvalid
	}
	if err != nil {
		return nil, fmt.Errorf("load license: %w", err)
	}

	if license.Banned {
		return nil, fmt.Errorf("%w: banned", model.ErrLicenseInvalid)
	}
	if license.Expired(s.now()) {
		return nil, model.ErrLicenseExpired
	}

	bound := len(license.Hardware)
	if hardwareID = strings.TrimSpace(hardwareID); hardwareID != "" {
		bound, err = s.store.BindHardware(ctx, key, hardwareID, s.cfg.MaxHardware)
		if errors.Is(err, model.ErrHardwareLimit) {
			return nil, fmt.Errorf("%w: %w", model.ErrLicenseInvalid, err)
		}
		if err != nil {
			return nil, fmt.Errorf("bind hardware: %w", err)
		}
	}

	return &model.Validation{
		OK:            true,
		ExpiresAt:     license.ExpiresAt,
		BoundHardware: bound,
	}, nil
}

// Admit lets an agent in when its key validates.
func (s *Service) Admit(ctx context.Context, key, hardwareID string) error {
	if _, err := s.Validate(ctx, key, hardwareID); err != nil {
		s.logger.Warn("agent refused by license check", "hwid", hardwareID, "error", err)
		return err
	}
	return nil
}

// Revoke deletes a license and its hardware bindings.
func (s *Service) Revoke(ctx context.Context, key string) error {
	if err := s.store.Delete(ctx, key); err != nil {
		return err
	}
	s.logger.Info("license revoked", "key", key)
	return nil
}

// ToggleBan flips the banned flag of a key and returns the new value.
func (s *Service) ToggleBan(ctx context.Context, key string) (bool, error) {
	banned, err := s.store.ToggleBan(ctx, key)
	if err != nil {
		return false, err
	}
	s.logger.Info("license ban toggled", "key", key, "banned", banned)
	return banned, nil
}

// List returns every license.
func (s *Service) List(ctx context.Context) ([]*model.License, error) {
	licenses, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}
	if licenses == nil {
		licenses = []*model.License{}
	}
	return licenses, nil
}
