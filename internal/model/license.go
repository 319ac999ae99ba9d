package model

import (
	"fmt"
	"strings"
	"time"
)

// LicenseKind determines how long a license stays valid.
type LicenseKind string

const (
	LicenseKindTrial    LicenseKind = "trial"
	LicenseKindMonthly  LicenseKind = "monthly"
	LicenseKindYearly   LicenseKind = "yearly"
	LicenseKindLifetime LicenseKind = "lifetime"
)

var kindDurations = map[LicenseKind]time.Duration{
	LicenseKindTrial:    24 * time.Hour,
	LicenseKindMonthly:  30 * 24 * time.Hour,
	LicenseKindYearly:   365 * 24 * time.Hour,
	LicenseKindLifetime: 0,
}

// ParseLicenseKind validates a kind name.
func ParseLicenseKind(s string) (LicenseKind, error) {
	kind := LicenseKind(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := kindDurations[kind]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
	return kind, nil
}

// ExpiresAt returns the expiry of a license of this kind issued at t, or nil
// for licenses that never expire.
func (k LicenseKind) ExpiresAt(t time.Time) *time.Time {
	d := kindDurations[k]
	if d == 0 {
		return nil
	}
	exp := t.Add(d)
	return &exp
}

// License is an issued key.
type License struct {
	Key       string      `json:"key"`
	Kind      LicenseKind `json:"kind"`
	Banned    bool        `json:"banned"`
	CreatedAt time.Time   `json:"createdAt"`
	ExpiresAt *time.Time  `json:"expiresAt,omitempty"`
	Hardware  []string    `json:"hardware"`
}

// Expired reports whether the license is past its expiry at now.
func (l *License) Expired(now time.Time) bool {
	return l.ExpiresAt != nil && !now.Before(*l.ExpiresAt)
}

// Validation is the result of a successful license check.
type Validation struct {
	OK            bool       `json:"ok"`
	ExpiresAt     *time.Time `json:"expiresAt,omitempty"`
	BoundHardware int        `json:"boundHardware"`
}
