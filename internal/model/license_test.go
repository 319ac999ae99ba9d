package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLicenseKind(t *testing.T) {
	kind, err := ParseLicenseKind(" Monthly ")
	require.NoError(t, err)
	assert.Equal(t, LicenseKindMonthly, kind)

	_, err = ParseLicenseKind("forever")
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestLicenseKindExpiresAt(t *testing.T) {
	issued := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	exp := LicenseKindTrial.ExpiresAt(issued)
	require.NotNil(t, exp)
	assert.Equal(t, issued.Add(24*time.Hour), *exp)

	assert.Nil(t, LicenseKindLifetime.ExpiresAt(issued))
}

func TestLicenseExpired(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Second)
	future := now.Add(time.Hour)

	assert.True(t, (&License{ExpiresAt: &past}).Expired(now))
	assert.True(t, (&License{ExpiresAt: &now}).Expired(now))
	assert.False(t, (&License{ExpiresAt: &future}).Expired(now))
	assert.False(t, (&License{}).Expired(now))
}
