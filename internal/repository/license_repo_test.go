package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sentini2/edusp/internal/db"
	"github.com/Sentini2/edusp/internal/model"
)

func newTestRepo(t *testing.T) *LicenseRepository {
	t.Helper()
	testDB, err := db.NewTestDB()
	require.NoError(t, err)
	t.Cleanup(func() { testDB.Close() })
	return NewLicenseRepository(testDB)
}

func newLicense(key string, kind model.LicenseKind, created time.Time) *model.License {
	return &model.License{
		Key:       key,
		Kind:      kind,
		CreatedAt: created,
		ExpiresAt: kind.ExpiresAt(created),
	}
}

func TestLicenseRepository_CreateAndGet(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Create(ctx, newLicense("AAAA-BBBB", model.LicenseKindMonthly, created)))

	got, err := repo.GetByKey(ctx, "AAAA-BBBB")
	require.NoError(t, err)
	assert.Equal(t, model.LicenseKindMonthly, got.Kind)
	assert.False(t, got.Banned)
	assert.True(t, created.Equal(got.CreatedAt))
	require.NotNil(t, got.ExpiresAt)
	assert.True(t, created.Add(30*24*time.Hour).Equal(*got.ExpiresAt))
	assert.Empty(t, got.Hardware)
}

func TestLicenseRepository_LifetimeHasNoExpiry(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, newLicense("LIFE", model.LicenseKindLifetime, time.Now())))

	got, err := repo.GetByKey(ctx, "LIFE")
	require.NoError(t, err)
	assert.Nil(t, got.ExpiresAt)
}

func TestLicenseRepository_DuplicateKey(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, newLicense("DUP", model.LicenseKindTrial, time.Now())))
	assert.Error(t, repo.Create(ctx, newLicense("DUP", model.LicenseKindTrial, time.Now())))
}

func TestLicenseRepository_NotFound(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	_, err := repo.GetByKey(ctx, "missing")
	assert.ErrorIs(t, err, model.ErrLicenseNotFound)

	assert.ErrorIs(t, repo.Delete(ctx, "missing"), model.ErrLicenseNotFound)

	_, err = repo.ToggleBan(ctx, "missing")
	assert.ErrorIs(t, err, model.ErrLicenseNotFound)

	_, err = repo.BindHardware(ctx, "missing", "hw", 1)
	assert.ErrorIs(t, err, model.ErrLicenseNotFound)
}

func TestLicenseRepository_ListNewestFirst(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Create(ctx, newLicense("OLD", model.LicenseKindTrial, base)))
	require.NoError(t, repo.Create(ctx, newLicense("NEW", model.LicenseKindYearly, base.Add(time.Hour))))
	_, err := repo.BindHardware(ctx, "OLD", "hw-1", 0)
	require.NoError(t, err)

	list, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "NEW", list[0].Key)
	assert.Equal(t, "OLD", list[1].Key)
	assert.Equal(t, []string{"hw-1"}, list[1].Hardware)
	assert.Empty(t, list[0].Hardware)
}

func TestLicenseRepository_ToggleBan(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, newLicense("BAN", model.LicenseKindTrial, time.Now())))

	banned, err := repo.ToggleBan(ctx, "BAN")
	require.NoError(t, err)
	assert.True(t, banned)

	got, err := repo.GetByKey(ctx, "BAN")
	require.NoError(t, err)
	assert.True(t, got.Banned)

	banned, err = repo.ToggleBan(ctx, "BAN")
	require.NoError(t, err)
	assert.False(t, banned)
}

func TestLicenseRepository_BindHardware(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, newLicense("HW", model.LicenseKindYearly, time.Now())))

	n, err := repo.BindHardware(ctx, "HW", "machine-a", 2)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = repo.BindHardware(ctx, "HW", "machine-a", 2)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "rebinding the same machine is not counted twice")

	n, err = repo.BindHardware(ctx, "HW", "machine-b", 2)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = repo.BindHardware(ctx, "HW", "machine-c", 2)
	assert.ErrorIs(t, err, model.ErrHardwareLimit)
	assert.Equal(t, 2, n)

	n, err = repo.BindHardware(ctx, "HW", "machine-b", 2)
	require.NoError(t, err, "bound machines stay admitted at the limit")
	assert.Equal(t, 2, n)
}

func TestLicenseRepository_DeleteCascadesHardware(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, newLicense("GONE", model.LicenseKindTrial, time.Now())))
	_, err := repo.BindHardware(ctx, "GONE", "hw", 0)
	require.NoError(t, err)

	require.NoError(t, repo.Delete(ctx, "GONE"))

	require.NoError(t, repo.Create(ctx, newLicense("GONE", model.LicenseKindTrial, time.Now())))
	got, err := repo.GetByKey(ctx, "GONE")
	require.NoError(t, err)
	assert.Empty(t, got.Hardware)
}
