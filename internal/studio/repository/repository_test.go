package repository

import (
	"context"
	"path/filepath"
	"testing"

	"design-studio/internal/design/models"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const migrations = "../../../migrations/001_init_studio.sql"

func newTestRepo(t *testing.T) *Repository {
	t.Helper()

	db, err := OpenSQLite(filepath.Join(t.TempDir(), "db", "studio.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repo := New(db)
	require.NoError(t, repo.Init(context.Background(), migrations))
	return repo
}

func TestInitSeedsAdminOnce(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Init(ctx, migrations))

	u, err := repo.GetByCredentials(ctx, "admin", "admin")
	require.NoError(t, err)
	assert.Equal(t, AdminID, u.ID)
	assert.NotEqual(t, "admin", u.Password, "password must be hashed")
	assert.False(t, u.CreatedAt.IsZero())

	_, err = repo.GetByCredentials(ctx, "admin", "wrong")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = repo.GetByCredentials(ctx, "nobody", "admin")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateUser(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	u, err := repo.CreateUser(ctx, "maria", "secret", "Maria", "maria@example.com")
	require.NoError(t, err)

	got, err := repo.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "maria", got.Login)

	_, err = repo.CreateUser(ctx, "maria", "other", "", "")
	assert.ErrorIs(t, err, ErrLoginTaken)

	_, err = repo.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func testDesign(id string) *models.Design {
	return &models.Design{
		ID:      id,
		OwnerID: AdminID,
		Name:    "Poster",
		Canvas: models.Canvas{Width: 100, Height: 50, Background: "#ffffff", Objects: []models.Object{
			{ID: "r", Type: models.ObjectRect, Width: 10, Height: 10, Fill: "#ff0000", Opacity: 1},
		}},
	}
}

func TestDesignLifecycle(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	d := testDesign("d1")
	require.NoError(t, repo.CreateDesign(ctx, d))
	assert.Equal(t, 1, d.Version)

	got, err := repo.GetDesign(ctx, AdminID, "d1")
	require.NoError(t, err)
	assert.Equal(t, d.Canvas, got.Canvas)

	_, err = repo.GetDesign(ctx, "someone-else", "d1")
	assert.ErrorIs(t, err, ErrNotFound, "designs are scoped to their owner")

	got.Canvas.Objects[0].Left = 42
	require.NoError(t, repo.UpdateDesign(ctx, got, 1))
	assert.Equal(t, 2, got.Version)

	stale := testDesign("d1")
	err = repo.UpdateDesign(ctx, stale, 1)
	assert.ErrorIs(t, err, ErrVersionConflict)

	err = repo.UpdateDesign(ctx, testDesign("missing"), 1)
	assert.ErrorIs(t, err, ErrNotFound)

	list, err := repo.ListDesigns(ctx, AdminID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 42.0, list[0].Canvas.Objects[0].Left)

	require.NoError(t, repo.DeleteDesign(ctx, AdminID, "d1"))
	assert.ErrorIs(t, repo.DeleteDesign(ctx, AdminID, "d1"), ErrNotFound)

	list, err = repo.ListDesigns(ctx, AdminID)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestSeedTemplatesUpserts(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	tpls := []models.Template{
		{ID: "a", Name: "Alpha", Category: "social", Tags: []string{"sale"}, Canvas: models.Canvas{Width: 10, Height: 10, Objects: []models.Object{}}},
		{ID: "b", Name: "Beta", Category: "print", Canvas: models.Canvas{Width: 20, Height: 20, Objects: []models.Object{}}},
	}
	require.NoError(t, repo.SeedTemplates(ctx, tpls))

	tpls[0].Name = "Alpha 2"
	require.NoError(t, repo.SeedTemplates(ctx, tpls[:1]))

	all, err := repo.ListTemplates(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 2)

	social, err := repo.ListTemplates(ctx, "social")
	require.NoError(t, err)
	require.Len(t, social, 1)
	assert.Equal(t, "Alpha 2", social[0].Name)
	assert.Equal(t, []string{"sale"}, social[0].Tags)

	b, err := repo.GetTemplate(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, 20.0, b.Canvas.Width)
	assert.Empty(t, b.Tags)

	_, err = repo.GetTemplate(ctx, "zzz")
	assert.ErrorIs(t, err, ErrNotFound)
}
