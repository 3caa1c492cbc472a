package repository_test

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/templui/fileshare/internal/db"
	"github.com/templui/fileshare/internal/model"
	"github.com/templui/fileshare/internal/repository"
)

// newMongoDB connects to MONGODB_URL and hands out a throwaway database
// that is dropped when the test ends.
func newMongoDB(t *testing.T) *mongo.Database {
	t.Helper()

	uri := os.Getenv("MONGODB_URL")
	if uri == "" {
		t.Skip("MONGODB_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	name := "fileshare_test_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
	database, err := db.ConnectMongo(ctx, uri, name)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx := context.Background()
		_ = database.Drop(ctx)
		_ = database.Client().Disconnect(ctx)
	})

	require.NoError(t, repository.EnsureMongoIndexes(ctx, database))
	return database
}

func TestMongoUserRepository(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	users := repository.NewMongoUserRepository(newMongoDB(t))

	alice := createUser(t, users, "alice")

	got, err := users.ByID(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Username)
	assert.Empty(t, got.PasswordHash)

	got, err = users.ByEmailWithPassword(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, "hash-alice", got.PasswordHash)

	dup := *alice
	dup.ID = uuid.New().String()
	dup.Email = "other@example.com"
	assert.ErrorIs(t, users.Create(ctx, &dup), repository.ErrDuplicateUser)

	exists, err := users.ExistsByUsernameOrEmail(ctx, "alice", "alice@example.com", alice.ID)
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = users.ByID(ctx, "missing")
	assert.ErrorIs(t, err, repository.ErrUserNotFound)
	assert.ErrorIs(t, users.UpdatePassword(ctx, "missing", "x"), repository.ErrUserNotFound)
}

func TestMongoFileRepositoryScopes(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	database := newMongoDB(t)
	users := repository.NewMongoUserRepository(database)
	files := repository.NewMongoFileRepository(database)

	alice := createUser(t, users, "alice")
	bob := createUser(t, users, "bob")

	createFile(t, files, alice.ID, "alpha report", model.VisibilityPublic)
	createFile(t, files, alice.ID, "beta notes", model.VisibilityPrivate)
	createFile(t, files, alice.ID, "gamma secret", model.VisibilityPassword)
	createFile(t, files, bob.ID, "delta 100%_done", model.VisibilityPublic)

	tests := []struct {
		name   string
		filter model.FileFilter
		search string
		want   []string
	}{
		{"owner sees every visibility", model.OwnedFiles(alice.ID), "", []string{"alpha report", "beta notes", "gamma secret"}},
		{"public scope spans owners", model.PublicFiles(), "", []string{"alpha report", "delta 100%_done"}},
		{"search is case insensitive", model.OwnedFiles(alice.ID), "NOTES", []string{"beta notes"}},
		{"regex characters match literally", model.PublicFiles(), "100%_", []string{"delta 100%_done"}},
		{"dot does not widen", model.PublicFiles(), "a.p", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			filter := tt.filter
			filter.Search = tt.search

			got, err := files.Find(ctx, filter, params(1, 10, "title"))
			require.NoError(t, err)
			total, err := files.Count(ctx, filter)
			require.NoError(t, err)

			var titles []string
			for _, f := range got {
				titles = append(titles, f.Title)
				assert.Nil(t, f.PasswordHash)
			}
			assert.Equal(t, tt.want, titles)
			assert.Equal(t, int64(len(tt.want)), total)
		})
	}
}

func TestMongoFileRepositoryPaging(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	files := repository.NewMongoFileRepository(newMongoDB(t))

	for i := range 25 {
		createFile(t, files, "alice", fmt.Sprintf("file-%02d", i), model.VisibilityPrivate)
	}

	page, err := files.Find(ctx, model.OwnedFiles("alice"), params(2, 10, "title"))
	require.NoError(t, err)
	require.Len(t, page, 10)
	assert.Equal(t, "file-10", page[0].Title)

	last, err := files.Find(ctx, model.OwnedFiles("alice"), params(3, 10, "-title"))
	require.NoError(t, err)
	require.Len(t, last, 5)
	assert.Equal(t, "file-04", last[0].Title)

	beyond, err := files.Find(ctx, model.OwnedFiles("alice"), params(9, 10, "title"))
	require.NoError(t, err)
	assert.Empty(t, beyond)
}

func TestMongoFileRepositoryPasswordHash(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	files := repository.NewMongoFileRepository(newMongoDB(t))

	file := createFile(t, files, "alice", "locked", model.VisibilityPassword)

	plain, err := files.ByID(ctx, file.ID)
	require.NoError(t, err)
	assert.Nil(t, plain.PasswordHash)

	full, err := files.ByIDWithPassword(ctx, file.ID)
	require.NoError(t, err)
	require.NotNil(t, full.PasswordHash)

	full.Visibility = model.VisibilityPublic
	full.PasswordHash = nil
	require.NoError(t, files.Update(ctx, full))

	full, err = files.ByIDWithPassword(ctx, file.ID)
	require.NoError(t, err)
	assert.Nil(t, full.PasswordHash, "hash is unset with the visibility change")
}

func TestMongoFileRepositoryConcurrentDownloads(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	files := repository.NewMongoFileRepository(newMongoDB(t))
	file := createFile(t, files, "alice", "popular", model.VisibilityPublic)

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, files.IncrementDownloads(ctx, file.ID))
		}()
	}
	wg.Wait()

	got, err := files.ByID(ctx, file.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(20), got.Downloads)

	assert.ErrorIs(t, files.IncrementDownloads(ctx, "missing"), repository.ErrFileNotFound)
}

func TestMongoGroupRepositoryOrphansFiles(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	database := newMongoDB(t)
	files := repository.NewMongoFileRepository(database)
	groups := repository.NewMongoGroupRepository(database)

	now := time.Now().UTC()
	group := &model.Group{ID: uuid.New().String(), Title: "docs", OwnerID: "alice", CreatedAt: now, UpdatedAt: now}
	require.NoError(t, groups.Create(ctx, group))

	for _, title := range []string{"one", "two"} {
		member := createFile(t, files, "alice", title, model.VisibilityPrivate)
		member.GroupID = &group.ID
		require.NoError(t, files.Update(ctx, member))
	}
	outsider := createFile(t, files, "alice", "outsider", model.VisibilityPrivate)

	count, err := files.CountByGroup(ctx, group.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	cleared, err := files.ClearGroup(ctx, group.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), cleared)
	require.NoError(t, groups.Delete(ctx, group.ID))

	count, err = files.CountByGroup(ctx, group.ID)
	require.NoError(t, err)
	assert.Zero(t, count)

	total, err := files.Count(ctx, model.OwnedFiles("alice"))
	require.NoError(t, err)
	assert.Equal(t, int64(3), total, "files survive their group")

	got, err := files.ByID(ctx, outsider.ID)
	require.NoError(t, err)
	assert.Nil(t, got.GroupID)

	_, err = groups.ByID(ctx, group.ID)
	assert.ErrorIs(t, err, repository.ErrGroupNotFound)
	assert.ErrorIs(t, groups.Delete(ctx, group.ID), repository.ErrGroupNotFound)
}
