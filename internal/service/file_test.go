package service_test

import (
	"bytes"
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/templui/fileshare/internal/apperr"
	"github.com/templui/fileshare/internal/model"
	"github.com/templui/fileshare/internal/pagination"
	"github.com/templui/fileshare/internal/service"
)

func ptr[T any](v T) *T {
	return &v
}

func firstPage() pagination.Params {
	return pagination.Params{Page: 1, Limit: 10, Sort: pagination.Sort{Field: "createdAt", Desc: true}}
}

func TestUploadDefaults(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	alice := e.register(t, "alice")

	file, err := e.upload(alice.User.ID, service.UploadInput{Filename: "report.pdf"})
	require.NoError(t, err)
	assert.Equal(t, "report.pdf", file.Title)
	assert.Equal(t, model.VisibilityPrivate, file.Visibility)
	assert.Equal(t, "report.pdf", file.OriginalName)
	assert.Nil(t, file.PasswordHash)
	assert.True(t, e.store.has(file.StorageID))
	assert.Equal(t, "fileshare/"+file.ID+".pdf", file.StorageID)
}

func TestUploadValidatesBeforeStoring(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	alice := e.register(t, "alice")
	bob := e.register(t, "bob")

	bobsGroup, err := e.groupSvc.Create(context.Background(), bob.User.ID, service.CreateGroupInput{Title: "bob's"})
	require.NoError(t, err)

	tests := []struct {
		name string
		in   service.UploadInput
		want error
	}{
		{"password visibility needs a password", service.UploadInput{Visibility: model.VisibilityPassword}, service.ErrFilePasswordEmpty},
		{"foreign group", service.UploadInput{GroupID: bobsGroup.ID}, service.ErrInvalidGroup},
		{"unknown group", service.UploadInput{GroupID: "missing"}, service.ErrInvalidGroup},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.upload(alice.User.ID, tt.in)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	rejects := []service.UploadInput{
		{Filename: "script.exe"},
		{Filename: "huge.txt", Size: 4096},
		{Visibility: "secret"},
	}
	for _, in := range rejects {
		_, err := e.upload(alice.User.ID, in)
		assert.True(t, apperr.Is(err, apperr.Validation), "got %v", err)
	}

	assert.Zero(t, e.store.len(), "nothing reaches storage")
}

func TestUploadCompensatesFailedRecord(t *testing.T) {
	t.Parallel()
	e := newEnv(t)

	// The owner does not exist, so the record insert fails its foreign key.
	_, err := e.upload("ghost", service.UploadInput{})
	assert.True(t, apperr.Is(err, apperr.Upstream), "got %v", err)
	assert.Zero(t, e.store.len(), "object is removed again")
}

func TestUploadStorageFailure(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	alice := e.register(t, "alice")
	e.store.uploadErr = errStorageDown

	_, err := e.upload(alice.User.ID, service.UploadInput{})
	assert.True(t, apperr.Is(err, apperr.Upstream), "got %v", err)

	page, err := e.fileSvc.ListMine(context.Background(), alice.User.ID, service.ListFilesInput{Params: firstPage()})
	require.NoError(t, err)
	assert.Empty(t, page.Items)
}

func TestPasswordProtectedAccess(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := newEnv(t)
	alice := e.register(t, "alice")
	bob := e.register(t, "bob")

	file, err := e.upload(alice.User.ID, service.UploadInput{Visibility: model.VisibilityPassword, Password: "abc123"})
	require.NoError(t, err)

	_, err = e.fileSvc.Get(ctx, file.ID, bob.User.ID, "")
	assert.ErrorIs(t, err, service.ErrPasswordRequired)

	_, err = e.fileSvc.Get(ctx, file.ID, bob.User.ID, "wrong")
	assert.ErrorIs(t, err, service.ErrPasswordIncorrect)

	// The owner is held to the password as well.
	_, err = e.fileSvc.Get(ctx, file.ID, alice.User.ID, "")
	assert.ErrorIs(t, err, service.ErrPasswordRequired)

	got, err := e.fileSvc.Get(ctx, file.ID, "", "abc123")
	require.NoError(t, err)
	assert.Nil(t, got.PasswordHash)
	assert.Zero(t, got.Downloads)

	dl, err := e.fileSvc.Download(ctx, file.ID, "", "abc123")
	require.NoError(t, err)
	assert.Equal(t, "notes.txt", dl.FileName)
	assert.Equal(t, file.SecureURL, dl.URL)

	stored, err := e.files.ByID(ctx, file.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.Downloads)
}

func TestPrivateAccess(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := newEnv(t)
	alice := e.register(t, "alice")
	bob := e.register(t, "bob")

	file, err := e.upload(alice.User.ID, service.UploadInput{})
	require.NoError(t, err)

	_, err = e.fileSvc.Get(ctx, file.ID, alice.User.ID, "")
	assert.NoError(t, err)

	_, err = e.fileSvc.Get(ctx, file.ID, bob.User.ID, "")
	assert.ErrorIs(t, err, service.ErrFileForbidden)

	_, err = e.fileSvc.Download(ctx, file.ID, "", "")
	assert.ErrorIs(t, err, service.ErrFileForbidden)

	_, err = e.fileSvc.Get(ctx, "missing", alice.User.ID, "")
	assert.ErrorIs(t, err, service.ErrFileNotFound)
}

func TestConcurrentDownloadsAreCounted(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := newEnv(t)
	alice := e.register(t, "alice")

	file, err := e.upload(alice.User.ID, service.UploadInput{Visibility: model.VisibilityPublic})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.fileSvc.Download(ctx, file.ID, "", "")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	stored, err := e.files.ByID(ctx, file.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(10), stored.Downloads)
}

func TestListings(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := newEnv(t)
	alice := e.register(t, "alice")
	bob := e.register(t, "bob")

	for _, in := range []service.UploadInput{
		{Title: "public one", Visibility: model.VisibilityPublic},
		{Title: "private one"},
		{Title: "locked one", Visibility: model.VisibilityPassword, Password: "abc123"},
	} {
		_, err := e.upload(alice.User.ID, in)
		require.NoError(t, err)
	}
	_, err := e.upload(bob.User.ID, service.UploadInput{Title: "bob public", Visibility: model.VisibilityPublic})
	require.NoError(t, err)

	mine, err := e.fileSvc.ListMine(ctx, alice.User.ID, service.ListFilesInput{Params: firstPage()})
	require.NoError(t, err)
	assert.Len(t, mine.Items, 3)
	assert.Equal(t, int64(3), mine.Meta.Total)

	public, err := e.fileSvc.ListPublic(ctx, "", firstPage())
	require.NoError(t, err)
	assert.Len(t, public.Items, 2)
	for _, f := range public.Items {
		assert.Equal(t, model.VisibilityPublic, f.Visibility)
	}

	search, err := e.fileSvc.ListMine(ctx, alice.User.ID, service.ListFilesInput{Search: "LOCKED", Params: firstPage()})
	require.NoError(t, err)
	require.Len(t, search.Items, 1)
	assert.Equal(t, "locked one", search.Items[0].Title)
	assert.Equal(t, int64(1), search.Meta.Total)
}

func TestUpdateVisibility(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := newEnv(t)
	alice := e.register(t, "alice")
	bob := e.register(t, "bob")

	file, err := e.upload(alice.User.ID, service.UploadInput{Visibility: model.VisibilityPublic})
	require.NoError(t, err)

	_, err = e.fileSvc.Update(ctx, bob.User.ID, file.ID, service.UpdateFileInput{Title: ptr("hijack")})
	assert.ErrorIs(t, err, service.ErrNotFileOwner)

	_, err = e.fileSvc.Update(ctx, alice.User.ID, file.ID, service.UpdateFileInput{Visibility: ptr(model.VisibilityPassword)})
	assert.ErrorIs(t, err, service.ErrFilePasswordEmpty)

	_, err = e.fileSvc.Update(ctx, alice.User.ID, file.ID, service.UpdateFileInput{
		Visibility: ptr(model.VisibilityPassword),
		Password:   ptr("abc123"),
	})
	require.NoError(t, err)

	// Keeping password visibility without a new password keeps the old hash.
	updated, err := e.fileSvc.Update(ctx, alice.User.ID, file.ID, service.UpdateFileInput{Title: ptr("renamed")})
	require.NoError(t, err)
	assert.Equal(t, "renamed", updated.Title)
	_, err = e.fileSvc.Get(ctx, file.ID, "", "abc123")
	assert.NoError(t, err)

	_, err = e.fileSvc.Update(ctx, alice.User.ID, file.ID, service.UpdateFileInput{Visibility: ptr(model.VisibilityPrivate)})
	require.NoError(t, err)
	stored, err := e.files.ByIDWithPassword(ctx, file.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.PasswordHash)

	_, err = e.fileSvc.Update(ctx, alice.User.ID, file.ID, service.UpdateFileInput{Title: ptr("   ")})
	assert.True(t, apperr.Is(err, apperr.Validation), "got %v", err)
}

func TestUpdateGroupMembership(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := newEnv(t)
	alice := e.register(t, "alice")

	group, err := e.groupSvc.Create(ctx, alice.User.ID, service.CreateGroupInput{Title: "docs"})
	require.NoError(t, err)
	file, err := e.upload(alice.User.ID, service.UploadInput{})
	require.NoError(t, err)

	updated, err := e.fileSvc.Update(ctx, alice.User.ID, file.ID, service.UpdateFileInput{GroupID: ptr(group.ID)})
	require.NoError(t, err)
	require.NotNil(t, updated.GroupID)
	assert.Equal(t, group.ID, *updated.GroupID)

	updated, err = e.fileSvc.Update(ctx, alice.User.ID, file.ID, service.UpdateFileInput{GroupID: ptr("")})
	require.NoError(t, err)
	assert.Nil(t, updated.GroupID)
}

func TestDeleteRemovesRecordThenObject(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := newEnv(t)
	alice := e.register(t, "alice")
	bob := e.register(t, "bob")

	file, err := e.upload(alice.User.ID, service.UploadInput{})
	require.NoError(t, err)

	err = e.fileSvc.Delete(ctx, bob.User.ID, file.ID)
	assert.ErrorIs(t, err, service.ErrNotFileOwner)

	require.NoError(t, e.fileSvc.Delete(ctx, alice.User.ID, file.ID))
	assert.False(t, e.store.has(file.StorageID))

	_, err = e.fileSvc.Get(ctx, file.ID, alice.User.ID, "")
	assert.ErrorIs(t, err, service.ErrFileNotFound)
}

func TestDeleteToleratesStorageFailure(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := newEnv(t)
	alice := e.register(t, "alice")

	file, err := e.upload(alice.User.ID, service.UploadInput{})
	require.NoError(t, err)

	e.store.deleteErr = errStorageDown
	require.NoError(t, e.fileSvc.Delete(ctx, alice.User.ID, file.ID))

	_, err = e.files.ByID(ctx, file.ID)
	assert.Error(t, err, "record is gone even though the object is orphaned")
	assert.True(t, e.store.has(file.StorageID))
}

func TestDeleteKeepsObjectWhenRecordDeleteFails(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := newEnv(t)
	alice := e.register(t, "alice")

	file, err := e.upload(alice.User.ID, service.UploadInput{})
	require.NoError(t, err)

	e.faults.deleteErr = errDatabaseDown
	err = e.fileSvc.Delete(ctx, alice.User.ID, file.ID)
	assert.True(t, apperr.Is(err, apperr.Upstream), "got %v", err)
	assert.ErrorIs(t, err, errDatabaseDown)

	stored, err := e.files.ByID(ctx, file.ID)
	require.NoError(t, err, "record survives")
	assert.Equal(t, file.StorageID, stored.StorageID)
	assert.True(t, e.store.has(file.StorageID), "object is not removed before the record")

	// Once the database recovers the delete goes through.
	e.faults.deleteErr = nil
	require.NoError(t, e.fileSvc.Delete(ctx, alice.User.ID, file.ID))
	assert.False(t, e.store.has(file.StorageID))
}

func TestQRCode(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := newEnv(t)
	alice := e.register(t, "alice")
	bob := e.register(t, "bob")

	file, err := e.upload(alice.User.ID, service.UploadInput{})
	require.NoError(t, err)

	png, err := e.fileSvc.QRCode(ctx, alice.User.ID, file.ID)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, []byte("\x89PNG")))

	_, err = e.fileSvc.QRCode(ctx, bob.User.ID, file.ID)
	assert.ErrorIs(t, err, service.ErrNotFileOwner)
}
