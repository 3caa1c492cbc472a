package service_test

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/templui/fileshare/internal/db"
	"github.com/templui/fileshare/internal/model"
	"github.com/templui/fileshare/internal/repository"
	"github.com/templui/fileshare/internal/security"
	"github.com/templui/fileshare/internal/service"
	"github.com/templui/fileshare/internal/storage"
	"github.com/templui/fileshare/internal/validation"
)

var (
	errStorageDown  = errors.New("storage unavailable")
	errDatabaseDown = errors.New("database unavailable")
)

// faultyFiles passes through to a real file repository unless told to fail.
type faultyFiles struct {
	repository.FileRepository
	deleteErr error
	clearErr  error
}

func (f *faultyFiles) Delete(ctx context.Context, id string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	return f.FileRepository.Delete(ctx, id)
}

func (f *faultyFiles) ClearGroup(ctx context.Context, groupID string) (int64, error) {
	if f.clearErr != nil {
		return 0, f.clearErr
	}
	return f.FileRepository.ClearGroup(ctx, groupID)
}

// memStorage keeps objects in a map and can be told to fail.
type memStorage struct {
	mu        sync.Mutex
	objects   map[string][]byte
	uploadErr error
	deleteErr error
}

func newMemStorage() *memStorage {
	return &memStorage{objects: map[string][]byte{}}
}

func (s *memStorage) Upload(_ context.Context, key, _ string, body io.Reader) (*storage.Object, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.uploadErr != nil {
		return nil, s.uploadErr
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}
	s.objects[key] = data
	return &storage.Object{ID: key, URL: "http://cdn.test/" + key, SecureURL: "https://cdn.test/" + key}, nil
}

func (s *memStorage) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.deleteErr != nil {
		return s.deleteErr
	}
	if _, ok := s.objects[id]; !ok {
		return storage.ErrObjectNotFound
	}
	delete(s.objects, id)
	return nil
}

func (s *memStorage) has(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[id]
	return ok
}

func (s *memStorage) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}

type env struct {
	users    repository.UserRepository
	files    repository.FileRepository
	groups   repository.GroupRepository
	store    *memStorage
	faults   *faultyFiles
	auth     *service.AuthService
	fileSvc  *service.FileService
	groupSvc *service.GroupService
}

func newEnv(t *testing.T) *env {
	t.Helper()

	conn := newTestDB(t)
	e := &env{
		users:  repository.NewUserRepository(conn),
		files:  repository.NewFileRepository(conn),
		groups: repository.NewGroupRepository(conn),
		store:  newMemStorage(),
	}
	e.faults = &faultyFiles{FileRepository: e.files}

	hasher := security.NewHasher(bcrypt.MinCost)
	tokens := security.NewTokenManager("test-secret-that-is-long-enough-123", time.Hour)
	e.auth = service.NewAuthService(e.users, hasher, tokens)
	e.fileSvc = service.NewFileService(
		e.faults,
		e.groups,
		e.store,
		hasher,
		validation.NewFileConstraints([]string{".txt", ".pdf"}, 1024),
		"fileshare",
		func(id string) string { return "http://client.test/shared/" + id },
	)
	e.groupSvc = service.NewGroupService(e.groups, e.faults)
	return e
}

func newTestDB(t *testing.T) *sqlx.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "test.db") + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	conn, err := db.Init("sqlite", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	require.NoError(t, db.RunMigrations(context.Background(), conn.DB, "sqlite"))
	return conn
}

func (e *env) register(t *testing.T, name string) *service.Session {
	t.Helper()

	session, err := e.auth.Register(context.Background(), service.RegisterInput{
		Username: name,
		Email:    name + "@example.com",
		Password: "secret1",
	})
	require.NoError(t, err)
	return session
}

func (e *env) upload(ownerID string, in service.UploadInput) (*model.File, error) {
	if in.Filename == "" {
		in.Filename = "notes.txt"
	}
	content := "content of " + in.Filename
	if in.Size == 0 {
		in.Size = int64(len(content))
	}
	in.ContentType = "text/plain"
	in.Body = strings.NewReader(content)

	return e.fileSvc.Upload(context.Background(), ownerID, in)
}
