package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/dukapos/dukapos/internal/shared"
)

// ============================================================================
// MOCK REPOSITORY
// ============================================================================

type mockRepository struct {
	users  map[int64]*User
	nextID int64
}

func newMockRepository() *mockRepository {
	return &mockRepository{users: make(map[int64]*User), nextID: 1}
}

func (m *mockRepository) FindByIdentifier(ctx context.Context, identifier string) (*User, error) {
	for _, u := range m.users {
		if u.Username == identifier || u.Email == identifier {
			cp := *u
			return &cp, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (m *mockRepository) FindByID(ctx context.Context, id int64) (*User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *mockRepository) Create(ctx context.Context, user User) (*User, error) {
	for _, u := range m.users {
		if u.Username == user.Username {
			return nil, ErrUsernameTaken
		}
		if u.Email == user.Email {
			return nil, ErrEmailTaken
		}
	}
	user.ID = m.nextID
	m.nextID++
	user.CreatedAt = time.Now()
	m.users[user.ID] = &user
	return &user, nil
}

func (m *mockRepository) UpdatePassword(ctx context.Context, id int64, hash string) error {
	u, ok := m.users[id]
	if !ok {
		return shared.ErrNotFound
	}
	u.PasswordHash = hash
	return nil
}

func (m *mockRepository) TouchLastLogin(ctx context.Context, id int64, at time.Time) error {
	u, ok := m.users[id]
	if !ok {
		return shared.ErrNotFound
	}
	u.LastLogin = &at
	return nil
}

// ============================================================================
// TESTS
// ============================================================================

func seedUser(t *testing.T, repo *mockRepository, status Status) *User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("hunter22"), bcrypt.MinCost)
	require.NoError(t, err)
	user := &User{
		ID:           1,
		Name:         "Amina Yusuf",
		Email:        "amina@dukapos.local",
		Username:     "amina",
		PasswordHash: string(hash),
		Role:         RoleSeller,
		Status:       status,
	}
	repo.users[1] = user
	repo.nextID = 2
	return user
}

func TestAuthenticateSuccess(t *testing.T) {
	repo := newMockRepository()
	seedUser(t, repo, StatusActive)
	svc := NewService(repo)

	at := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	svc.WithNow(func() time.Time { return at })

	user, err := svc.Authenticate(context.Background(), "amina", "hunter22")
	require.NoError(t, err)
	assert.Equal(t, "amina", user.Username)
	require.NotNil(t, user.LastLogin)
	assert.True(t, user.LastLogin.Equal(at))
}

func TestAuthenticateByEmail(t *testing.T) {
	repo := newMockRepository()
	seedUser(t, repo, StatusActive)
	svc := NewService(repo)

	user, err := svc.Authenticate(context.Background(), "amina@dukapos.local", "hunter22")
	require.NoError(t, err)
	assert.Equal(t, int64(1), user.ID)
}

func TestAuthenticateWrongPassword(t *testing.T) {
	repo := newMockRepository()
	seedUser(t, repo, StatusActive)
	svc := NewService(repo)

	_, err := svc.Authenticate(context.Background(), "amina", "wrong")
	assert.True(t, errors.Is(err, shared.ErrInvalidCredentials))
}

func TestAuthenticateUnknownUser(t *testing.T) {
	svc := NewService(newMockRepository())

	_, err := svc.Authenticate(context.Background(), "ghost", "whatever")
	// Unknown identifier and bad password are indistinguishable to the caller.
	assert.True(t, errors.Is(err, shared.ErrInvalidCredentials))
}

func TestAuthenticateInactiveAccount(t *testing.T) {
	repo := newMockRepository()
	seedUser(t, repo, StatusInactive)
	svc := NewService(repo)

	// Inactive is reported before the credential is even checked.
	_, err := svc.Authenticate(context.Background(), "amina", "wrong")
	assert.True(t, errors.Is(err, shared.ErrAccountInactive))

	_, err = svc.Authenticate(context.Background(), "amina", "hunter22")
	assert.True(t, errors.Is(err, shared.ErrAccountInactive))
}

func TestRegisterDefaultsToSeller(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo)

	user, err := svc.Register(context.Background(), RegisterInput{
		Name:     "Brian Otieno",
		Email:    "brian@dukapos.local",
		Username: "brian",
		Password: "s3cret99",
	})
	require.NoError(t, err)
	assert.Equal(t, RoleSeller, user.Role)
	assert.Equal(t, StatusActive, user.Status)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("s3cret99")))
}

func TestRegisterDuplicateUsername(t *testing.T) {
	repo := newMockRepository()
	seedUser(t, repo, StatusActive)
	svc := NewService(repo)

	_, err := svc.Register(context.Background(), RegisterInput{
		Name:     "Another Amina",
		Email:    "other@dukapos.local",
		Username: "amina",
		Password: "s3cret99",
	})
	assert.True(t, errors.Is(err, ErrUsernameTaken))
}

func TestChangePassword(t *testing.T) {
	repo := newMockRepository()
	seedUser(t, repo, StatusActive)
	svc := NewService(repo)
	ctx := context.Background()

	err := svc.ChangePassword(ctx, 1, "wrong", "newpass1")
	assert.True(t, errors.Is(err, shared.ErrInvalidCredentials))

	require.NoError(t, svc.ChangePassword(ctx, 1, "hunter22", "newpass1"))

	_, err = svc.Authenticate(ctx, "amina", "hunter22")
	assert.Error(t, err)
	_, err = svc.Authenticate(ctx, "amina", "newpass1")
	assert.NoError(t, err)
}
