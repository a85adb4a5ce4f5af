package auth_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	auth "github.com/goliatone/go-tokenauth"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const testSigningKey = "test-signing-key-0123456789abcdef"

func testOptions() auth.Options {
	opts := auth.DefaultOptions()
	opts.SigningKey = testSigningKey
	opts.BcryptCost = bcrypt.MinCost
	return opts
}

func testHasher() auth.PasswordHasher {
	return auth.NewBcryptHasher(bcrypt.MinCost)
}

func newTestCodec(t *testing.T, now time.Time) *auth.TokenCodec {
	t.Helper()
	codec, err := auth.NewTokenCodec(testOptions())
	require.NoError(t, err)
	return codec.WithClock(func() time.Time { return now })
}

// memoryUsers is an in-memory IdentityLookup and CredentialStore.
type memoryUsers struct {
	mu      sync.Mutex
	records map[string]auth.IdentityRecord
}

func newMemoryUsers() *memoryUsers {
	return &memoryUsers{records: map[string]auth.IdentityRecord{}}
}

func (m *memoryUsers) add(t *testing.T, username, password string, mutate ...func(*auth.IdentityRecord)) auth.IdentityRecord {
	t.Helper()
	hash, err := testHasher().HashPassword(password)
	require.NoError(t, err)

	rec := auth.IdentityRecord{
		UserID:    uuid.NewString(),
		UserName:  username,
		UserEmail: username + "@example.com",
		RoleName:  string(auth.RoleMember),
		Active:    true,
		Hash:      hash,
	}
	for _, fn := range mutate {
		fn(&rec)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rec.UserID] = rec
	return rec
}

func (m *memoryUsers) update(id string, fn func(*auth.IdentityRecord)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec := m.records[id]
	fn(&rec)
	m.records[id] = rec
}

func (m *memoryUsers) remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, id)
}

func (m *memoryUsers) get(id string) auth.IdentityRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.records[id]
}

func (m *memoryUsers) BySubject(_ context.Context, subject string) (auth.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.records {
		if rec.UserID == subject || strings.EqualFold(rec.UserEmail, subject) || rec.UserName == subject {
			return rec, nil
		}
	}
	return nil, auth.ErrIdentityNotFound.Clone()
}

func (m *memoryUsers) ByID(_ context.Context, id string) (auth.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.records[id]; ok {
		return rec, nil
	}
	return nil, auth.ErrIdentityNotFound.Clone()
}

func (m *memoryUsers) PersistCredentialHash(_ context.Context, id, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return auth.ErrIdentityNotFound.Clone()
	}
	rec.Hash = hash
	m.records[id] = rec
	return nil
}

// MockLookup is a testify mock of auth.IdentityLookup
type MockLookup struct {
	mock.Mock
}

func (m *MockLookup) BySubject(ctx context.Context, subject string) (auth.Identity, error) {
	args := m.Called(ctx, subject)
	identity, _ := args.Get(0).(auth.Identity)
	return identity, args.Error(1)
}

func (m *MockLookup) ByID(ctx context.Context, id string) (auth.Identity, error) {
	args := m.Called(ctx, id)
	identity, _ := args.Get(0).(auth.Identity)
	return identity, args.Error(1)
}

// recordingSink keeps every activity event
type recordingSink struct {
	mu     sync.Mutex
	events []auth.ActivityEvent
}

func (s *recordingSink) Record(_ context.Context, event auth.ActivityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *recordingSink) ofType(eventType auth.ActivityEventType) []auth.ActivityEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []auth.ActivityEvent
	for _, e := range s.events {
		if e.EventType == eventType {
			out = append(out, e)
		}
	}
	return out
}
