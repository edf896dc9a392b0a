package auth

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"
	"golang.org/x/crypto/bcrypt"

	"github.com/frahmantamala/dashboard-management/internal"
	"github.com/frahmantamala/dashboard-management/internal/audit"
	userDatamodel "github.com/frahmantamala/dashboard-management/internal/core/datamodel/user"
	"github.com/frahmantamala/dashboard-management/internal/token"
)

func TestAuth(t *testing.T) {
	gomega.RegisterFailHandler(ginkgo.Fail)
	ginkgo.RunSpecs(t, "Auth Module Suite")
}

type mockCredentialStore struct {
	users       map[string]*userDatamodel.User
	returnError error
}

func newMockCredentialStore() *mockCredentialStore {
	hash, _ := bcrypt.GenerateFromPassword([]byte("correct_password"), bcrypt.MinCost)

	return &mockCredentialStore{
		users: map[string]*userDatamodel.User{
			"alice": {
				ID:           1,
				Username:     "alice",
				Email:        "alice@example.com",
				PasswordHash: string(hash),
				IsActive:     true,
			},
			"bob": {
				ID:           2,
				Username:     "bob",
				Email:        "bob@example.com",
				PasswordHash: string(hash),
				IsActive:     false,
			},
		},
	}
}

func (m *mockCredentialStore) GetByIdentifier(_ context.Context, identifier string) (*userDatamodel.User, error) {
	if m.returnError != nil {
		return nil, m.returnError
	}
	for _, u := range m.users {
		if u.Username == identifier || u.Email == identifier {
			return u, nil
		}
	}
	return nil, ErrUserNotFound
}

func (m *mockCredentialStore) RecordFailedAttempt(_ context.Context, userID int64, threshold int, lockUntil time.Time) (int, bool, error) {
	for _, u := range m.users {
		if u.ID == userID {
			u.FailedLoginCount++
			if u.FailedLoginCount >= threshold {
				until := lockUntil
				u.LockedUntil = &until
				return u.FailedLoginCount, true, nil
			}
			return u.FailedLoginCount, false, nil
		}
	}
	return 0, false, errors.New("user not found")
}

func (m *mockCredentialStore) ResetLockout(_ context.Context, userID int64, lastLogin time.Time) error {
	for _, u := range m.users {
		if u.ID == userID {
			u.FailedLoginCount = 0
			u.LockedUntil = nil
			u.LastLoginAt = &lastLogin
			return nil
		}
	}
	return errors.New("user not found")
}

func (m *mockCredentialStore) clone() map[string]*userDatamodel.User {
	users := make(map[string]*userDatamodel.User, len(m.users))
	for k, v := range m.users {
		u := *v
		users[k] = &u
	}
	return users
}

// rollbackTx mirrors transactional semantics over the in-memory store: the
// lockout bookkeeping is restored when the wrapped function fails.
type rollbackTx struct {
	store *mockCredentialStore
}

func (t *rollbackTx) InTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	snapshot := t.store.clone()
	if err := fn(ctx); err != nil {
		t.store.users = snapshot
		return err
	}
	return nil
}

type mockRoleResolver struct {
	roles   map[int64][]string
	admins  map[int64]bool
	perms   map[int64][]string
	failure error
}

func (m *mockRoleResolver) RolesForUser(_ context.Context, userID int64) ([]string, error) {
	return m.roles[userID], m.failure
}

func (m *mockRoleResolver) IsAdmin(_ context.Context, userID int64) (bool, error) {
	return m.admins[userID], m.failure
}

func (m *mockRoleResolver) PermissionsForUser(_ context.Context, userID int64) ([]string, error) {
	return m.perms[userID], m.failure
}

type mockTokenIssuer struct {
	issuedFor []*token.Subject
}

func (m *mockTokenIssuer) Issue(_ context.Context, subject *token.Subject, _ string) (*token.TokenPair, error) {
	m.issuedFor = append(m.issuedFor, subject)
	return &token.TokenPair{AccessToken: "access", RefreshToken: "refresh", TokenType: "bearer"}, nil
}

func (m *mockTokenIssuer) Rotate(_ context.Context, _, _ string) (*token.TokenPair, error) {
	return &token.TokenPair{AccessToken: "rotated", RefreshToken: "rotated-refresh"}, nil
}

func (m *mockTokenIssuer) RevokeByToken(_ context.Context, _, _, _ string) error  { return nil }
func (m *mockTokenIssuer) RevokeAllForUser(_ context.Context, _ int64, _, _ string) error {
	return nil
}
func (m *mockTokenIssuer) ValidateAccess(_ string) (*token.Claims, error) { return nil, nil }

type mockAuditRecorder struct {
	entries []*audit.Entry
	failure error
}

func (m *mockAuditRecorder) Record(_ context.Context, entry *audit.Entry) error {
	if m.failure != nil {
		return m.failure
	}
	m.entries = append(m.entries, entry)
	return nil
}

func (m *mockAuditRecorder) operations() []string {
	ops := make([]string, 0, len(m.entries))
	for _, e := range m.entries {
		ops = append(ops, e.Operation)
	}
	return ops
}

var _ = ginkgo.Describe("AuthService", func() {
	var (
		service  *Service
		store    *mockCredentialStore
		resolver *mockRoleResolver
		issuer   *mockTokenIssuer
		recorder *mockAuditRecorder
		ctx      context.Context
	)

	ginkgo.BeforeEach(func() {
		ctx = context.Background()
		store = newMockCredentialStore()
		resolver = &mockRoleResolver{
			roles:  map[int64][]string{1: {"viewer"}},
			admins: map[int64]bool{},
			perms:  map[int64][]string{1: {"Dashboard.Read"}},
		}
		issuer = &mockTokenIssuer{}
		recorder = &mockAuditRecorder{}
		logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		service = NewService(store, resolver, issuer, &rollbackTx{store: store}, recorder, logger, 5, 30*time.Minute)
	})

	ginkgo.Describe("Authenticate", func() {
		ginkgo.Context("when credentials are valid", func() {
			ginkgo.It("should return a token pair", func() {
				tokens, err := service.Authenticate(ctx, LoginDTO{Identifier: "alice", Password: "correct_password"}, "10.0.0.1")

				gomega.Expect(err).ToNot(gomega.HaveOccurred())
				gomega.Expect(tokens.AccessToken).ToNot(gomega.BeEmpty())
				gomega.Expect(issuer.issuedFor).To(gomega.HaveLen(1))
				gomega.Expect(issuer.issuedFor[0].UserID).To(gomega.Equal(int64(1)))
			})

			ginkgo.It("should accept email as identifier", func() {
				_, err := service.Authenticate(ctx, LoginDTO{Identifier: "alice@example.com", Password: "correct_password"}, "10.0.0.1")

				gomega.Expect(err).ToNot(gomega.HaveOccurred())
			})

			ginkgo.It("should reset the failure counter", func() {
				for i := 0; i < 3; i++ {
					_, _ = service.Authenticate(ctx, LoginDTO{Identifier: "alice", Password: "wrong"}, "10.0.0.1")
				}
				gomega.Expect(store.users["alice"].FailedLoginCount).To(gomega.Equal(3))

				_, err := service.Authenticate(ctx, LoginDTO{Identifier: "alice", Password: "correct_password"}, "10.0.0.1")

				gomega.Expect(err).ToNot(gomega.HaveOccurred())
				gomega.Expect(store.users["alice"].FailedLoginCount).To(gomega.Equal(0))
			})

			ginkgo.It("should audit the successful attempt", func() {
				_, err := service.Authenticate(ctx, LoginDTO{Identifier: "alice", Password: "correct_password"}, "10.0.0.1")

				gomega.Expect(err).ToNot(gomega.HaveOccurred())
				gomega.Expect(recorder.operations()).To(gomega.ContainElement(audit.OpLoginAttempt))
			})
		})

		ginkgo.Context("when the password is wrong", func() {
			ginkgo.It("should return invalid credentials and increment the counter", func() {
				_, err := service.Authenticate(ctx, LoginDTO{Identifier: "alice", Password: "wrong"}, "10.0.0.1")

				gomega.Expect(errors.Is(err, internal.ErrInvalidCredentials)).To(gomega.BeTrue())
				gomega.Expect(store.users["alice"].FailedLoginCount).To(gomega.Equal(1))
			})

			ginkgo.It("should lock the account exactly at the threshold", func() {
				for i := 0; i < 4; i++ {
					_, err := service.Authenticate(ctx, LoginDTO{Identifier: "alice", Password: "wrong"}, "10.0.0.1")
					gomega.Expect(errors.Is(err, internal.ErrInvalidCredentials)).To(gomega.BeTrue())
				}
				gomega.Expect(store.users["alice"].LockedUntil).To(gomega.BeNil())

				_, err := service.Authenticate(ctx, LoginDTO{Identifier: "alice", Password: "wrong"}, "10.0.0.1")

				gomega.Expect(errors.Is(err, internal.ErrAccountLocked)).To(gomega.BeTrue())
				gomega.Expect(store.users["alice"].LockedUntil).ToNot(gomega.BeNil())
				gomega.Expect(recorder.operations()).To(gomega.ContainElement(audit.OpAccountLocked))
			})
		})

		ginkgo.Context("when the account is locked", func() {
			ginkgo.BeforeEach(func() {
				until := time.Now().Add(30 * time.Minute)
				store.users["alice"].LockedUntil = &until
				store.users["alice"].FailedLoginCount = 5
			})

			ginkgo.It("should reject the correct password without consulting the hash", func() {
				_, err := service.Authenticate(ctx, LoginDTO{Identifier: "alice", Password: "correct_password"}, "10.0.0.1")

				gomega.Expect(errors.Is(err, internal.ErrAccountLocked)).To(gomega.BeTrue())
			})

			ginkgo.It("should not increment the counter further", func() {
				_, _ = service.Authenticate(ctx, LoginDTO{Identifier: "alice", Password: "wrong"}, "10.0.0.1")

				gomega.Expect(store.users["alice"].FailedLoginCount).To(gomega.Equal(5))
			})

			ginkgo.It("should allow login again after the window expires", func() {
				past := time.Now().Add(-time.Minute)
				store.users["alice"].LockedUntil = &past

				_, err := service.Authenticate(ctx, LoginDTO{Identifier: "alice", Password: "correct_password"}, "10.0.0.1")

				gomega.Expect(err).ToNot(gomega.HaveOccurred())
				gomega.Expect(store.users["alice"].LockedUntil).To(gomega.BeNil())
			})
		})

		ginkgo.Context("when the identifier is unknown", func() {
			ginkgo.It("should return the same error as a wrong password", func() {
				_, err := service.Authenticate(ctx, LoginDTO{Identifier: "nobody", Password: "whatever"}, "10.0.0.1")

				gomega.Expect(errors.Is(err, internal.ErrInvalidCredentials)).To(gomega.BeTrue())
			})
		})

		ginkgo.Context("when the account is inactive", func() {
			ginkgo.It("should reject even with the correct password", func() {
				_, err := service.Authenticate(ctx, LoginDTO{Identifier: "bob", Password: "correct_password"}, "10.0.0.1")

				gomega.Expect(errors.Is(err, internal.ErrAccountInactive)).To(gomega.BeTrue())
			})
		})

		ginkgo.Context("when the credential lookup fails", func() {
			ginkgo.It("should not mask the outage as invalid credentials", func() {
				store.returnError = errors.New("connection refused")

				_, err := service.Authenticate(ctx, LoginDTO{Identifier: "alice", Password: "correct_password"}, "10.0.0.1")

				gomega.Expect(err).To(gomega.HaveOccurred())
				gomega.Expect(errors.Is(err, internal.ErrInvalidCredentials)).To(gomega.BeFalse())
			})
		})

		ginkgo.Context("when the audit write fails", func() {
			ginkgo.It("should fail the login attempt", func() {
				recorder.failure = internal.ErrAuditWriteFailed

				_, err := service.Authenticate(ctx, LoginDTO{Identifier: "alice", Password: "wrong"}, "10.0.0.1")

				gomega.Expect(errors.Is(err, internal.ErrAuditWriteFailed)).To(gomega.BeTrue())
			})

			ginkgo.It("should roll the counter increment back", func() {
				recorder.failure = internal.ErrAuditWriteFailed

				_, _ = service.Authenticate(ctx, LoginDTO{Identifier: "alice", Password: "wrong"}, "10.0.0.1")

				gomega.Expect(store.users["alice"].FailedLoginCount).To(gomega.Equal(0))
			})

			ginkgo.It("should roll the lockout back at the threshold", func() {
				for i := 0; i < 4; i++ {
					_, _ = service.Authenticate(ctx, LoginDTO{Identifier: "alice", Password: "wrong"}, "10.0.0.1")
				}
				recorder.failure = internal.ErrAuditWriteFailed

				_, err := service.Authenticate(ctx, LoginDTO{Identifier: "alice", Password: "wrong"}, "10.0.0.1")

				gomega.Expect(errors.Is(err, internal.ErrAuditWriteFailed)).To(gomega.BeTrue())
				gomega.Expect(store.users["alice"].FailedLoginCount).To(gomega.Equal(4))
				gomega.Expect(store.users["alice"].LockedUntil).To(gomega.BeNil())
			})
		})

		ginkgo.Context("when the dto is incomplete", func() {
			ginkgo.It("should fail validation before touching the store", func() {
				_, err := service.Authenticate(ctx, LoginDTO{Identifier: "", Password: ""}, "10.0.0.1")

				gomega.Expect(err).To(gomega.HaveOccurred())
				gomega.Expect(store.users["alice"].FailedLoginCount).To(gomega.Equal(0))
			})
		})
	})
})
