package user

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
	"github.com/frahmantamala/dashboard-management/internal/rbac"
)

func TestUser(t *testing.T) {
	gomega.RegisterFailHandler(ginkgo.Fail)
	ginkgo.RunSpecs(t, "User Module Suite")
}

type mockRepository struct {
	users   map[int64]*userDatamodel.User
	nextID  int64
	failure error
}

func newMockRepository() *mockRepository {
	return &mockRepository{users: make(map[int64]*userDatamodel.User), nextID: 1}
}

func (m *mockRepository) Create(_ context.Context, u *userDatamodel.User) error {
	if m.failure != nil {
		return m.failure
	}
	for _, existing := range m.users {
		if existing.Username == u.Username {
			return internal.ErrDuplicateUsername
		}
		if existing.Email == u.Email {
			return internal.ErrDuplicateEmail
		}
	}
	u.ID = m.nextID
	m.nextID++
	m.users[u.ID] = u
	return nil
}

func (m *mockRepository) GetByID(_ context.Context, id int64) (*userDatamodel.User, error) {
	u, ok := m.users[id]
	if !ok || u.IsDeleted {
		return nil, ErrNotFound
	}
	return u, nil
}

func (m *mockRepository) GetByUsername(_ context.Context, username string) (*userDatamodel.User, error) {
	for _, u := range m.users {
		if u.Username == username && !u.IsDeleted {
			return u, nil
		}
	}
	return nil, ErrNotFound
}

func (m *mockRepository) List(_ context.Context, includeInactive bool, _, _ int) ([]*userDatamodel.User, error) {
	var out []*userDatamodel.User
	for _, u := range m.users {
		if u.IsDeleted {
			continue
		}
		if !includeInactive && !u.IsActive {
			continue
		}
		out = append(out, u)
	}
	return out, nil
}

func (m *mockRepository) UpdatePassword(_ context.Context, id int64, hash string) error {
	u, ok := m.users[id]
	if !ok {
		return ErrNotFound
	}
	u.PasswordHash = hash
	u.MustChangePassword = false
	return nil
}

func (m *mockRepository) SetActive(_ context.Context, id int64, active bool) error {
	u, ok := m.users[id]
	if !ok {
		return ErrNotFound
	}
	u.IsActive = active
	return nil
}

func (m *mockRepository) ClearLockout(_ context.Context, id int64) error {
	u, ok := m.users[id]
	if !ok {
		return ErrNotFound
	}
	u.FailedLoginCount = 0
	u.LockedUntil = nil
	return nil
}

func (m *mockRepository) SoftDelete(_ context.Context, id int64) error {
	u, ok := m.users[id]
	if !ok {
		return ErrNotFound
	}
	u.IsDeleted = true
	u.IsActive = false
	return nil
}

func (m *mockRepository) clone() map[int64]*userDatamodel.User {
	users := make(map[int64]*userDatamodel.User, len(m.users))
	for k, v := range m.users {
		u := *v
		users[k] = &u
	}
	return users
}

// rollbackTx mirrors transactional semantics over the in-memory repository:
// every write inside a failed function is undone.
type rollbackTx struct {
	repo *mockRepository
}

func (t *rollbackTx) InTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	snapshot := t.repo.clone()
	nextID := t.repo.nextID
	if err := fn(ctx); err != nil {
		t.repo.users = snapshot
		t.repo.nextID = nextID
		return err
	}
	return nil
}

type mockRoleAssigner struct {
	assigned map[int64][]string
	failure  error
}

func (m *mockRoleAssigner) AssignRole(_ context.Context, userID int64, roleName string, _ *time.Time) error {
	if m.failure != nil {
		return m.failure
	}
	if m.assigned == nil {
		m.assigned = make(map[int64][]string)
	}
	m.assigned[userID] = append(m.assigned[userID], roleName)
	return nil
}

type stubResolver struct {
	roles []string
	perms []string
	admin bool
}

func (s *stubResolver) RolesForUser(_ context.Context, _ int64) ([]string, error) {
	return s.roles, nil
}

func (s *stubResolver) PermissionsForUser(_ context.Context, _ int64) ([]string, error) {
	return s.perms, nil
}

func (s *stubResolver) IsAdmin(_ context.Context, _ int64) (bool, error) {
	return s.admin, nil
}

type mockSessionRevoker struct {
	revokedFor []int64
}

func (m *mockSessionRevoker) RevokeAllForUser(_ context.Context, userID int64, _, _ string) error {
	m.revokedFor = append(m.revokedFor, userID)
	return nil
}

type captureRecorder struct {
	entries []*audit.Entry
	failure error
}

func (c *captureRecorder) Record(_ context.Context, entry *audit.Entry) error {
	if c.failure != nil {
		return c.failure
	}
	c.entries = append(c.entries, entry)
	return nil
}

func (c *captureRecorder) RecordAsync(_ context.Context, entry *audit.Entry) {
	c.entries = append(c.entries, entry)
}

func (c *captureRecorder) operations() []string {
	ops := make([]string, 0, len(c.entries))
	for _, e := range c.entries {
		ops = append(ops, e.Operation)
	}
	return ops
}

var _ = ginkgo.Describe("UserService", func() {
	var (
		service  *Service
		repo     *mockRepository
		roles    *mockRoleAssigner
		resolver *stubResolver
		sessions *mockSessionRevoker
		recorder *captureRecorder
		ctx      context.Context
	)

	registerDTO := RegisterDTO{
		Username:  "alice",
		Email:     "alice@example.com",
		Password:  "Sup3rSecret!",
		FirstName: "Alice",
		LastName:  "Doe",
	}

	ginkgo.BeforeEach(func() {
		repo = newMockRepository()
		roles = &mockRoleAssigner{}
		resolver = &stubResolver{roles: []string{"viewer"}, perms: []string{"Dashboard.Read"}}
		sessions = &mockSessionRevoker{}
		recorder = &captureRecorder{}
		logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		service = NewService(repo, roles, resolver, sessions, &rollbackTx{repo: repo}, recorder, logger)
		ctx = context.Background()
	})

	ginkgo.Describe("Register", func() {
		ginkgo.It("should create the account with a hashed password and the default role", func() {
			created, err := service.Register(ctx, registerDTO, "alice", "10.0.0.1")

			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(created.ID).To(gomega.Equal(int64(1)))

			stored := repo.users[1]
			gomega.Expect(stored.PasswordHash).ToNot(gomega.Equal(registerDTO.Password))
			gomega.Expect(bcrypt.CompareHashAndPassword(
				[]byte(stored.PasswordHash), []byte(registerDTO.Password))).To(gomega.Succeed())
			gomega.Expect(roles.assigned[1]).To(gomega.ConsistOf(rbac.DefaultRoleName))
			gomega.Expect(recorder.operations()).To(gomega.ConsistOf(audit.OpUserCreated))
		})

		ginkgo.It("should pass the duplicate username conflict through", func() {
			_, err := service.Register(ctx, registerDTO, "alice", "10.0.0.1")
			gomega.Expect(err).ToNot(gomega.HaveOccurred())

			dup := registerDTO
			dup.Email = "other@example.com"
			_, err = service.Register(ctx, dup, "alice", "10.0.0.1")

			gomega.Expect(errors.Is(err, internal.ErrDuplicateUsername)).To(gomega.BeTrue())
		})

		ginkgo.It("should still create the account when the default role cannot be assigned", func() {
			roles.failure = errors.New("role store down")

			created, err := service.Register(ctx, registerDTO, "alice", "10.0.0.1")

			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(created).ToNot(gomega.BeNil())
			gomega.Expect(repo.users).To(gomega.HaveLen(1))
		})

		ginkgo.It("should fail when the audit write fails", func() {
			recorder.failure = internal.ErrAuditWriteFailed

			_, err := service.Register(ctx, registerDTO, "alice", "10.0.0.1")

			gomega.Expect(errors.Is(err, internal.ErrAuditWriteFailed)).To(gomega.BeTrue())
			gomega.Expect(repo.users).To(gomega.BeEmpty())
		})

		ginkgo.It("should reject an invalid payload before touching the store", func() {
			bad := registerDTO
			bad.Email = "not-an-email"

			_, err := service.Register(ctx, bad, "alice", "10.0.0.1")

			gomega.Expect(err).To(gomega.HaveOccurred())
			gomega.Expect(repo.users).To(gomega.BeEmpty())
		})
	})

	ginkgo.Describe("GetByID", func() {
		ginkgo.It("should enrich the user with roles and permissions", func() {
			_, err := service.Register(ctx, registerDTO, "alice", "10.0.0.1")
			gomega.Expect(err).ToNot(gomega.HaveOccurred())

			u, err := service.GetByID(ctx, 1)

			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(u.Roles).To(gomega.ConsistOf("viewer"))
			gomega.Expect(u.Permissions).To(gomega.ConsistOf("Dashboard.Read"))
		})

		ginkgo.It("should map a missing user to the domain error", func() {
			_, err := service.GetByID(ctx, 42)

			gomega.Expect(errors.Is(err, internal.ErrUserNotFound)).To(gomega.BeTrue())
		})
	})

	ginkgo.Describe("ChangePassword", func() {
		ginkgo.BeforeEach(func() {
			_, err := service.Register(ctx, registerDTO, "alice", "10.0.0.1")
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			recorder.entries = nil
		})

		ginkgo.It("should store the new hash and revoke every session", func() {
			dto := ChangePasswordDTO{CurrentPassword: registerDTO.Password, NewPassword: "N3wSecret!pass"}

			gomega.Expect(service.ChangePassword(ctx, 1, dto, "alice", "10.0.0.1")).To(gomega.Succeed())

			gomega.Expect(bcrypt.CompareHashAndPassword(
				[]byte(repo.users[1].PasswordHash), []byte("N3wSecret!pass"))).To(gomega.Succeed())
			gomega.Expect(sessions.revokedFor).To(gomega.ConsistOf(int64(1)))
			gomega.Expect(recorder.operations()).To(gomega.ConsistOf(audit.OpPasswordChanged))
		})

		ginkgo.It("should reject a wrong current password without changing anything", func() {
			dto := ChangePasswordDTO{CurrentPassword: "wrong-password", NewPassword: "N3wSecret!pass"}

			err := service.ChangePassword(ctx, 1, dto, "alice", "10.0.0.1")

			gomega.Expect(errors.Is(err, internal.ErrInvalidCredentials)).To(gomega.BeTrue())
			gomega.Expect(sessions.revokedFor).To(gomega.BeEmpty())
		})
	})

	ginkgo.Describe("SetActive", func() {
		ginkgo.BeforeEach(func() {
			_, err := service.Register(ctx, registerDTO, "alice", "10.0.0.1")
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			recorder.entries = nil
		})

		ginkgo.It("should audit deactivation with its own operation kind", func() {
			gomega.Expect(service.SetActive(ctx, 1, false, "admin", "10.0.0.1")).To(gomega.Succeed())

			gomega.Expect(repo.users[1].IsActive).To(gomega.BeFalse())
			gomega.Expect(recorder.operations()).To(gomega.ConsistOf(audit.OpUserDeactivated))
		})

		ginkgo.It("should do nothing when the state already matches", func() {
			gomega.Expect(service.SetActive(ctx, 1, true, "admin", "10.0.0.1")).To(gomega.Succeed())

			gomega.Expect(recorder.entries).To(gomega.BeEmpty())
		})
	})

	ginkgo.Describe("Unlock", func() {
		ginkgo.It("should clear the counter and window and audit the change", func() {
			_, err := service.Register(ctx, registerDTO, "alice", "10.0.0.1")
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			until := time.Now().Add(20 * time.Minute)
			repo.users[1].FailedLoginCount = 5
			repo.users[1].LockedUntil = &until
			recorder.entries = nil

			gomega.Expect(service.Unlock(ctx, 1, "admin", "10.0.0.1")).To(gomega.Succeed())

			gomega.Expect(repo.users[1].FailedLoginCount).To(gomega.BeZero())
			gomega.Expect(repo.users[1].LockedUntil).To(gomega.BeNil())
			gomega.Expect(recorder.operations()).To(gomega.ConsistOf(audit.OpAccountUnlocked))
		})
	})

	ginkgo.Describe("Delete", func() {
		ginkgo.It("should soft-delete, revoke sessions, and keep the row", func() {
			_, err := service.Register(ctx, registerDTO, "alice", "10.0.0.1")
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			recorder.entries = nil

			gomega.Expect(service.Delete(ctx, 1, "admin", "10.0.0.1")).To(gomega.Succeed())

			gomega.Expect(repo.users[1].IsDeleted).To(gomega.BeTrue())
			gomega.Expect(sessions.revokedFor).To(gomega.ConsistOf(int64(1)))
			gomega.Expect(recorder.operations()).To(gomega.ConsistOf(audit.OpUserDeleted))

			_, err = service.GetByID(ctx, 1)
			gomega.Expect(errors.Is(err, internal.ErrUserNotFound)).To(gomega.BeTrue())
		})
	})
})
