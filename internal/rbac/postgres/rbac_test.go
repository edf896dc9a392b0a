package postgres_test

import (
	"context"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/frahmantamala/dashboard-management/internal/core/database"
	rbacDatamodel "github.com/frahmantamala/dashboard-management/internal/core/datamodel/rbac"
	"github.com/frahmantamala/dashboard-management/internal/rbac"
	rbacPostgres "github.com/frahmantamala/dashboard-management/internal/rbac/postgres"
)

func TestRbacPostgres(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "RBAC Postgres Suite")
}

// SQLite-compatible models for testing; the postgres defaults do not apply.
type SQLiteRole struct {
	ID        int64  `gorm:"primaryKey"`
	Name      string `gorm:"column:name;uniqueIndex;not null"`
	IsSystem  bool   `gorm:"column:is_system"`
	IsActive  bool   `gorm:"column:is_active"`
	CreatedAt time.Time
}

func (SQLiteRole) TableName() string { return "roles" }

type SQLitePermission struct {
	ID        int64  `gorm:"primaryKey"`
	Name      string `gorm:"column:name;uniqueIndex;not null"`
	Resource  string `gorm:"column:resource"`
	Operation string `gorm:"column:operation"`
	IsActive  bool   `gorm:"column:is_active"`
	CreatedAt time.Time
}

func (SQLitePermission) TableName() string { return "permissions" }

type SQLiteRoleAssignment struct {
	ID         int64 `gorm:"primaryKey"`
	UserID     int64 `gorm:"column:user_id;index"`
	RoleID     int64 `gorm:"column:role_id;index"`
	AssignedBy *int64
	AssignedAt time.Time
	ExpiresAt  *time.Time
	IsActive   bool `gorm:"column:is_active"`
}

func (SQLiteRoleAssignment) TableName() string { return "role_assignments" }

type SQLiteRolePermission struct {
	ID           int64 `gorm:"primaryKey"`
	RoleID       int64 `gorm:"column:role_id;index"`
	PermissionID int64 `gorm:"column:permission_id;index"`
	GrantedBy    *int64
	IsActive     bool `gorm:"column:is_active"`
	CreatedAt    time.Time
}

func (SQLiteRolePermission) TableName() string { return "role_permissions" }

var _ = Describe("RBAC Store and Resolver", func() {
	var (
		db       *gorm.DB
		store    rbac.Store
		resolver *rbac.Resolver
		ctx      context.Context
		now      time.Time
	)

	const aliceID int64 = 1

	grantSetup := func(roleName, permName string) (*rbacDatamodel.Role, *rbacDatamodel.Permission) {
		role := &rbacDatamodel.Role{Name: roleName, IsActive: true, CreatedAt: now}
		Expect(store.CreateRole(ctx, role)).To(Succeed())

		perm := &rbacDatamodel.Permission{
			Name: permName, Resource: "Dashboard", Operation: "Delete",
			IsActive: true, CreatedAt: now,
		}
		Expect(store.CreatePermission(ctx, perm)).To(Succeed())

		Expect(store.CreateAssignment(ctx, &rbacDatamodel.RoleAssignment{
			UserID: aliceID, RoleID: role.ID, AssignedAt: now, IsActive: true,
		})).To(Succeed())

		Expect(store.CreateGrant(ctx, &rbacDatamodel.RolePermission{
			RoleID: role.ID, PermissionID: perm.ID, IsActive: true, CreatedAt: now,
		})).To(Succeed())

		return role, perm
	}

	BeforeEach(func() {
		var err error
		db, err = gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		Expect(err).NotTo(HaveOccurred())

		err = db.AutoMigrate(&SQLiteRole{}, &SQLitePermission{},
			&SQLiteRoleAssignment{}, &SQLiteRolePermission{})
		Expect(err).NotTo(HaveOccurred())

		store = rbacPostgres.NewRbacStore(db)
		resolver = rbac.NewResolver(store)
		ctx = context.Background()
		now = time.Now()
	})

	Describe("HasPermission", func() {
		It("should resolve an effective grant through the full join", func() {
			grantSetup("editor", "Dashboard.Delete")

			allowed, err := resolver.HasPermission(ctx, aliceID, "Dashboard.Delete")
			Expect(err).NotTo(HaveOccurred())
			Expect(allowed).To(BeTrue())
		})

		It("should deny a permission the user's roles never received", func() {
			grantSetup("editor", "Dashboard.Delete")

			allowed, err := resolver.HasPermission(ctx, aliceID, "Rbac.Manage")
			Expect(err).NotTo(HaveOccurred())
			Expect(allowed).To(BeFalse())
		})

		It("should deny when the role is deactivated", func() {
			role, _ := grantSetup("editor", "Dashboard.Delete")

			Expect(store.SetRoleActive(ctx, role.ID, false)).To(Succeed())

			allowed, err := resolver.HasPermission(ctx, aliceID, "Dashboard.Delete")
			Expect(err).NotTo(HaveOccurred())
			Expect(allowed).To(BeFalse())
		})

		It("should deny when the assignment is deactivated", func() {
			role, _ := grantSetup("editor", "Dashboard.Delete")

			affected, err := store.DeactivateAssignment(ctx, aliceID, role.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(affected).To(Equal(int64(1)))

			allowed, err := resolver.HasPermission(ctx, aliceID, "Dashboard.Delete")
			Expect(err).NotTo(HaveOccurred())
			Expect(allowed).To(BeFalse())
		})

		It("should deny when the grant is deactivated", func() {
			role, perm := grantSetup("editor", "Dashboard.Delete")

			affected, err := store.DeactivateGrant(ctx, role.ID, perm.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(affected).To(Equal(int64(1)))

			allowed, err := resolver.HasPermission(ctx, aliceID, "Dashboard.Delete")
			Expect(err).NotTo(HaveOccurred())
			Expect(allowed).To(BeFalse())
		})

		It("should deny when the assignment has expired", func() {
			role := &rbacDatamodel.Role{Name: "editor", IsActive: true, CreatedAt: now}
			Expect(store.CreateRole(ctx, role)).To(Succeed())
			perm := &rbacDatamodel.Permission{
				Name: "Dashboard.Delete", Resource: "Dashboard", Operation: "Delete",
				IsActive: true, CreatedAt: now,
			}
			Expect(store.CreatePermission(ctx, perm)).To(Succeed())

			expired := now.Add(-time.Hour)
			Expect(store.CreateAssignment(ctx, &rbacDatamodel.RoleAssignment{
				UserID: aliceID, RoleID: role.ID, AssignedAt: now.Add(-2 * time.Hour),
				ExpiresAt: &expired, IsActive: true,
			})).To(Succeed())
			Expect(store.CreateGrant(ctx, &rbacDatamodel.RolePermission{
				RoleID: role.ID, PermissionID: perm.ID, IsActive: true, CreatedAt: now,
			})).To(Succeed())

			allowed, err := resolver.HasPermission(ctx, aliceID, "Dashboard.Delete")
			Expect(err).NotTo(HaveOccurred())
			Expect(allowed).To(BeFalse())
		})

		It("should allow everything for a superadmin holder without any grants", func() {
			super := &rbacDatamodel.Role{Name: rbac.SuperRoleName, IsSystem: true, IsActive: true, CreatedAt: now}
			Expect(store.CreateRole(ctx, super)).To(Succeed())
			Expect(store.CreateAssignment(ctx, &rbacDatamodel.RoleAssignment{
				UserID: aliceID, RoleID: super.ID, AssignedAt: now, IsActive: true,
			})).To(Succeed())

			allowed, err := resolver.HasPermission(ctx, aliceID, "Anything.AtAll")
			Expect(err).NotTo(HaveOccurred())
			Expect(allowed).To(BeTrue())

			isAdmin, err := resolver.IsAdmin(ctx, aliceID)
			Expect(err).NotTo(HaveOccurred())
			Expect(isAdmin).To(BeTrue())
		})
	})

	Describe("PermissionsForUser", func() {
		It("should return the distinct effective permission names", func() {
			grantSetup("editor", "Dashboard.Delete")

			perms, err := resolver.PermissionsForUser(ctx, aliceID)
			Expect(err).NotTo(HaveOccurred())
			Expect(perms).To(ConsistOf("Dashboard.Delete"))
		})

		It("should return nothing for a user with no assignments", func() {
			grantSetup("editor", "Dashboard.Delete")

			perms, err := resolver.PermissionsForUser(ctx, 99)
			Expect(err).NotTo(HaveOccurred())
			Expect(perms).To(BeEmpty())
		})
	})

	Describe("RoleNamesForUser", func() {
		It("should list active unexpired role names", func() {
			grantSetup("editor", "Dashboard.Delete")

			roles, err := resolver.RolesForUser(ctx, aliceID)
			Expect(err).NotTo(HaveOccurred())
			Expect(roles).To(ConsistOf("editor"))
		})
	})

	Describe("transactions", func() {
		It("should roll every write in a failed transaction back", func() {
			tm := database.NewTxManager(db)

			err := tm.InTransaction(ctx, func(txCtx context.Context) error {
				role := &rbacDatamodel.Role{Name: "editor", IsActive: true, CreatedAt: now}
				if err := store.CreateRole(txCtx, role); err != nil {
					return err
				}
				if err := store.CreateAssignment(txCtx, &rbacDatamodel.RoleAssignment{
					UserID: aliceID, RoleID: role.ID, AssignedAt: now, IsActive: true,
				}); err != nil {
					return err
				}
				return context.DeadlineExceeded
			})
			Expect(err).To(MatchError(context.DeadlineExceeded))

			_, err = store.GetRoleByName(ctx, "editor")
			Expect(err).To(MatchError(rbac.ErrRoleNotFound))

			var count int64
			Expect(db.Model(&SQLiteRoleAssignment{}).Count(&count).Error).To(Succeed())
			Expect(count).To(BeZero())
		})

		It("should commit when the function succeeds", func() {
			tm := database.NewTxManager(db)

			err := tm.InTransaction(ctx, func(txCtx context.Context) error {
				return store.CreateRole(txCtx, &rbacDatamodel.Role{Name: "editor", IsActive: true, CreatedAt: now})
			})
			Expect(err).NotTo(HaveOccurred())

			role, err := store.GetRoleByName(ctx, "editor")
			Expect(err).NotTo(HaveOccurred())
			Expect(role.Name).To(Equal("editor"))
		})
	})

	Describe("uniqueness", func() {
		It("should reject a duplicate role name", func() {
			Expect(store.CreateRole(ctx, &rbacDatamodel.Role{Name: "editor", IsActive: true, CreatedAt: now})).To(Succeed())

			err := store.CreateRole(ctx, &rbacDatamodel.Role{Name: "editor", IsActive: true, CreatedAt: now})
			Expect(err).To(MatchError(rbac.ErrDuplicateRole))
		})

		It("should reject a duplicate permission name", func() {
			Expect(store.CreatePermission(ctx, &rbacDatamodel.Permission{
				Name: "Dashboard.Read", Resource: "Dashboard", Operation: "Read", IsActive: true, CreatedAt: now,
			})).To(Succeed())

			err := store.CreatePermission(ctx, &rbacDatamodel.Permission{
				Name: "Dashboard.Read", Resource: "Dashboard", Operation: "Read", IsActive: true, CreatedAt: now,
			})
			Expect(err).To(MatchError(rbac.ErrDuplicatePermission))
		})
	})
})
