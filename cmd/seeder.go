package cmd

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"github.com/frahmantamala/dashboard-management/internal/rbac"
)

var (
	seedAdminUsername string
	seedAdminEmail    string
	seedAdminPassword string
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the database with the bootstrap roles and admin account",
	Long:  `Create the system roles, the well-known permission set, and the initial superadmin account. Safe to run repeatedly.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(".")
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}

		db, err := initDB(cfg.Database)
		if err != nil {
			log.Fatalf("failed to init db: %v", err)
		}
		defer db.Close()

		roles := []struct {
			Name     string
			IsSystem bool
		}{
			{rbac.SuperRoleName, true},
			{"admin", true},
			{rbac.DefaultRoleName, true},
		}
		for _, r := range roles {
			var exists int
			if err := db.QueryRow("SELECT 1 FROM roles WHERE name = $1", r.Name).Scan(&exists); err == nil {
				continue
			}
			if _, err := db.Exec(
				"INSERT INTO roles (name, is_system, is_active, created_at) VALUES ($1, $2, true, now())",
				r.Name, r.IsSystem); err != nil {
				log.Fatalf("failed to insert role %s: %v", r.Name, err)
			}
			fmt.Println("seeded role:", r.Name)
		}

		permissions := []struct {
			Resource  string
			Operation string
		}{
			{"Dashboard", "Read"},
			{"Dashboard", "Write"},
			{"Dashboard", "Delete"},
			{"Employee", "Read"},
			{"Employee", "Manage"},
			{"User", "Manage"},
			{"Rbac", "Manage"},
			{"Audit", "Read"},
		}
		for _, p := range permissions {
			name := fmt.Sprintf("%s.%s", p.Resource, p.Operation)
			var exists int
			if err := db.QueryRow("SELECT 1 FROM permissions WHERE name = $1", name).Scan(&exists); err == nil {
				continue
			}
			if _, err := db.Exec(
				"INSERT INTO permissions (name, resource, operation, is_active, created_at) VALUES ($1, $2, $3, true, now())",
				name, p.Resource, p.Operation); err != nil {
				log.Fatalf("failed to insert permission %s: %v", name, err)
			}
			fmt.Println("seeded permission:", name)
		}

		// Viewer gets read-only dashboard and employee access; the super role
		// needs no grants because resolution bypasses it.
		viewerGrants := []string{rbac.PermDashboardRead, rbac.PermEmployeeRead}
		for _, permName := range viewerGrants {
			var exists int
			err := db.QueryRow(`
SELECT 1 FROM role_permissions rp
JOIN roles r ON r.id = rp.role_id
JOIN permissions p ON p.id = rp.permission_id
WHERE r.name = $1 AND p.name = $2`, rbac.DefaultRoleName, permName).Scan(&exists)
			if err == nil {
				continue
			}
			if _, err := db.Exec(`
INSERT INTO role_permissions (role_id, permission_id, is_active, created_at)
SELECT r.id, p.id, true, now() FROM roles r, permissions p
WHERE r.name = $1 AND p.name = $2`, rbac.DefaultRoleName, permName); err != nil {
				log.Fatalf("failed to grant %s to %s: %v", permName, rbac.DefaultRoleName, err)
			}
			fmt.Printf("granted %s to %s\n", permName, rbac.DefaultRoleName)
		}

		var adminID int64
		err = db.QueryRow("SELECT id FROM users WHERE username = $1", seedAdminUsername).Scan(&adminID)
		if err != nil {
			hash, hashErr := bcrypt.GenerateFromPassword([]byte(seedAdminPassword), cfg.Security.BCryptCost)
			if hashErr != nil {
				log.Fatalf("failed to hash admin password: %v", hashErr)
			}
			if err := db.QueryRow(`
INSERT INTO users (username, email, password_hash, password_algo, is_active, must_change_password, created_at, updated_at)
VALUES ($1, $2, $3, 'bcrypt', true, true, now(), now())
RETURNING id`, seedAdminUsername, seedAdminEmail, string(hash)).Scan(&adminID); err != nil {
				log.Fatalf("failed to insert admin user: %v", err)
			}
			fmt.Println("seeded admin user:", seedAdminUsername)
		}

		var exists int
		err = db.QueryRow(`
SELECT 1 FROM role_assignments ra
JOIN roles r ON r.id = ra.role_id
WHERE ra.user_id = $1 AND r.name = $2 AND ra.is_active = true`, adminID, rbac.SuperRoleName).Scan(&exists)
		if err != nil {
			if _, err := db.Exec(`
INSERT INTO role_assignments (user_id, role_id, assigned_at, is_active)
SELECT $1, id, now(), true FROM roles WHERE name = $2`, adminID, rbac.SuperRoleName); err != nil {
				log.Fatalf("failed to assign %s to admin: %v", rbac.SuperRoleName, err)
			}
			fmt.Printf("assigned %s to %s\n", rbac.SuperRoleName, seedAdminUsername)
		}

		fmt.Println("seeding complete")
	},
}

func init() {
	seedCmd.Flags().StringVar(&seedAdminUsername, "admin-username", "admin", "username for the bootstrap admin account")
	seedCmd.Flags().StringVar(&seedAdminEmail, "admin-email", "admin@example.com", "email for the bootstrap admin account")
	seedCmd.Flags().StringVar(&seedAdminPassword, "admin-password", "changeme-now", "initial password for the bootstrap admin account")
}
