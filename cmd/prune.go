package cmd

import (
	"fmt"
	"log"
	"time"

	"github.com/spf13/cobra"
)

var (
	pruneTokenRetention time.Duration
	pruneAuditRetention time.Duration
	pruneDryRun         bool
)

// pruneCmd is the retention maintenance job, meant to run from cron. Expired
// or revoked refresh tokens are hard-deleted once they can no longer be
// presented; audit entries age out after the retention window.
var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete expired refresh tokens and aged-out audit entries",
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

		tokenCutoff := time.Now().Add(-pruneTokenRetention)
		auditCutoff := time.Now().Add(-pruneAuditRetention)

		if pruneDryRun {
			var tokens, entries int64
			if err := db.QueryRow(
				"SELECT count(*) FROM refresh_tokens WHERE expires_at < $1 OR revoked_at < $1",
				tokenCutoff).Scan(&tokens); err != nil {
				log.Fatalf("failed to count prunable tokens: %v", err)
			}
			if err := db.QueryRow(
				"SELECT count(*) FROM audit_entries WHERE created_at < $1",
				auditCutoff).Scan(&entries); err != nil {
				log.Fatalf("failed to count prunable audit entries: %v", err)
			}
			fmt.Printf("dry run: would delete %d refresh tokens and %d audit entries\n", tokens, entries)
			return
		}

		res, err := db.Exec(
			"DELETE FROM refresh_tokens WHERE expires_at < $1 OR revoked_at < $1",
			tokenCutoff)
		if err != nil {
			log.Fatalf("failed to prune refresh tokens: %v", err)
		}
		tokens, _ := res.RowsAffected()

		res, err = db.Exec("DELETE FROM audit_entries WHERE created_at < $1", auditCutoff)
		if err != nil {
			log.Fatalf("failed to prune audit entries: %v", err)
		}
		entries, _ := res.RowsAffected()

		fmt.Printf("pruned %d refresh tokens and %d audit entries\n", tokens, entries)
	},
}

func init() {
	pruneCmd.Flags().DurationVar(&pruneTokenRetention, "token-retention", 30*24*time.Hour, "how long dead refresh tokens are kept for forensics")
	pruneCmd.Flags().DurationVar(&pruneAuditRetention, "audit-retention", 365*24*time.Hour, "how long audit entries are kept")
	pruneCmd.Flags().BoolVar(&pruneDryRun, "dry-run", false, "report what would be deleted without deleting")
}
