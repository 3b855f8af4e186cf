package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/iliyamo/agency-portal/internal/config"
)

type table struct {
	name    string
	columns []string
	// indexes maps an index name to its column list.
	indexes [][2]string
}

// {ts} is replaced by the dialect's timestamp type.
var schema = []table{
	{
		name: "users",
		columns: []string{
			"id VARCHAR(36) NOT NULL PRIMARY KEY",
			"name VARCHAR(120) NOT NULL",
			"email VARCHAR(190) NOT NULL UNIQUE",
			"password_hash VARCHAR(255) NOT NULL",
			"role VARCHAR(16) NOT NULL",
			"company VARCHAR(190) NOT NULL DEFAULT ''",
			"avatar VARCHAR(512) NOT NULL DEFAULT ''",
			"is_active BOOLEAN NOT NULL DEFAULT 1",
			"last_login {ts} NULL",
			"created_at {ts} NOT NULL",
		},
		indexes: [][2]string{{"idx_users_role", "role"}},
	},
	{
		name: "refresh_tokens",
		columns: []string{
			"id VARCHAR(36) NOT NULL PRIMARY KEY",
			"user_id VARCHAR(36) NOT NULL",
			"token_hash CHAR(64) NOT NULL UNIQUE",
			"expires_at {ts} NOT NULL",
			"revoked_at {ts} NULL",
			"created_at {ts} NOT NULL",
			"FOREIGN KEY (user_id) REFERENCES users(id)",
		},
		indexes: [][2]string{{"idx_refresh_tokens_user", "user_id"}},
	},
	{
		name: "projects",
		columns: []string{
			"id VARCHAR(36) NOT NULL PRIMARY KEY",
			"client_id VARCHAR(36) NOT NULL",
			"title VARCHAR(200) NOT NULL",
			"description TEXT NOT NULL",
			"stage VARCHAR(32) NOT NULL",
			"progress_percent INT NOT NULL DEFAULT 0",
			"status VARCHAR(16) NOT NULL",
			"milestone_date {ts} NULL",
			"created_at {ts} NOT NULL",
			"updated_at {ts} NOT NULL",
			"FOREIGN KEY (client_id) REFERENCES users(id)",
		},
		indexes: [][2]string{{"idx_projects_client", "client_id"}, {"idx_projects_created", "created_at"}},
	},
	{
		name: "messages",
		columns: []string{
			"id VARCHAR(36) NOT NULL PRIMARY KEY",
			"project_id VARCHAR(36) NOT NULL",
			"sender_id VARCHAR(36) NOT NULL",
			"sender_name VARCHAR(120) NOT NULL",
			"sender_role VARCHAR(16) NOT NULL",
			"text TEXT NOT NULL",
			"is_system BOOLEAN NOT NULL DEFAULT 0",
			"created_at {ts} NOT NULL",
			"FOREIGN KEY (project_id) REFERENCES projects(id)",
		},
		indexes: [][2]string{{"idx_messages_project", "project_id, created_at"}},
	},
	{
		name: "project_files",
		columns: []string{
			"id VARCHAR(36) NOT NULL PRIMARY KEY",
			"project_id VARCHAR(36) NOT NULL",
			"name VARCHAR(255) NOT NULL",
			"size VARCHAR(32) NOT NULL",
			"url VARCHAR(1024) NOT NULL",
			"uploaded_by VARCHAR(120) NOT NULL",
			"created_at {ts} NOT NULL",
			"FOREIGN KEY (project_id) REFERENCES projects(id)",
		},
		indexes: [][2]string{{"idx_project_files_project", "project_id, created_at"}},
	},
	{
		// project_id is either a project id or the literal "system"; no FK.
		name: "activity_logs",
		columns: []string{
			"id VARCHAR(36) NOT NULL PRIMARY KEY",
			"project_id VARCHAR(36) NOT NULL",
			"type VARCHAR(32) NOT NULL",
			"content TEXT NOT NULL",
			"created_at {ts} NOT NULL",
		},
		indexes: [][2]string{{"idx_activity_logs_project", "project_id, created_at"}},
	},
	{
		name: "contact_requests",
		columns: []string{
			"id VARCHAR(36) NOT NULL PRIMARY KEY",
			"name VARCHAR(120) NOT NULL",
			"email VARCHAR(190) NOT NULL",
			"service VARCHAR(120) NOT NULL DEFAULT ''",
			"message TEXT NOT NULL",
			"created_at {ts} NOT NULL",
		},
	},
	{
		name: "work_requests",
		columns: []string{
			"id VARCHAR(36) NOT NULL PRIMARY KEY",
			"name VARCHAR(120) NOT NULL",
			"email VARCHAR(190) NOT NULL",
			"phone VARCHAR(40) NOT NULL",
			"company VARCHAR(190) NOT NULL DEFAULT ''",
			"budget VARCHAR(64) NOT NULL DEFAULT ''",
			"description TEXT NOT NULL",
			"created_at {ts} NOT NULL",
		},
	},
	{
		name: "subscribers",
		columns: []string{
			"email VARCHAR(190) NOT NULL PRIMARY KEY",
			"created_at {ts} NOT NULL",
		},
	},
}

// Migrate creates any missing table. It is safe to run on every start.
func Migrate(ctx context.Context, db *sql.DB, driver string) error {
	for _, stmt := range Statements(driver) {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%s: %w", firstLine(stmt), err)
		}
	}
	return nil
}

// Statements renders the DDL for driver. MySQL gets inline KEY clauses
// because it has no CREATE INDEX IF NOT EXISTS; SQLite gets separate
// CREATE INDEX statements because it has no inline index syntax.
func Statements(driver string) []string {
	ts, suffix := "DATETIME(6)", " ENGINE=InnoDB DEFAULT CHARSET=utf8mb4"
	if driver == config.DriverSQLite {
		ts, suffix = "DATETIME", ""
	}
	var out []string
	for _, t := range schema {
		cols := make([]string, 0, len(t.columns)+len(t.indexes))
		for _, c := range t.columns {
			cols = append(cols, strings.ReplaceAll(c, "{ts}", ts))
		}
		if driver != config.DriverSQLite {
			for _, idx := range t.indexes {
				cols = append(cols, fmt.Sprintf("KEY %s (%s)", idx[0], idx[1]))
			}
		}
		out = append(out, fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n  %s\n)%s", t.name, strings.Join(cols, ",\n  "), suffix))
		if driver == config.DriverSQLite {
			for _, idx := range t.indexes {
				out = append(out, fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s)", idx[0], t.name, idx[1]))
			}
		}
	}
	return out
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
