package db

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"

	"github.com/prajwalprabhu/File-Chat/internal/config"
)

func NewDB(sqldb *sql.DB, debug bool) *bun.DB {
	db := bun.NewDB(sqldb, pgdialect.New())
	if debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}
	return db
}

// ConnectDB opens the database with the driver named in cfg.
func ConnectDB(cfg *config.DatabaseConfig) (*sql.DB, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database dsn is empty")
	}
	switch cfg.Driver {
	case config.DriverPostgres:
		return sql.Open("postgres", cfg.DSN)
	case config.DriverPG, "":
		return sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.DSN))), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// InitDB creates the tables and indexes if they do not exist yet.
func InitDB(ctx context.Context, db *bun.DB) error {
	if _, err := db.NewCreateTable().Model((*File)(nil)).IfNotExists().Exec(ctx); err != nil {
		return fmt.Errorf("failed to create files table: %w", err)
	}
	if _, err := db.NewCreateTable().Model((*Chat)(nil)).IfNotExists().Exec(ctx); err != nil {
		return fmt.Errorf("failed to create chats table: %w", err)
	}
	if _, err := db.NewCreateTable().Model((*ChatMessage)(nil)).IfNotExists().
		ForeignKey(`("chat_id") REFERENCES "chats" ("id") ON DELETE CASCADE`).
		Exec(ctx); err != nil {
		return fmt.Errorf("failed to create chat_messages table: %w", err)
	}

	indexes := []struct {
		model   any
		name    string
		columns []string
	}{
		{(*File)(nil), "files_user_id_idx", []string{"user_id"}},
		{(*Chat)(nil), "chats_user_id_created_at_idx", []string{"user_id", "created_at"}},
		{(*ChatMessage)(nil), "chat_messages_chat_id_created_at_idx", []string{"chat_id", "created_at"}},
	}
	for _, idx := range indexes {
		if _, err := db.NewCreateIndex().Model(idx.model).Index(idx.name).Column(idx.columns...).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("failed to create index %s: %w", idx.name, err)
		}
	}
	return nil
}

// DropAll removes every table, used by tests and the reset command.
func DropAll(ctx context.Context, db *bun.DB) error {
	for _, model := range []any{(*ChatMessage)(nil), (*Chat)(nil), (*File)(nil)} {
		if _, err := db.NewDropTable().Model(model).IfExists().Cascade().Exec(ctx); err != nil {
			return err
		}
	}
	return nil
}
