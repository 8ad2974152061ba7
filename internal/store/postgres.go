package store

import (
	"context"
	"fmt"

	"github.com/example/octiv-sniper/internal/db"
	"github.com/example/octiv-sniper/internal/migrate"
)

type postgresBackend struct {
	db *db.DB
}

func openPostgres(ctx context.Context, dsn string) (*postgresBackend, error) {
	d, err := db.Open(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := d.Ping(ctx); err != nil {
		d.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}

	sqlDB := d.SQL()
	_, err = migrate.Up(ctx, sqlDB, migrate.Postgres)
	_ = sqlDB.Close()
	if err != nil {
		d.Close()
		return nil, err
	}
	return &postgresBackend{db: d}, nil
}

func (p *postgresBackend) read(ctx context.Context) ([]byte, error) {
	var doc []byte
	err := p.db.QueryRow(ctx, `SELECT document::text FROM settings WHERE id = 1`).Scan(&doc)
	if db.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, db.WrapNotFound(err)
	}
	return doc, nil
}

func (p *postgresBackend) write(ctx context.Context, b []byte) error {
	err := p.db.Exec(ctx, `
INSERT INTO settings (id, document, updated_at) VALUES (1, $1::jsonb, now())
ON CONFLICT (id) DO UPDATE SET document = EXCLUDED.document, updated_at = EXCLUDED.updated_at`, string(b))
	if err != nil {
		return fmt.Errorf("store: write settings: %w", err)
	}
	return nil
}

func (p *postgresBackend) close() error {
	p.db.Close()
	return nil
}
