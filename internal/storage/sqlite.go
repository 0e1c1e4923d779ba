package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	logx "hype/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	log.Debug("sqlite store opened", logx.String("path", path))
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) GetAppCredential(ctx context.Context, server string) (AppCredential, bool, error) {
	if s == nil || s.db == nil {
		return AppCredential{}, false, ErrDisabled
	}
	var (
		c       AppCredential
		token   sql.NullString
		created string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT server, client_id, client_secret, access_token, created_at FROM app_credentials WHERE server = ?`,
		normalizeServer(server),
	).Scan(&c.Server, &c.ClientID, &c.ClientSecret, &token, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return AppCredential{}, false, nil
	}
	if err != nil {
		return AppCredential{}, false, err
	}
	c.AccessToken = token.String
	c.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	return c, true, nil
}

func (s *sqliteStore) PutAppCredential(ctx context.Context, cred AppCredential) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	key := normalizeServer(cred.Server)
	if key == "" {
		return errors.New("credential server is required")
	}
	if cred.CreatedAt.IsZero() {
		cred.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO app_credentials(server, client_id, client_secret, access_token, created_at) VALUES(?,?,?,?,?)
		 ON CONFLICT(server) DO UPDATE SET client_id=excluded.client_id, client_secret=excluded.client_secret,
		   access_token=excluded.access_token, created_at=excluded.created_at`,
		key, cred.ClientID, cred.ClientSecret, nullStr(cred.AccessToken), cred.CreatedAt.Format(time.RFC3339Nano),
	)
	return err
}

func (s *sqliteStore) AppendRun(ctx context.Context, r RunRecord) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	var failed string
	if len(r.FailedSources) > 0 {
		b, err := json.Marshal(r.FailedSources)
		if err != nil {
			return err
		}
		failed = string(b)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs(id, started, finished, sources, boosted, already_boosted, filtered, unresolved, failed)
		 VALUES(?,?,?,?,?,?,?,?,?)`,
		r.ID, r.Started.Format(time.RFC3339Nano), r.Finished.Format(time.RFC3339Nano), r.Sources,
		r.Boosted, r.AlreadyBoosted, r.Filtered, r.Unresolved, nullStr(failed),
	)
	return err
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
