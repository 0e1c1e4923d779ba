package storage

import (
	"context"
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "file": JSON snapshot + JSONL journal next to Path
//   - "sqlite": SQLite database file at Path
//   - "memory": process-local; credentials are re-registered after restart
//
// If Driver is empty it defaults to "file".
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Store is the persistence API used by the app and the Mastodon dialer.
type Store interface {
	GetAppCredential(ctx context.Context, server string) (cred AppCredential, ok bool, err error)
	PutAppCredential(ctx context.Context, cred AppCredential) error
	AppendRun(ctx context.Context, r RunRecord) error
	Close() error
}

// AppCredential is an OAuth application registered on one server.
// Treat every field except Server as secret.
type AppCredential struct {
	Server       string    `json:"server"`
	ClientID     string    `json:"client_id"`
	ClientSecret string    `json:"client_secret"`
	AccessToken  string    `json:"access_token,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// RunRecord summarizes one boost cycle.
// Keep it compact and schema-stable.
type RunRecord struct {
	ID             string        `json:"id"`
	Started        time.Time     `json:"started"`
	Finished       time.Time     `json:"finished"`
	Sources        int           `json:"sources"`
	Boosted        int           `json:"boosted"`
	AlreadyBoosted int           `json:"already_boosted"`
	Filtered       int           `json:"filtered"`
	Unresolved     int           `json:"unresolved"`
	FailedSources  []FailedEntry `json:"failed_sources,omitempty"`
}

type FailedEntry struct {
	Source string `json:"source"`
	Stage  string `json:"stage"`
	Error  string `json:"error"`
}
