package storage

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	logx "hype/pkg/logx"
)

// fileStore is a dependency-free persistence backend.
//
// Files:
//   - <prefix>.apps.json   (credential snapshot, rewritten atomically)
//   - <prefix>.runs.jsonl  (append-only JSON Lines)
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	appsPath string
	apps     map[string]AppCredential

	runsFile *os.File
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		path = "./secrets/hype"
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}

	appsPath := prefix + ".apps.json"
	apps := map[string]AppCredential{}
	if err := loadApps(appsPath, apps); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	rf, err := os.OpenFile(prefix+".runs.jsonl", os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}

	log.Debug("file store opened", logx.String("prefix", prefix), logx.Int("apps", len(apps)))
	return &fileStore{
		log:      log,
		appsPath: appsPath,
		apps:     apps,
		runsFile: rf,
	}, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runsFile == nil {
		return nil
	}
	err := s.runsFile.Close()
	s.runsFile = nil
	return err
}

func (s *fileStore) GetAppCredential(ctx context.Context, server string) (AppCredential, bool, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.apps[normalizeServer(server)]
	return c, ok, nil
}

func (s *fileStore) PutAppCredential(ctx context.Context, cred AppCredential) error {
	_ = ctx
	key := normalizeServer(cred.Server)
	if key == "" {
		return errors.New("credential server is required")
	}
	cred.Server = key
	if cred.CreatedAt.IsZero() {
		cred.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	prev, had := s.apps[key]
	s.apps[key] = cred
	if err := s.writeAppsLocked(); err != nil {
		if had {
			s.apps[key] = prev
		} else {
			delete(s.apps, key)
		}
		return err
	}
	return nil
}

func (s *fileStore) AppendRun(ctx context.Context, r RunRecord) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runsFile == nil {
		return errors.New("run journal closed")
	}
	return json.NewEncoder(s.runsFile).Encode(r)
}

// writeAppsLocked replaces the snapshot via tmp file + rename.
func (s *fileStore) writeAppsLocked() error {
	tmp := s.appsPath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s.apps); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, s.appsPath)
}

func loadApps(path string, out map[string]AppCredential) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	var m map[string]AppCredential
	if err := json.NewDecoder(f).Decode(&m); err != nil {
		return err
	}
	for k, v := range m {
		out[normalizeServer(k)] = v
	}
	return nil
}
