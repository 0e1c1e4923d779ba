package mastodon

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"hype/internal/storage"
	logx "hype/pkg/logx"
)

// CredentialStore keeps one registered application per server.
type CredentialStore interface {
	GetAppCredential(ctx context.Context, server string) (storage.AppCredential, bool, error)
	PutAppCredential(ctx context.Context, cred storage.AppCredential) error
}

type DialerConfig struct {
	AppName string
	Website string
	Scopes  string

	// Client is the template for every per-server client; Server and
	// AccessToken are filled in by the dialer.
	Client Config
}

// Dialer opens clients for source servers. On first contact with a server it
// registers an application there and stores the credentials; later contacts
// (and later processes) reuse them. Clients are cached for the dialer's lifetime.
type Dialer struct {
	cfg   DialerConfig
	store CredentialStore
	log   logx.Logger

	mu      sync.Mutex
	clients map[string]*Client
}

func NewDialer(cfg DialerConfig, store CredentialStore, log logx.Logger) *Dialer {
	if log.IsZero() {
		log = logx.Nop()
	}
	if strings.TrimSpace(cfg.AppName) == "" {
		cfg.AppName = "hype"
	}
	if strings.TrimSpace(cfg.Scopes) == "" {
		cfg.Scopes = "read"
	}
	return &Dialer{cfg: cfg, store: store, log: log, clients: map[string]*Client{}}
}

func (d *Dialer) Open(ctx context.Context, server string) (*Client, error) {
	key := strings.ToLower(strings.TrimSpace(server))
	if key == "" {
		return nil, fmt.Errorf("mastodon: empty server name")
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if c, ok := d.clients[key]; ok {
		return c, nil
	}

	cred, err := d.credential(ctx, key)
	if err != nil {
		return nil, err
	}

	cfg := d.cfg.Client
	cfg.Server = key
	cfg.AccessToken = cred.AccessToken
	c, err := NewClient(cfg)
	if err != nil {
		return nil, err
	}
	d.clients[key] = c
	return c, nil
}

// Forget drops a cached client, e.g. after its server was unsubscribed.
func (d *Dialer) Forget(server string) {
	d.mu.Lock()
	delete(d.clients, strings.ToLower(strings.TrimSpace(server)))
	d.mu.Unlock()
}

func (d *Dialer) credential(ctx context.Context, server string) (storage.AppCredential, error) {
	if d.store != nil {
		cred, ok, err := d.store.GetAppCredential(ctx, server)
		if err != nil {
			return storage.AppCredential{}, fmt.Errorf("load credentials for %s: %w", server, err)
		}
		if ok {
			d.log.Debug("client already initialized", logx.String("server", server))
			return cred, nil
		}
	}

	d.log.Info("initialize client", logx.String("server", server))
	anon := d.cfg.Client
	anon.Server = server
	anon.AccessToken = ""
	reg, err := NewClient(anon)
	if err != nil {
		return storage.AppCredential{}, err
	}
	app, err := reg.RegisterApp(ctx, d.cfg.AppName, d.cfg.Scopes, d.cfg.Website)
	if err != nil {
		return storage.AppCredential{}, fmt.Errorf("register app: %w", err)
	}
	cred := storage.AppCredential{Server: server, ClientID: app.ClientID, ClientSecret: app.ClientSecret}

	// Trends are public on most servers; an app token only helps where they aren't.
	if tok, err := reg.AppToken(ctx, app.ClientID, app.ClientSecret, d.cfg.Scopes); err != nil {
		d.log.Warn("app token unavailable; using anonymous access", logx.String("server", server), logx.Err(err))
	} else {
		cred.AccessToken = tok
	}

	if d.store != nil {
		if err := d.store.PutAppCredential(ctx, cred); err != nil {
			return storage.AppCredential{}, fmt.Errorf("store credentials for %s: %w", server, err)
		}
	}
	return cred, nil
}
