package app

import (
	"context"

	"hype/internal/boost"
	"hype/internal/mastodon"
)

// homeAccount exposes the bot's home client to the boost engine.
type homeAccount struct {
	c *mastodon.Client
}

func (h homeAccount) Host() string { return h.c.Host() }

func (h homeAccount) SearchStatuses(ctx context.Context, uri string) ([]boost.LocalPost, error) {
	found, err := h.c.SearchStatuses(ctx, uri)
	if err != nil {
		return nil, err
	}
	out := make([]boost.LocalPost, 0, len(found))
	for _, st := range found {
		out = append(out, boost.LocalPost{
			ID:          st.ID,
			AccountAcct: st.Account.Acct,
			Reblogged:   st.IsReblogged(),
		})
	}
	return out, nil
}

func (h homeAccount) Reblog(ctx context.Context, id string) error {
	_, err := h.c.Reblog(ctx, id)
	return err
}

// timelineDialer opens source servers through the credential-storing dialer.
type timelineDialer struct {
	d *mastodon.Dialer
}

func (t timelineDialer) Open(ctx context.Context, server string) (boost.Timeline, error) {
	c, err := t.d.Open(ctx, server)
	if err != nil {
		return nil, err
	}
	return trends{c: c}, nil
}

type trends struct {
	c *mastodon.Client
}

func (t trends) TrendingStatuses(ctx context.Context, limit int) ([]boost.TrendingPost, error) {
	found, err := t.c.TrendingStatuses(ctx, limit)
	if err != nil {
		return nil, err
	}
	out := make([]boost.TrendingPost, 0, len(found))
	for i, st := range found {
		out = append(out, boost.TrendingPost{URI: st.URI, Rank: i})
	}
	return out, nil
}
