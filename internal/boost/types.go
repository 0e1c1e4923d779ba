package boost

import (
	"context"
	"sort"
	"strings"
)

// Source is one subscribed server and the number of trending posts considered per cycle.
type Source struct {
	Name  string
	Limit int
}

// TrendingPost is a post surfaced by a server's trending ranking.
// Rank is its 0-based position in the fetch result.
type TrendingPost struct {
	URI  string
	Rank int
}

// LocalPost is the home-server representation of a remote post, found by URI search.
type LocalPost struct {
	ID          string
	AccountAcct string // "user@origin.example", or "user" for home-server accounts
	Reblogged   bool
}

// Home is the bot's authenticated session on its home server.
type Home interface {
	// Host is the home server hostname; it is the origin of accounts without a domain part.
	Host() string
	// SearchStatuses resolves a post URI to local statuses. An empty result means unresolved.
	SearchStatuses(ctx context.Context, uri string) ([]LocalPost, error)
	Reblog(ctx context.Context, id string) error
}

// Timeline reads trending posts from one source server.
type Timeline interface {
	TrendingStatuses(ctx context.Context, limit int) ([]TrendingPost, error)
}

// Dialer opens a Timeline for a source server, authenticating as needed.
type Dialer interface {
	Open(ctx context.Context, server string) (Timeline, error)
}

// FilterSet holds server hostnames whose authored posts are never boosted.
type FilterSet map[string]struct{}

func NewFilterSet(servers ...string) FilterSet {
	fs := make(FilterSet, len(servers))
	for _, s := range servers {
		s = normalizeHost(s)
		if s == "" {
			continue
		}
		fs[s] = struct{}{}
	}
	return fs
}

func (fs FilterSet) Contains(server string) bool {
	if len(fs) == 0 {
		return false
	}
	_, ok := fs[normalizeHost(server)]
	return ok
}

// Sorted returns the members in lexical order (for logging).
func (fs FilterSet) Sorted() []string {
	out := make([]string, 0, len(fs))
	for s := range fs {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func normalizeHost(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
