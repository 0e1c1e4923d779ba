// Package profile keeps the bot account's profile in sync with its configuration.
package profile

import (
	"context"
	"fmt"
	"strings"

	"hype/internal/boost"
	"hype/internal/mastodon"
	logx "hype/pkg/logx"
)

// Account is the slice of the home client the updater needs.
type Account interface {
	UpdateCredentials(ctx context.Context, p mastodon.ProfileUpdate) (*mastodon.Account, error)
}

// BuildNote renders the profile description: the prefix followed by one
// "- <name>" line per source.
func BuildNote(prefix string, sources []boost.Source) string {
	var b strings.Builder
	b.WriteString(prefix)
	for _, s := range sources {
		b.WriteString("\n- ")
		b.WriteString(s.Name)
	}
	return b.String()
}

type Updater struct {
	acct    Account
	log     logx.Logger
	prefix  string
	sources []boost.Source
	fields  []mastodon.Field
}

func NewUpdater(acct Account, prefix string, sources []boost.Source, fields []mastodon.Field, log logx.Logger) *Updater {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Updater{
		acct:    acct,
		log:     log,
		prefix:  prefix,
		sources: append([]boost.Source(nil), sources...),
		fields:  append([]mastodon.Field(nil), fields...),
	}
}

// Update pushes note, fields, and the bot/discoverable flags in one request.
// It does not retry.
func (u *Updater) Update(ctx context.Context) error {
	u.log.Info("update profile", logx.Int("sources", len(u.sources)), logx.Int("fields", len(u.fields)))

	note := BuildNote(u.prefix, u.sources)
	yes := true
	_, err := u.acct.UpdateCredentials(ctx, mastodon.ProfileUpdate{
		Note:         &note,
		Bot:          &yes,
		Discoverable: &yes,
		Fields:       u.fields,
	})
	if err != nil {
		u.log.Error("profile update failed", logx.Err(err))
		return fmt.Errorf("update profile: %w", err)
	}
	u.log.Info("profile updated")
	return nil
}
