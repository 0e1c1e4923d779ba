package profile

import (
	"context"
	"errors"
	"testing"

	"hype/internal/boost"
	"hype/internal/mastodon"
	logx "hype/pkg/logx"
)

type fakeAccount struct {
	got []mastodon.ProfileUpdate
	err error
}

func (f *fakeAccount) UpdateCredentials(_ context.Context, p mastodon.ProfileUpdate) (*mastodon.Account, error) {
	f.got = append(f.got, p)
	if f.err != nil {
		return nil, f.err
	}
	return &mastodon.Account{ID: "1"}, nil
}

func TestBuildNote(t *testing.T) {
	cases := []struct {
		name    string
		prefix  string
		sources []boost.Source
		want    string
	}{
		{name: "no sources", prefix: "Boosting:", want: "Boosting:"},
		{name: "one", prefix: "Boosting:", sources: []boost.Source{{Name: "a.example"}}, want: "Boosting:\n- a.example"},
		{
			name:    "ordered",
			prefix:  "I boost trending posts from:",
			sources: []boost.Source{{Name: "b.example", Limit: 3}, {Name: "a.example", Limit: 1}},
			want:    "I boost trending posts from:\n- b.example\n- a.example",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := BuildNote(tc.prefix, tc.sources); got != tc.want {
				t.Fatalf("BuildNote() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestUpdatePushesNoteFieldsAndFlags(t *testing.T) {
	acct := &fakeAccount{}
	fields := []mastodon.Field{{Name: "Source", Value: "https://example.org"}, {Name: "Admin", Value: "@me"}}
	u := NewUpdater(acct, "Hi", []boost.Source{{Name: "a.example"}}, fields, logx.Nop())

	if err := u.Update(context.Background()); err != nil {
		t.Fatalf("Update error: %v", err)
	}
	if len(acct.got) != 1 {
		t.Fatalf("UpdateCredentials calls = %d, want 1", len(acct.got))
	}
	p := acct.got[0]
	if p.Note == nil || *p.Note != "Hi\n- a.example" {
		t.Fatalf("note = %v", p.Note)
	}
	if p.Bot == nil || !*p.Bot || p.Discoverable == nil || !*p.Discoverable {
		t.Fatalf("flags not set: bot=%v discoverable=%v", p.Bot, p.Discoverable)
	}
	if len(p.Fields) != 2 || p.Fields[0].Name != "Source" || p.Fields[1].Name != "Admin" {
		t.Fatalf("fields = %+v", p.Fields)
	}
}

func TestUpdateFailureIsReturned(t *testing.T) {
	boom := errors.New("unauthorized")
	acct := &fakeAccount{err: boom}
	u := NewUpdater(acct, "Hi", nil, nil, logx.Nop())

	err := u.Update(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("Update error = %v, want wrapped %v", err, boom)
	}
	if len(acct.got) != 1 {
		t.Fatalf("expected exactly one attempt, got %d", len(acct.got))
	}
}
