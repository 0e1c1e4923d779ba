package mastodon

import "time"

type Account struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	Acct        string `json:"acct"`
	DisplayName string `json:"display_name"`
	URL         string `json:"url"`
	Bot         bool   `json:"bot"`
	Note        string `json:"note"`
}

type Status struct {
	ID        string    `json:"id"`
	URI       string    `json:"uri"`
	URL       string    `json:"url"`
	CreatedAt time.Time `json:"created_at"`
	Account   Account   `json:"account"`
	// Reblogged is only present on authenticated requests.
	Reblogged *bool `json:"reblogged,omitempty"`
}

// IsReblogged treats a missing flag as not reblogged.
func (s Status) IsReblogged() bool { return s.Reblogged != nil && *s.Reblogged }

type SearchResults struct {
	Accounts []Account `json:"accounts"`
	Statuses []Status  `json:"statuses"`
}

// Field is a profile metadata row.
type Field struct {
	Name  string
	Value string
}

// ProfileUpdate is the body of update_credentials. Nil flags are left unchanged.
type ProfileUpdate struct {
	Note         *string
	Bot          *bool
	Discoverable *bool
	Fields       []Field
}

// Application is the client registration returned by POST /api/v1/apps.
type Application struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
}

type token struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	Scope       string `json:"scope"`
}
