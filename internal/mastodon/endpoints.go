package mastodon

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// trendsPageSize is the server-side maximum for /api/v1/trends/statuses.
const trendsPageSize = 40

// VerifyCredentials returns the account that owns the access token.
func (c *Client) VerifyCredentials(ctx context.Context) (*Account, error) {
	var acc Account
	err := c.do(ctx, request{method: http.MethodGet, path: "/api/v1/accounts/verify_credentials", auth: true}, &acc)
	if err != nil {
		return nil, err
	}
	return &acc, nil
}

// TrendingStatuses returns up to limit trending statuses in the server's rank
// order, paging with offset until limit is reached or a page comes back short.
func (c *Client) TrendingStatuses(ctx context.Context, limit int) ([]Status, error) {
	if limit <= 0 {
		return nil, nil
	}
	out := make([]Status, 0, limit)
	for len(out) < limit {
		n := min(trendsPageSize, limit-len(out))
		q := url.Values{}
		q.Set("limit", strconv.Itoa(n))
		if len(out) > 0 {
			q.Set("offset", strconv.Itoa(len(out)))
		}
		var page []Status
		if err := c.do(ctx, request{method: http.MethodGet, path: "/api/v1/trends/statuses", query: q, auth: true}, &page); err != nil {
			return nil, err
		}
		out = append(out, page...)
		if len(page) < n {
			break
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// SearchStatuses looks a status up by URI on this server, asking the server
// to fetch it from its origin when it is not known locally.
func (c *Client) SearchStatuses(ctx context.Context, uri string) ([]Status, error) {
	q := url.Values{}
	q.Set("q", uri)
	q.Set("type", "statuses")
	q.Set("resolve", "true")
	var res SearchResults
	if err := c.do(ctx, request{method: http.MethodGet, path: "/api/v2/search", query: q, auth: true}, &res); err != nil {
		return nil, err
	}
	return res.Statuses, nil
}

// Reblog boosts a status by its local ID.
func (c *Client) Reblog(ctx context.Context, id string) (*Status, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("mastodon: reblog: empty status id")
	}
	var st Status
	path := "/api/v1/statuses/" + url.PathEscape(id) + "/reblog"
	if err := c.do(ctx, request{method: http.MethodPost, path: path, form: url.Values{}, auth: true}, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// UpdateCredentials updates the authenticated account's profile.
func (c *Client) UpdateCredentials(ctx context.Context, p ProfileUpdate) (*Account, error) {
	form := url.Values{}
	if p.Note != nil {
		form.Set("note", *p.Note)
	}
	if p.Bot != nil {
		form.Set("bot", strconv.FormatBool(*p.Bot))
	}
	if p.Discoverable != nil {
		form.Set("discoverable", strconv.FormatBool(*p.Discoverable))
	}
	for i, f := range p.Fields {
		form.Set(fmt.Sprintf("fields_attributes[%d][name]", i), f.Name)
		form.Set(fmt.Sprintf("fields_attributes[%d][value]", i), f.Value)
	}
	var acc Account
	if err := c.do(ctx, request{method: http.MethodPatch, path: "/api/v1/accounts/update_credentials", form: form, auth: true}, &acc); err != nil {
		return nil, err
	}
	return &acc, nil
}

// RegisterApp creates an OAuth application on the server.
func (c *Client) RegisterApp(ctx context.Context, name, scopes, website string) (*Application, error) {
	form := url.Values{}
	form.Set("client_name", name)
	form.Set("redirect_uris", "urn:ietf:wg:oauth:2.0:oob")
	form.Set("scopes", scopes)
	if website != "" {
		form.Set("website", website)
	}
	var app Application
	if err := c.do(ctx, request{method: http.MethodPost, path: "/api/v1/apps", form: form}, &app); err != nil {
		return nil, err
	}
	if app.ClientID == "" {
		return nil, fmt.Errorf("mastodon: register app on %s: empty client_id", c.host)
	}
	return &app, nil
}

// AppToken obtains an application-level token with the client_credentials grant.
func (c *Client) AppToken(ctx context.Context, clientID, clientSecret, scopes string) (string, error) {
	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", clientID)
	form.Set("client_secret", clientSecret)
	form.Set("redirect_uri", "urn:ietf:wg:oauth:2.0:oob")
	form.Set("scope", scopes)
	var tok token
	if err := c.do(ctx, request{method: http.MethodPost, path: "/oauth/token", form: form}, &tok); err != nil {
		return "", err
	}
	return tok.AccessToken, nil
}
