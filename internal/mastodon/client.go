// Package mastodon is a minimal client for the parts of the Mastodon REST
// API the archiver needs: resolving a handle to an account id and listing an
// account's statuses with incremental, paginated fetching.
package mastodon

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tootsearch/tootsearch/internal/models"
	"github.com/tootsearch/tootsearch/pkg/logging"
	"github.com/tootsearch/tootsearch/pkg/telemetry"
)

const (
	clientName = "tootsearch"

	// pageLimit is the per-page status count requested from the instance.
	// Mastodon caps this at 40 for the account statuses endpoint.
	pageLimit = 40
)

// FetchError wraps any network, protocol, or API failure from the remote
// instance. A fetch failure is fatal for the current run; no partial state
// is left behind because every archived status commits independently.
type FetchError struct {
	Op  string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch failed during %s: %v", e.Op, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Account identifies a remote account. The id is the instance-local numeric
// identifier used by the statuses endpoint.
type Account struct {
	ID   string `json:"id"`
	Acct string `json:"acct"`
}

// Client talks to one Mastodon instance over HTTPS.
type Client struct {
	base       string
	httpClient *http.Client
	logger     *zap.Logger

	// populated by registerApp
	clientID     string
	clientSecret string
}

// NewClient creates a client for the given instance host. With verifySSL
// false the TLS certificate chain is not checked, matching the
// --no-verify-ssl CLI flag for self-hosted instances.
func NewClient(host string, verifySSL bool) *Client {
	transport := http.DefaultTransport
	if !verifySSL {
		transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}

	return &Client{
		base: "https://" + host,
		httpClient: &http.Client{
			Timeout:   30 * time.Second,
			Transport: transport,
		},
		logger: logging.GetLogger().With(
			zap.String("component", "mastodon-client"),
			zap.String("host", host)),
	}
}

type registerAppResponse struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
}

// registerApp registers a read-scoped application with the instance before
// the first API call, the same handshake the reference archiver performs.
func (c *Client) registerApp(ctx context.Context) error {
	if c.clientID != "" {
		return nil
	}

	form := url.Values{
		"client_name":   {clientName},
		"scopes":        {"read"},
		"redirect_uris": {"urn:ietf:wg:oauth:2.0:oob"},
	}

	var resp registerAppResponse
	if err := c.postForm(ctx, "/api/v1/apps", form, &resp); err != nil {
		return &FetchError{Op: "register app", Err: err}
	}

	c.clientID = resp.ClientID
	c.clientSecret = resp.ClientSecret
	c.logger.Debug("Registered application", zap.String("client_id", resp.ClientID))
	return nil
}

// LookupAccount resolves a handle like "user" or "user@other.host" to its
// account on the instance.
func (c *Client) LookupAccount(ctx context.Context, acct string) (*Account, error) {
	ctx, span := telemetry.StartSpan(ctx, "mastodon.lookup_account")
	defer span.End()

	if err := c.registerApp(ctx); err != nil {
		return nil, err
	}

	var account Account
	query := url.Values{"acct": {acct}}
	if err := c.get(ctx, "/api/v1/accounts/lookup", query, &account); err != nil {
		return nil, &FetchError{Op: fmt.Sprintf("lookup account %q", acct), Err: err}
	}
	return &account, nil
}

// Statuses returns a pager over the account's statuses with id strictly
// greater than sinceID (zero means no lower bound). Pages are fetched lazily,
// one per Next call, in the instance's newest-first delivery order.
func (c *Client) Statuses(accountID string, sinceID int64) *StatusPager {
	return &StatusPager{
		client:    c,
		accountID: accountID,
		sinceID:   sinceID,
	}
}

// StatusPager walks the paginated statuses endpoint. It is a one-way cursor:
// each Next fetches the next older page until the instance signals
// exhaustion with an empty page, at which point Next returns (nil, nil).
type StatusPager struct {
	client    *Client
	accountID string
	sinceID   int64
	maxID     int64
	done      bool
}

// Next fetches one page of statuses. It returns (nil, nil) once all pages
// have been consumed.
func (p *StatusPager) Next(ctx context.Context) ([]models.Status, error) {
	if p.done {
		return nil, nil
	}

	ctx, span := telemetry.StartSpan(ctx, "mastodon.statuses_page")
	defer span.End()

	query := url.Values{"limit": {strconv.Itoa(pageLimit)}}
	if p.sinceID > 0 {
		query.Set("since_id", strconv.FormatInt(p.sinceID, 10))
	}
	if p.maxID > 0 {
		query.Set("max_id", strconv.FormatInt(p.maxID, 10))
	}

	var payload []statusPayload
	path := fmt.Sprintf("/api/v1/accounts/%s/statuses", url.PathEscape(p.accountID))
	if err := p.client.get(ctx, path, query, &payload); err != nil {
		return nil, &FetchError{Op: fmt.Sprintf("list statuses for account %s", p.accountID), Err: err}
	}

	if len(payload) == 0 {
		p.done = true
		return nil, nil
	}

	statuses := make([]models.Status, 0, len(payload))
	for _, raw := range payload {
		status, err := raw.toModel()
		if err != nil {
			return nil, &FetchError{Op: "decode status", Err: err}
		}
		statuses = append(statuses, status)
	}

	// Pages arrive newest first; the oldest id on this page is the max_id
	// bound for the next one.
	p.maxID = statuses[len(statuses)-1].ID
	return statuses, nil
}

// statusPayload is the wire shape of a status. It exists only at this
// ingestion boundary; everything past it works with the typed model.
type statusPayload struct {
	ID               string    `json:"id"`
	URL              string    `json:"url"`
	SpoilerText      string    `json:"spoiler_text"`
	Content          string    `json:"content"`
	CreatedAt        time.Time `json:"created_at"`
	RepliesCount     int       `json:"replies_count"`
	ReblogsCount     int       `json:"reblogs_count"`
	FavouritesCount  int       `json:"favourites_count"`
	Account          Account   `json:"account"`
	MediaAttachments []struct {
		Type string `json:"type"`
		URL  string `json:"url"`
	} `json:"media_attachments"`
}

func (p statusPayload) toModel() (models.Status, error) {
	id, err := strconv.ParseInt(p.ID, 10, 64)
	if err != nil {
		return models.Status{}, fmt.Errorf("unparseable status id %q: %w", p.ID, err)
	}

	var attachments models.Attachments
	for _, m := range p.MediaAttachments {
		attachments = append(attachments, models.Attachment{Type: m.Type, URL: m.URL})
	}

	return models.Status{
		ID:              id,
		URL:             p.URL,
		Account:         p.Account.Acct,
		SpoilerText:     p.SpoilerText,
		Content:         p.Content,
		CreatedAt:       p.CreatedAt,
		RepliesCount:    p.RepliesCount,
		ReblogsCount:    p.ReblogsCount,
		FavouritesCount: p.FavouritesCount,
		Attachments:     attachments,
	}, nil
}

// postForm performs a form-encoded POST and decodes the JSON response into out.
func (c *Client) postForm(ctx context.Context, path string, form url.Values, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.base+path, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	return c.do(req, out)
}

// get performs a GET request and decodes the JSON response body into out.
func (c *Client) get(ctx context.Context, path string, query url.Values, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return err
	}
	req.URL.RawQuery = query.Encode()
	req.Header.Set("Accept", "application/json")
	return c.do(req, out)
}

// do sends the request and decodes a 2xx JSON response into out.
func (c *Client) do(req *http.Request, out interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, body)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}
