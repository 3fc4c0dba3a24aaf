// Package github is the Remote Data Client: it talks to GitHub's REST and GraphQL
// APIs and to raw content hosting, and turns HTTP failures into typed outcomes
// from the apperror package (rate limited, not found, connectivity).
package github

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2"

	"github.com/sakif/brewfolio/internal/apperror"
	"github.com/sakif/brewfolio/internal/model"
)

const (
	// repoPageSize is the single, capped page requested from list endpoints.
	repoPageSize = 100
	// PinnedLimit is how many pinned repositories GitHub lets a profile show.
	PinnedLimit = 6
	// topicLimit caps the topics requested per pinned repository.
	topicLimit = 5

	userAgent = "brewfolio/1.0"
)

// Options configures a Client. Zero-valued URLs fall back to github.com.
type Options struct {
	APIURL     string
	GraphQLURL string
	RawURL     string
	// Token is the optional bearer credential. Empty means anonymous requests.
	Token   string
	Timeout time.Duration
}

// Client issues requests against GitHub. It is safe for concurrent use.
type Client struct {
	http          *http.Client
	apiURL        string
	graphqlURL    string
	rawURL        string
	authenticated bool
	logger        *slog.Logger
	now           func() time.Time
}

// New builds a Client. When a token is configured every request goes through an
// oauth2 transport that adds "Authorization: Bearer <token>".
func New(opts Options, logger *slog.Logger) *Client {
	if opts.APIURL == "" {
		opts.APIURL = "https://api.github.com"
	}
	if opts.GraphQLURL == "" {
		opts.GraphQLURL = opts.APIURL + "/graphql"
	}
	if opts.RawURL == "" {
		opts.RawURL = "https://raw.githubusercontent.com"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}

	base := &http.Client{Timeout: opts.Timeout}
	hc := base
	if opts.Token != "" {
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
		hc = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: opts.Token}))
		// oauth2.NewClient does not carry the base client's timeout over.
		hc.Timeout = opts.Timeout
	}

	return &Client{
		http:          hc,
		apiURL:        opts.APIURL,
		graphqlURL:    opts.GraphQLURL,
		rawURL:        opts.RawURL,
		authenticated: opts.Token != "",
		logger:        logger,
		now:           time.Now,
	}
}

// Authenticated reports whether a bearer credential is attached.
func (c *Client) Authenticated() bool {
	return c.authenticated
}

// User fetches the public profile for login.
func (c *Client) User(ctx context.Context, login string) (*model.User, error) {
	var u model.User
	endpoint := fmt.Sprintf("%s/users/%s", c.apiURL, url.PathEscape(login))
	if err := c.getJSON(ctx, "profile", endpoint, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// Repos fetches the first (and only) page of public repositories, most recently
// updated first.
func (c *Client) Repos(ctx context.Context, login string) ([]model.Repository, error) {
	endpoint := fmt.Sprintf("%s/users/%s/repos?per_page=%d&sort=updated",
		c.apiURL, url.PathEscape(login), repoPageSize)

	var repos []model.Repository
	if err := c.getJSON(ctx, "repos", endpoint, &repos); err != nil {
		return nil, err
	}
	if repos == nil {
		repos = []model.Repository{}
	}
	return repos, nil
}

// Followers fetches the first page of followers. Entries only carry id, login,
// avatar and profile URL.
func (c *Client) Followers(ctx context.Context, login string) ([]model.Follower, error) {
	endpoint := fmt.Sprintf("%s/users/%s/followers?per_page=%d",
		c.apiURL, url.PathEscape(login), repoPageSize)

	var followers []model.Follower
	if err := c.getJSON(ctx, "followers", endpoint, &followers); err != nil {
		return nil, err
	}
	if followers == nil {
		followers = []model.Follower{}
	}
	return followers, nil
}

// Participation fetches weekly commit counts for the last year.
//
// GitHub answers 202 while it is still computing the statistics; that is
// reported as (nil, nil) and the caller is expected to ask again later.
func (c *Client) Participation(ctx context.Context, owner, repo string) (*model.Participation, error) {
	endpoint := fmt.Sprintf("%s/repos/%s/%s/stats/participation",
		c.apiURL, url.PathEscape(owner), url.PathEscape(repo))

	resp, err := c.get(ctx, "participation", endpoint, "application/vnd.github+json")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusAccepted || resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}

	var p model.Participation
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return nil, apperror.Connectivity("participation", fmt.Errorf("decoding response: %w", err))
	}
	return &p, nil
}

// LatestTag returns the name of the most recent tag. A repository without tags
// yields apperror.ErrNotFound.
func (c *Client) LatestTag(ctx context.Context, owner, repo string) (string, error) {
	endpoint := fmt.Sprintf("%s/repos/%s/%s/tags?per_page=1",
		c.apiURL, url.PathEscape(owner), url.PathEscape(repo))

	var tags []struct {
		Name string `json:"name"`
	}
	if err := c.getJSON(ctx, "tags", endpoint, &tags); err != nil {
		return "", err
	}
	if len(tags) == 0 || tags[0].Name == "" {
		return "", apperror.NotFound("tag", owner+"/"+repo)
	}
	return tags[0].Name, nil
}

// getJSON performs a GET and decodes a successful JSON body into out.
func (c *Client) getJSON(ctx context.Context, op, endpoint string, out any) error {
	resp, err := c.get(ctx, op, endpoint, "application/vnd.github+json")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperror.Connectivity(op, fmt.Errorf("decoding response: %w", err))
	}
	return nil
}

// get performs a GET and classifies the response. On success the caller owns
// resp.Body; on failure the body has already been drained and closed.
func (c *Client) get(ctx context.Context, op, endpoint, accept string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("github: building %s request: %w", op, err)
	}
	req.Header.Set("Accept", accept)
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")

	return c.send(op, req)
}

func (c *Client) send(op string, req *http.Request) (*http.Response, error) {
	start := c.now()
	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, apperror.Connectivity(op, err)
	}

	if err := c.classify(op, resp); err != nil {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))
		resp.Body.Close()
		c.logger.Debug("github request failed",
			slog.String("op", op),
			slog.Int("status", resp.StatusCode),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	c.logger.Debug("github request completed",
		slog.String("op", op),
		slog.Int("status", resp.StatusCode),
		slog.Duration("duration", c.now().Sub(start)),
	)
	return resp, nil
}
