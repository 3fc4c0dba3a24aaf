package github

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/sakif/brewfolio/internal/apperror"
	"github.com/sakif/brewfolio/internal/model"
)

type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

const queryPinnedRepos = `
query pinnedRepositories($login: String!, $first: Int!, $topics: Int!) {
  user(login: $login) {
    pinnedItems(first: $first, types: REPOSITORY) {
      nodes {
        ... on Repository {
          name
          nameWithOwner
          description
          url
          stargazerCount
          forkCount
          updatedAt
          openGraphImageUrl
          primaryLanguage { name }
          defaultBranchRef { name }
          repositoryTopics(first: $topics) {
            nodes { topic { name } }
          }
        }
      }
    }
  }
}
`

type pinnedEnvelope struct {
	Data struct {
		User *struct {
			PinnedItems struct {
				Nodes []pinnedNode `json:"nodes"`
			} `json:"pinnedItems"`
		} `json:"user"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"errors"`
}

type pinnedNode struct {
	Name              string    `json:"name"`
	NameWithOwner     string    `json:"nameWithOwner"`
	Description       *string   `json:"description"`
	URL               string    `json:"url"`
	StargazerCount    int       `json:"stargazerCount"`
	ForkCount         int       `json:"forkCount"`
	UpdatedAt         time.Time `json:"updatedAt"`
	OpenGraphImageURL string    `json:"openGraphImageUrl"`
	PrimaryLanguage   *struct {
		Name string `json:"name"`
	} `json:"primaryLanguage"`
	DefaultBranchRef *struct {
		Name string `json:"name"`
	} `json:"defaultBranchRef"`
	RepositoryTopics struct {
		Nodes []struct {
			Topic struct {
				Name string `json:"name"`
			} `json:"topic"`
		} `json:"nodes"`
	} `json:"repositoryTopics"`
}

// PinnedRepos returns the repositories pinned on the user's profile.
//
// The GraphQL API is preferred because it knows what the user actually pinned
// and returns topics, preview image and default branch. GitHub refuses anonymous
// GraphQL calls, so without a token, or when the query fails or returns nothing,
// the most-starred repositories from the REST listing are used instead. Both
// results have the same shape; the returned PinnedSource tells them apart.
//
// A rate limit on either path is returned as an error; it is never masked by
// the fallback.
func (c *Client) PinnedRepos(ctx context.Context, login string) ([]model.Repository, model.PinnedSource, error) {
	if c.authenticated {
		pinned, err := c.pinnedViaGraphQL(ctx, login)
		switch {
		case errors.Is(err, apperror.ErrRateLimited):
			return nil, "", err
		case ctx.Err() != nil:
			return nil, "", ctx.Err()
		case err != nil:
			c.logger.Warn("pinned repos query failed, falling back to top starred",
				slog.String("login", login),
				slog.String("error", err.Error()),
			)
		case len(pinned) == 0:
			c.logger.Info("no pinned repos returned, falling back to top starred",
				slog.String("login", login),
			)
		default:
			return pinned, model.PinnedFromGraphQL, nil
		}
	}

	repos, err := c.Repos(ctx, login)
	if err != nil {
		return nil, "", err
	}
	return TopStarred(repos, PinnedLimit), model.PinnedFromRESTFallback, nil
}

// TopStarred returns up to n repositories ordered by star count, highest first.
// Ties keep their order from repos. The input slice is not modified.
func TopStarred(repos []model.Repository, n int) []model.Repository {
	sorted := make([]model.Repository, len(repos))
	copy(sorted, repos)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Stars > sorted[j].Stars
	})
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

func (c *Client) pinnedViaGraphQL(ctx context.Context, login string) ([]model.Repository, error) {
	req := graphqlRequest{
		Query: queryPinnedRepos,
		Variables: map[string]any{
			"login":  login,
			"first":  PinnedLimit,
			"topics": topicLimit,
		},
	}

	var env pinnedEnvelope
	if err := c.postGraphQL(ctx, "pinned", req, &env); err != nil {
		return nil, err
	}
	if len(env.Errors) > 0 {
		if env.Errors[0].Type == "RATE_LIMITED" {
			return nil, apperror.RateLimited("pinned", c.now().Add(fallbackResetWindow))
		}
		return nil, apperror.Connectivity("pinned", fmt.Errorf("graphql error: %s", env.Errors[0].Message))
	}
	if env.Data.User == nil {
		return nil, apperror.NotFound("user", login)
	}

	nodes := env.Data.User.PinnedItems.Nodes
	out := make([]model.Repository, 0, len(nodes))
	for i, n := range nodes {
		if n.Name == "" {
			// Non-repository pinned items (gists) decode as empty nodes.
			continue
		}
		out = append(out, n.toRepository(i))
	}
	return out, nil
}

// toRepository converts a GraphQL node. GraphQL does not give us the REST
// numeric id, so entries get a synthetic negative id from their position.
func (n pinnedNode) toRepository(index int) model.Repository {
	r := model.Repository{
		ID:             -int64(index + 1),
		Name:           n.Name,
		FullName:       n.NameWithOwner,
		HTMLURL:        n.URL,
		Description:    n.Description,
		Stars:          n.StargazerCount,
		Forks:          n.ForkCount,
		UpdatedAt:      n.UpdatedAt,
		SocialImageURL: n.OpenGraphImageURL,
		Topics:         make([]string, 0, len(n.RepositoryTopics.Nodes)),
	}
	if n.URL != "" {
		r.CloneURL = n.URL + ".git"
	}
	if n.PrimaryLanguage != nil && n.PrimaryLanguage.Name != "" {
		lang := n.PrimaryLanguage.Name
		r.Language = &lang
	}
	if n.DefaultBranchRef != nil {
		r.DefaultBranch = n.DefaultBranchRef.Name
	}
	for _, t := range n.RepositoryTopics.Nodes {
		r.Topics = append(r.Topics, t.Topic.Name)
	}
	return r
}

func (c *Client) postGraphQL(ctx context.Context, op string, body graphqlRequest, out any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("github: marshal %s query: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.graphqlURL, bytes.NewReader(b))
	if err != nil {
		return fmt.Errorf("github: building %s request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.send(op, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperror.Connectivity(op, fmt.Errorf("decoding response: %w", err))
	}
	return nil
}
