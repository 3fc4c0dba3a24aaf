package github

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"

	"github.com/sakif/brewfolio/internal/apperror"
	"github.com/sakif/brewfolio/internal/model"
)

// maxReadmeBytes caps how much README text is read from raw hosting.
const maxReadmeBytes = 512 << 10

// Readme fetches README.md from raw content hosting. The repository's default
// branch is tried first, then "main" and "master", and the first success wins.
// A rate limit or a cancelled context stops the search; any other failure moves
// on to the next branch. When every branch fails, the last non-404 failure is
// returned, or NotFound if every branch answered 404.
func (c *Client) Readme(ctx context.Context, owner, repo, defaultBranch string) (*model.Readme, error) {
	var lastErr error
	for _, branch := range readmeBranches(defaultBranch) {
		rm, err := c.readmeOn(ctx, owner, repo, branch)
		if err == nil {
			return rm, nil
		}
		if errors.Is(err, apperror.ErrRateLimited) || ctx.Err() != nil {
			return nil, err
		}
		if !errors.Is(err, apperror.ErrNotFound) {
			c.logger.Debug("readme branch failed",
				slog.String("repo", owner+"/"+repo),
				slog.String("branch", branch),
				slog.String("error", err.Error()),
			)
			lastErr = err
		}
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, apperror.NotFound("readme", owner+"/"+repo)
}

func (c *Client) readmeOn(ctx context.Context, owner, repo, branch string) (*model.Readme, error) {
	endpoint := fmt.Sprintf("%s/%s/%s/%s/README.md",
		c.rawURL, url.PathEscape(owner), url.PathEscape(repo), url.PathEscape(branch))

	resp, err := c.get(ctx, "readme", endpoint, "text/plain")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxReadmeBytes))
	if err != nil {
		return nil, apperror.Connectivity("readme", fmt.Errorf("reading body: %w", err))
	}
	return &model.Readme{Content: string(body), Branch: branch}, nil
}

func readmeBranches(defaultBranch string) []string {
	branches := make([]string, 0, 3)
	seen := make(map[string]bool, 3)
	for _, b := range []string{defaultBranch, "main", "master"} {
		if b == "" || seen[b] {
			continue
		}
		seen[b] = true
		branches = append(branches, b)
	}
	return branches
}
