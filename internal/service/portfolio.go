// Package service contains the business logic layer of the application.
//
// THE THREE-LAYER ARCHITECTURE:
//
//	Handler (HTTP layer)     → parses requests, renders pages and JSON
//	Service (Business layer) → aggregates, caches, decides error policy
//	Client / Cache (Data)    → talks to GitHub and to the snapshot store
//
// PortfolioService depends on the GitHubClient and SnapshotStore interfaces,
// not on concrete types, so tests inject fakes and main.go picks the backend.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rs/xid"
	"golang.org/x/sync/errgroup"

	"github.com/sakif/brewfolio/internal/apperror"
	"github.com/sakif/brewfolio/internal/model"
)

const (
	// generalTagLimit is how many of the most recently updated repositories get a
	// latest-tag lookup in addition to the pinned ones.
	generalTagLimit = 3
	// tagConcurrency bounds simultaneous tag lookups.
	tagConcurrency = 4
	// ParticipationRetryAfter is how long a caller should wait before asking
	// again when GitHub is still computing participation statistics.
	ParticipationRetryAfter = 3 * time.Second
)

// GitHubClient is the subset of the Remote Data Client the service uses.
type GitHubClient interface {
	User(ctx context.Context, login string) (*model.User, error)
	Repos(ctx context.Context, login string) ([]model.Repository, error)
	PinnedRepos(ctx context.Context, login string) ([]model.Repository, model.PinnedSource, error)
	Followers(ctx context.Context, login string) ([]model.Follower, error)
	LatestTag(ctx context.Context, owner, repo string) (string, error)
	Readme(ctx context.Context, owner, repo, defaultBranch string) (*model.Readme, error)
	Participation(ctx context.Context, owner, repo string) (*model.Participation, error)
}

// SnapshotStore is the Snapshot Cache.
type SnapshotStore interface {
	Read(ctx context.Context) (*model.Snapshot, bool)
	ReadStale(ctx context.Context) (*model.Snapshot, bool)
	Write(ctx context.Context, snap *model.Snapshot)
}

// Trigger says who asked for the data; the error policy depends on it.
type Trigger string

const (
	// TriggerInitial is a normal page load.
	TriggerInitial Trigger = "initial"
	// TriggerManual is the refresh button.
	TriggerManual Trigger = "manual"
	// TriggerBackground is the periodic recovery loop.
	TriggerBackground Trigger = "background"
)

// Outcome is the result of Resolve: the data to show, if any, and how to show it.
type Outcome struct {
	Snapshot       *model.Snapshot
	Mode           Mode
	ResetAt        time.Time
	StaleAvailable bool
	Err            error
}

// PortfolioService is the Portfolio Aggregator.
type PortfolioService struct {
	client GitHubClient
	cache  SnapshotStore
	login  string
	board  *StatusBoard
	logger *slog.Logger
	now    func() time.Time

	// onBlocked and onReady are set by the Supervisor.
	hookMu    sync.RWMutex
	onBlocked func(Status)
	onReady   func()
}

// NewPortfolioService creates the aggregator for a single GitHub login.
func NewPortfolioService(client GitHubClient, cache SnapshotStore, login string, board *StatusBoard, logger *slog.Logger) *PortfolioService {
	return &PortfolioService{
		client: client,
		cache:  cache,
		login:  login,
		board:  board,
		logger: logger,
		now:    time.Now,
	}
}

// Login returns the GitHub login this service renders.
func (s *PortfolioService) Login() string {
	return s.login
}

// Board returns the shared status board.
func (s *PortfolioService) Board() *StatusBoard {
	return s.board
}

// Load returns a snapshot. Unless force is set, a fresh cached snapshot is
// returned without touching the network. Otherwise a full aggregation pass
// runs and its result replaces the cache.
//
// On failure nothing is written; a stale snapshot, if any, stays in the cache
// for LoadStale.
func (s *PortfolioService) Load(ctx context.Context, force bool) (*model.Snapshot, error) {
	if !force {
		if snap, ok := s.cache.Read(ctx); ok {
			return snap, nil
		}
	}

	snap, err := s.aggregate(ctx)
	if err != nil {
		return nil, err
	}
	s.cache.Write(ctx, snap)
	return snap, nil
}

// LoadStale returns the cached snapshot whatever its age. It never touches the
// network.
func (s *PortfolioService) LoadStale(ctx context.Context) (*model.Snapshot, error) {
	snap, ok := s.cache.ReadStale(ctx)
	if !ok {
		return nil, apperror.NotFound("snapshot", s.login)
	}
	return snap, nil
}

// Current returns whatever the cache holds, fresh or stale, or nil.
func (s *PortfolioService) Current(ctx context.Context) *model.Snapshot {
	snap, _ := s.cache.ReadStale(ctx)
	return snap
}

// Resolve runs Load and applies the error policy for the caller.
//
//   - initial: rate limit or connectivity failure blocks the page. A rate limit
//     offers the stale snapshot as an escape hatch; a connectivity failure
//     does not.
//   - manual on a healthy view: any failure becomes a dialog and the page keeps
//     its data. On an unhealthy view it behaves like initial.
//   - background: the recovery loop. Failures keep the page blocked, and the
//     stale snapshot is offered for both kinds of failure.
//
// Once the stale snapshot has been offered it stays offered until the
// portfolio recovers, whichever trigger fails next.
func (s *PortfolioService) Resolve(ctx context.Context, trigger Trigger, viewHealthy bool) Outcome {
	if trigger == TriggerInitial {
		if out, ok := s.stillBlocked(ctx); ok {
			return out
		}
	}

	snap, err := s.Load(ctx, trigger != TriggerInitial)
	if err == nil {
		s.markReady(snap)
		return Outcome{Snapshot: snap, Mode: ModeReady}
	}

	out := Outcome{Mode: ModeBlocked, Err: err}
	resetAt, rateLimited := apperror.ResetFrom(err)
	if rateLimited {
		out.ResetAt = resetAt
	}

	if trigger == TriggerManual && viewHealthy {
		out.Mode = ModeDialog
		s.logger.Info("manual refresh failed, keeping current data",
			slog.String("error", err.Error()),
		)
		return out
	}

	if errors.Is(err, context.Canceled) {
		// The requester went away; this says nothing about GitHub.
		return out
	}

	if rateLimited || trigger == TriggerBackground || s.board.Current().StaleAvailable {
		_, out.StaleAvailable = s.cache.ReadStale(ctx)
	}
	s.markBlocked(out)
	return out
}

// stillBlocked short-circuits page loads while a rate limit is known to be in
// force and there is no fresh data, leaving retries to the recovery loop.
func (s *PortfolioService) stillBlocked(ctx context.Context) (Outcome, bool) {
	st := s.board.Current()
	if !st.RateLimited() || !s.now().Before(st.ResetAt) {
		return Outcome{}, false
	}
	if _, ok := s.cache.Read(ctx); ok {
		return Outcome{}, false
	}
	return Outcome{
		Mode:           ModeBlocked,
		ResetAt:        st.ResetAt,
		StaleAvailable: st.StaleAvailable,
		Err:            apperror.RateLimited("portfolio", st.ResetAt),
	}, true
}

func (s *PortfolioService) markReady(snap *model.Snapshot) {
	prev := s.board.Current()
	if prev.Mode == ModeReady {
		return
	}
	s.board.Set(Status{Mode: ModeReady, UpdatedAt: s.now()})
	s.board.Publish(Event{Name: EventRecovered, Data: map[string]string{"passId": snap.PassID}})
	s.logger.Info("portfolio recovered", slog.String("pass_id", snap.PassID))

	s.hookMu.RLock()
	onReady := s.onReady
	s.hookMu.RUnlock()
	if onReady != nil {
		onReady()
	}
}

func (s *PortfolioService) markBlocked(out Outcome) {
	st := Status{
		Mode:           ModeBlocked,
		ResetAt:        out.ResetAt,
		StaleAvailable: out.StaleAvailable,
		Message:        userMessage(out.Err),
		UpdatedAt:      s.now(),
	}
	s.board.Set(st)

	s.hookMu.RLock()
	onBlocked := s.onBlocked
	s.hookMu.RUnlock()
	if onBlocked != nil {
		onBlocked(st)
	}
}

// userMessage is the text shown on the error screen and in dialogs.
func userMessage(err error) string {
	switch {
	case errors.Is(err, apperror.ErrRateLimited):
		return "GitHub's rate limit has been reached. The beans are resting."
	case errors.Is(err, apperror.ErrNotFound):
		return "That GitHub profile could not be found."
	default:
		return "Could not reach GitHub. Check the connection and try again."
	}
}

// UserMessage exposes the error-screen text for handlers.
func UserMessage(err error) string {
	return userMessage(err)
}

// aggregate runs one full pass. The four required fetches run concurrently and
// the pass waits for all of them; any failure aborts it and nothing is kept.
func (s *PortfolioService) aggregate(ctx context.Context) (*model.Snapshot, error) {
	passID := xid.New().String()
	start := s.now()
	logger := s.logger.With(slog.String("pass_id", passID), slog.String("login", s.login))

	var (
		user         *model.User
		repos        []model.Repository
		pinned       []model.Repository
		pinnedSource model.PinnedSource
		followers    []model.Follower
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		user, err = s.client.User(gctx, s.login)
		return err
	})
	g.Go(func() error {
		var err error
		repos, err = s.client.Repos(gctx, s.login)
		return err
	})
	g.Go(func() error {
		var err error
		pinned, pinnedSource, err = s.client.PinnedRepos(gctx, s.login)
		return err
	})
	g.Go(func() error {
		var err error
		followers, err = s.client.Followers(gctx, s.login)
		return err
	})

	if err := g.Wait(); err != nil {
		logger.Warn("aggregation pass failed", slog.String("error", err.Error()))
		return nil, fmt.Errorf("service: aggregating portfolio: %w", err)
	}

	pinned = reconcilePinned(pinned, repos)
	tags := s.fetchTags(ctx, tagCandidates(pinned, repos, generalTagLimit))
	now := s.now()

	snap := &model.Snapshot{
		PassID:       passID,
		User:         *user,
		Repos:        repos,
		PinnedRepos:  pinned,
		PinnedSource: pinnedSource,
		Followers:    followers,
		Tags:         tags,
		Stats:        ComputeStats(*user, repos, now),
		Timestamp:    now,
	}

	logger.Info("aggregation pass complete",
		slog.Int("repos", len(repos)),
		slog.Int("pinned", len(pinned)),
		slog.String("pinned_source", string(pinnedSource)),
		slog.Int("followers", len(followers)),
		slog.Int("tags", len(tags)),
		slog.Duration("duration", now.Sub(start)),
	)
	return snap, nil
}

// reconcilePinned matches pinned entries to the general list by name. A match
// takes the general entry's numeric id, update time and clone URL; the pinned
// entry's topics and preview image are kept.
func reconcilePinned(pinned, repos []model.Repository) []model.Repository {
	byName := make(map[string]model.Repository, len(repos))
	for _, r := range repos {
		byName[r.Name] = r
	}

	out := make([]model.Repository, 0, len(pinned))
	for _, p := range pinned {
		if r, ok := byName[p.Name]; ok {
			p.ID = r.ID
			p.UpdatedAt = r.UpdatedAt
			if r.CloneURL != "" {
				p.CloneURL = r.CloneURL
			}
			if p.DefaultBranch == "" {
				p.DefaultBranch = r.DefaultBranch
			}
			if p.Language == nil {
				p.Language = r.Language
			}
		}
		if p.Topics == nil {
			p.Topics = []string{}
		}
		out = append(out, p)
	}
	return out
}

// tagCandidates is the bounded set of repositories that get a tag lookup:
// every pinned repository plus the first n of the general list, distinct by name.
func tagCandidates(pinned, repos []model.Repository, n int) []model.Repository {
	seen := make(map[string]bool)
	var out []model.Repository
	add := func(r model.Repository) {
		if seen[r.Name] {
			return
		}
		seen[r.Name] = true
		out = append(out, r)
	}
	for _, r := range pinned {
		add(r)
	}
	for i, r := range repos {
		if i >= n {
			break
		}
		add(r)
	}
	return out
}

// fetchTags looks up latest tags concurrently. Lookups that fail for any
// reason are left out of the map.
func (s *PortfolioService) fetchTags(ctx context.Context, repos []model.Repository) map[string]string {
	tags := make(map[string]string, len(repos))
	var mu sync.Mutex

	var g errgroup.Group
	g.SetLimit(tagConcurrency)
	for _, r := range repos {
		g.Go(func() error {
			tag, err := s.client.LatestTag(ctx, s.ownerOf(r), r.Name)
			if err != nil {
				if !errors.Is(err, apperror.ErrNotFound) {
					s.logger.Debug("tag lookup failed",
						slog.String("repo", r.Name),
						slog.String("error", err.Error()),
					)
				}
				return nil
			}
			mu.Lock()
			tags[r.Name] = tag
			mu.Unlock()
			return nil
		})
	}
	g.Wait()
	return tags
}

func (s *PortfolioService) ownerOf(r model.Repository) string {
	if owner := r.Owner(); owner != "" {
		return owner
	}
	return s.login
}

// Readme returns the README of a repository in the current snapshot. A
// repository with no README, or any failure fetching it, yields (nil, nil).
// An unknown repository name is ErrNotFound.
func (s *PortfolioService) Readme(ctx context.Context, name string) (*model.Readme, model.Repository, error) {
	repo, err := s.findRepo(ctx, name)
	if err != nil {
		return nil, model.Repository{}, err
	}

	rm, err := s.client.Readme(ctx, s.ownerOf(repo), repo.Name, repo.DefaultBranch)
	if err != nil {
		if !errors.Is(err, apperror.ErrNotFound) {
			s.logger.Warn("readme lookup failed",
				slog.String("repo", name),
				slog.String("error", err.Error()),
			)
		}
		return nil, repo, nil
	}
	return rm, repo, nil
}

// Participation returns weekly commit counts for a repository in the current
// snapshot. Both "still computing" and any failure yield (nil, nil); callers
// may retry after ParticipationRetryAfter.
func (s *PortfolioService) Participation(ctx context.Context, name string) (*model.Participation, error) {
	repo, err := s.findRepo(ctx, name)
	if err != nil {
		return nil, err
	}

	p, err := s.client.Participation(ctx, s.ownerOf(repo), repo.Name)
	if err != nil {
		s.logger.Debug("participation lookup failed",
			slog.String("repo", name),
			slog.String("error", err.Error()),
		)
		return nil, nil
	}
	return p, nil
}

func (s *PortfolioService) findRepo(ctx context.Context, name string) (model.Repository, error) {
	if name == "" {
		return model.Repository{}, apperror.ValidationFailed("name", "repository name is required")
	}
	snap := s.Current(ctx)
	if snap == nil {
		return model.Repository{}, apperror.NotFound("repository", name)
	}
	repo, ok := snap.FindRepo(name)
	if !ok {
		return model.Repository{}, apperror.NotFound("repository", name)
	}
	return repo, nil
}
