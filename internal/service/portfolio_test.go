package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/brewfolio/internal/apperror"
	"github.com/sakif/brewfolio/internal/cache"
	"github.com/sakif/brewfolio/internal/github"
	"github.com/sakif/brewfolio/internal/model"
	"github.com/sakif/brewfolio/internal/repository/sqlite"
)

// =========================================================================
// FAKE CLIENT
// =========================================================================

// fakeClient implements GitHubClient. Each field overrides one call; nil
// fields return canned data.
type fakeClient struct {
	calls atomic.Int32

	userErr      error
	reposErr     error
	followersErr error
	pinnedErr    error
	pinnedFailed bool // simulate GraphQL failure: fall back like the real client

	repos   []model.Repository
	tags    map[string]string
	tagErrs map[string]error

	mu        sync.Mutex
	tagLookup []string
	readme    *model.Readme
	readmeErr error
	partic    *model.Participation
}

func (f *fakeClient) User(ctx context.Context, login string) (*model.User, error) {
	f.calls.Add(1)
	f.mu.Lock()
	err := f.userErr
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return &model.User{ID: 1, Login: login, Name: "The Octocat", CreatedAt: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)}, nil
}

func (f *fakeClient) Repos(ctx context.Context, login string) ([]model.Repository, error) {
	f.calls.Add(1)
	if f.reposErr != nil {
		return nil, f.reposErr
	}
	return f.repos, nil
}

func (f *fakeClient) PinnedRepos(ctx context.Context, login string) ([]model.Repository, model.PinnedSource, error) {
	f.calls.Add(1)
	if f.pinnedErr != nil {
		return nil, "", f.pinnedErr
	}
	if f.pinnedFailed {
		return github.TopStarred(f.repos, github.PinnedLimit), model.PinnedFromRESTFallback, nil
	}
	return []model.Repository{
		{ID: -1, Name: "latte", FullName: "octocat/latte", Topics: []string{"coffee"}, SocialImageURL: "https://img/latte.png"},
	}, model.PinnedFromGraphQL, nil
}

func (f *fakeClient) Followers(ctx context.Context, login string) ([]model.Follower, error) {
	f.calls.Add(1)
	if f.followersErr != nil {
		return nil, f.followersErr
	}
	return []model.Follower{{ID: 9, Login: "hubot"}}, nil
}

func (f *fakeClient) LatestTag(ctx context.Context, owner, repo string) (string, error) {
	f.mu.Lock()
	f.tagLookup = append(f.tagLookup, owner+"/"+repo)
	f.mu.Unlock()
	if err := f.tagErrs[repo]; err != nil {
		return "", err
	}
	if tag, ok := f.tags[repo]; ok {
		return tag, nil
	}
	return "", apperror.NotFound("tag", repo)
}

func (f *fakeClient) Readme(ctx context.Context, owner, repo, branch string) (*model.Readme, error) {
	if f.readmeErr != nil {
		return nil, f.readmeErr
	}
	return f.readme, nil
}

func (f *fakeClient) Participation(ctx context.Context, owner, repo string) (*model.Participation, error) {
	return f.partic, nil
}

// setUserErr changes the profile outcome while background goroutines run.
func (f *fakeClient) setUserErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.userErr = err
}

func (f *fakeClient) lookups() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.tagLookup...)
}

// =========================================================================
// HELPERS
// =========================================================================

func sampleRepos() []model.Repository {
	return []model.Repository{
		{ID: 101, Name: "mocha", FullName: "octocat/mocha", Stars: 3, Language: lang("Go"), CloneURL: "https://github.com/octocat/mocha.git"},
		{ID: 102, Name: "latte", FullName: "octocat/latte", Stars: 40, Language: lang("Go"), DefaultBranch: "main",
			UpdatedAt: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), CloneURL: "https://github.com/octocat/latte.git"},
		{ID: 103, Name: "cortado", FullName: "octocat/cortado", Stars: 7, Language: lang("Rust")},
		{ID: 104, Name: "ristretto", FullName: "octocat/ristretto", Stars: 90},
		{ID: 105, Name: "affogato", FullName: "octocat/affogato", Stars: 1},
		{ID: 106, Name: "doppio", FullName: "octocat/doppio", Stars: 2},
		{ID: 107, Name: "lungo", FullName: "octocat/lungo", Stars: 0},
		{ID: 108, Name: "macchiato", FullName: "octocat/macchiato", Stars: 15},
	}
}

func newTestService(t *testing.T, client *fakeClient) (*PortfolioService, *cache.SnapshotCache) {
	t.Helper()
	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	c := cache.New(db, "github_portfolio_cache", 30*time.Minute, logger)
	return NewPortfolioService(client, c, "octocat", NewStatusBoard(), logger), c
}

func rateLimit(at int64) error {
	return apperror.RateLimited("profile", time.Unix(at, 0))
}

// =========================================================================
// LOAD
// =========================================================================

func TestLoad_AggregatesAndCaches(t *testing.T) {
	client := &fakeClient{repos: sampleRepos(), tags: map[string]string{"latte": "v2.0.0", "cortado": "v0.1.0"}}
	svc, c := newTestService(t, client)
	ctx := context.Background()

	snap, err := svc.Load(ctx, false)
	require.NoError(t, err)

	assert.NotEmpty(t, snap.PassID)
	assert.Equal(t, "octocat", snap.User.Login)
	assert.Len(t, snap.Repos, 8)
	assert.Len(t, snap.Followers, 1)
	assert.Equal(t, model.PinnedFromGraphQL, snap.PinnedSource)
	assert.Equal(t, map[string]string{"latte": "v2.0.0", "cortado": "v0.1.0"}, snap.Tags)
	assert.Equal(t, 158, snap.Stats.TotalStars)
	assert.Equal(t, "ristretto", snap.Stats.MostStarred)

	// Pinned latte is reconciled with the general entry.
	require.Len(t, snap.PinnedRepos, 1)
	latte := snap.PinnedRepos[0]
	assert.Equal(t, int64(102), latte.ID)
	assert.Equal(t, "https://github.com/octocat/latte.git", latte.CloneURL)
	assert.Equal(t, "main", latte.DefaultBranch)
	assert.Equal(t, 2024, latte.UpdatedAt.Year())
	assert.Equal(t, []string{"coffee"}, latte.Topics)
	assert.Equal(t, "https://img/latte.png", latte.SocialImageURL)

	cached, ok := c.Read(ctx)
	require.True(t, ok)
	assert.Equal(t, snap.PassID, cached.PassID)
}

func TestLoad_FreshCacheSkipsNetwork(t *testing.T) {
	client := &fakeClient{repos: sampleRepos()}
	svc, _ := newTestService(t, client)
	ctx := context.Background()

	first, err := svc.Load(ctx, false)
	require.NoError(t, err)
	calls := client.calls.Load()

	second, err := svc.Load(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, calls, client.calls.Load(), "no network calls on a fresh cache")
	assert.Equal(t, first.PassID, second.PassID)

	third, err := svc.Load(ctx, true)
	require.NoError(t, err)
	assert.Greater(t, client.calls.Load(), calls)
	assert.NotEqual(t, first.PassID, third.PassID)
}

func TestLoad_ExpiredCacheRefetches(t *testing.T) {
	client := &fakeClient{repos: sampleRepos()}
	svc, c := newTestService(t, client)
	ctx := context.Background()

	first, err := svc.Load(ctx, false)
	require.NoError(t, err)

	// Stamp the next snapshot an hour in the past; the cache measures age from
	// the snapshot timestamp.
	svc.now = func() time.Time { return first.Timestamp.Add(-time.Hour) }
	_, err = svc.Load(ctx, true)
	require.NoError(t, err)

	_, ok := c.Read(ctx)
	assert.False(t, ok, "a snapshot stamped an hour ago is stale")

	calls := client.calls.Load()
	_, err = svc.Load(ctx, false)
	require.NoError(t, err)
	assert.Greater(t, client.calls.Load(), calls)
}

func TestLoad_RequiredFetchFailureIsFatal(t *testing.T) {
	tests := []struct {
		name   string
		client *fakeClient
		wantIs error
	}{
		{name: "profile connectivity", client: &fakeClient{userErr: apperror.Connectivity("profile", nil)}, wantIs: apperror.ErrConnectivity},
		{name: "profile rate limited", client: &fakeClient{userErr: rateLimit(1_800_000_000)}, wantIs: apperror.ErrRateLimited},
		{name: "repos rate limited", client: &fakeClient{reposErr: rateLimit(1_800_000_000)}, wantIs: apperror.ErrRateLimited},
		{name: "followers connectivity", client: &fakeClient{followersErr: apperror.Connectivity("followers", nil)}, wantIs: apperror.ErrConnectivity},
		{name: "pinned rate limited", client: &fakeClient{pinnedErr: rateLimit(1_800_000_000)}, wantIs: apperror.ErrRateLimited},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.client.repos = sampleRepos()
			svc, c := newTestService(t, tt.client)

			_, err := svc.Load(context.Background(), false)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantIs)

			_, ok := c.ReadStale(context.Background())
			assert.False(t, ok, "nothing is persisted from a failed pass")
		})
	}
}

func TestLoad_PinnedFallbackIsTopSixByStars(t *testing.T) {
	client := &fakeClient{repos: sampleRepos(), pinnedFailed: true}
	svc, _ := newTestService(t, client)

	snap, err := svc.Load(context.Background(), false)
	require.NoError(t, err)

	assert.Equal(t, model.PinnedFromRESTFallback, snap.PinnedSource)
	var names []string
	for _, r := range snap.PinnedRepos {
		names = append(names, r.Name)
	}
	assert.Equal(t, []string{"ristretto", "latte", "macchiato", "cortado", "mocha", "doppio"}, names)
}

func TestLoad_TagFailuresAreDropped(t *testing.T) {
	client := &fakeClient{
		repos:   sampleRepos(),
		tags:    map[string]string{"latte": "v2.0.0", "mocha": "v1.0.0"},
		tagErrs: map[string]error{"mocha": apperror.Connectivity("tags", nil), "cortado": rateLimit(1)},
	}
	svc, _ := newTestService(t, client)

	snap, err := svc.Load(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"latte": "v2.0.0"}, snap.Tags)

	// pinned latte + first three general repos, latte counted once.
	assert.ElementsMatch(t,
		[]string{"octocat/latte", "octocat/mocha", "octocat/cortado"},
		client.lookups())
}

// =========================================================================
// RESOLVE POLICY
// =========================================================================

func seedStale(t *testing.T, svc *PortfolioService) *model.Snapshot {
	t.Helper()
	snap, err := svc.Load(context.Background(), true)
	require.NoError(t, err)
	return snap
}

func TestResolve_InitialRateLimitOffersStale(t *testing.T) {
	client := &fakeClient{repos: sampleRepos()}
	svc, _ := newTestService(t, client)
	ctx := context.Background()
	stale := seedStale(t, svc)

	// Expire the seeded snapshot, then start failing.
	svc.cache.(*cache.SnapshotCache).Write(ctx, withTimestamp(stale, stale.Timestamp.Add(-24*time.Hour)))
	client.userErr = rateLimit(1_800_000_000)

	out := svc.Resolve(ctx, TriggerInitial, false)
	assert.Equal(t, ModeBlocked, out.Mode)
	assert.True(t, out.StaleAvailable)
	assert.Equal(t, int64(1_800_000_000), out.ResetAt.Unix())
	assert.ErrorIs(t, out.Err, apperror.ErrRateLimited)

	// The escape hatch loads the stale data without another network call.
	calls := client.calls.Load()
	got, err := svc.LoadStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, stale.PassID, got.PassID)
	assert.Equal(t, calls, client.calls.Load())

	st := svc.Board().Current()
	assert.Equal(t, ModeBlocked, st.Mode)
	assert.True(t, st.RateLimited())
}

func TestResolve_InitialConnectivityHasNoStaleHatch(t *testing.T) {
	client := &fakeClient{repos: sampleRepos()}
	svc, _ := newTestService(t, client)
	ctx := context.Background()
	stale := seedStale(t, svc)
	svc.cache.(*cache.SnapshotCache).Write(ctx, withTimestamp(stale, stale.Timestamp.Add(-24*time.Hour)))

	client.userErr = apperror.Connectivity("profile", nil)
	out := svc.Resolve(ctx, TriggerInitial, false)

	assert.Equal(t, ModeBlocked, out.Mode)
	assert.False(t, out.StaleAvailable)
	assert.True(t, out.ResetAt.IsZero())
}

func TestResolve_ManualOnHealthyViewIsDialog(t *testing.T) {
	client := &fakeClient{repos: sampleRepos()}
	svc, _ := newTestService(t, client)
	ctx := context.Background()
	seedStale(t, svc)

	client.userErr = rateLimit(1_800_000_000)
	out := svc.Resolve(ctx, TriggerManual, true)

	assert.Equal(t, ModeDialog, out.Mode)
	assert.Nil(t, out.Snapshot)
	assert.Equal(t, int64(1_800_000_000), out.ResetAt.Unix())
	assert.Equal(t, ModeReady, svc.Board().Current().Mode, "a dialog does not block other viewers")
}

func TestResolve_ManualOnBrokenViewBlocks(t *testing.T) {
	client := &fakeClient{repos: sampleRepos(), userErr: apperror.Connectivity("profile", nil)}
	svc, _ := newTestService(t, client)

	out := svc.Resolve(context.Background(), TriggerManual, false)
	assert.Equal(t, ModeBlocked, out.Mode)
}

func TestResolve_BackgroundConsultsStaleOnConnectivity(t *testing.T) {
	client := &fakeClient{repos: sampleRepos()}
	svc, _ := newTestService(t, client)
	seedStale(t, svc)

	client.userErr = apperror.Connectivity("profile", nil)
	out := svc.Resolve(context.Background(), TriggerBackground, false)

	assert.Equal(t, ModeBlocked, out.Mode)
	assert.True(t, out.StaleAvailable)
}

func TestResolve_StaleOfferSurvivesLaterFailures(t *testing.T) {
	client := &fakeClient{repos: sampleRepos()}
	svc, _ := newTestService(t, client)
	ctx := context.Background()
	stale := seedStale(t, svc)
	svc.cache.(*cache.SnapshotCache).Write(ctx, withTimestamp(stale, stale.Timestamp.Add(-24*time.Hour)))

	client.userErr = apperror.Connectivity("profile", nil)
	bg := svc.Resolve(ctx, TriggerBackground, false)
	require.True(t, bg.StaleAvailable)

	// A fresh visitor and a manual retry both fail on the same outage.
	for _, trigger := range []Trigger{TriggerInitial, TriggerManual} {
		out := svc.Resolve(ctx, trigger, false)
		assert.Equal(t, ModeBlocked, out.Mode)
		assert.True(t, out.StaleAvailable, "trigger %v", trigger)
		assert.True(t, svc.Board().Current().StaleAvailable, "trigger %v", trigger)
	}

	// Recovery resets the board, so the next outage starts without the offer.
	client.setUserErr(nil)
	require.Equal(t, ModeReady, svc.Resolve(ctx, TriggerBackground, false).Mode)
	svc.cache.(*cache.SnapshotCache).Write(ctx, withTimestamp(stale, stale.Timestamp.Add(-24*time.Hour)))
	client.setUserErr(apperror.Connectivity("profile", nil))
	out := svc.Resolve(ctx, TriggerInitial, false)
	assert.False(t, out.StaleAvailable)
}

func TestResolve_InitialWhileRateLimitedSkipsNetwork(t *testing.T) {
	client := &fakeClient{repos: sampleRepos(), userErr: rateLimit(1_800_000_000)}
	svc, _ := newTestService(t, client)
	svc.now = func() time.Time { return time.Unix(1_700_000_000, 0) }
	ctx := context.Background()

	first := svc.Resolve(ctx, TriggerInitial, false)
	require.Equal(t, ModeBlocked, first.Mode)
	calls := client.calls.Load()

	second := svc.Resolve(ctx, TriggerInitial, false)
	assert.Equal(t, ModeBlocked, second.Mode)
	assert.Equal(t, first.ResetAt, second.ResetAt)
	assert.Equal(t, calls, client.calls.Load())
}

func TestResolve_RecoveryPublishesEvent(t *testing.T) {
	client := &fakeClient{repos: sampleRepos(), userErr: apperror.Connectivity("profile", nil)}
	svc, _ := newTestService(t, client)
	ctx := context.Background()

	out := svc.Resolve(ctx, TriggerInitial, false)
	require.Equal(t, ModeBlocked, out.Mode)

	_, events, cancel := svc.Board().Subscribe()
	defer cancel()

	client.userErr = nil
	out = svc.Resolve(ctx, TriggerBackground, false)
	require.Equal(t, ModeReady, out.Mode)
	require.NotNil(t, out.Snapshot)

	var names []string
	for len(events) > 0 {
		names = append(names, (<-events).Name)
	}
	assert.Equal(t, []string{EventStatus, EventRecovered}, names)
}

// =========================================================================
// README / PARTICIPATION
// =========================================================================

func TestReadme(t *testing.T) {
	client := &fakeClient{repos: sampleRepos(), readme: &model.Readme{Content: "# Latte", Branch: "master"}}
	svc, _ := newTestService(t, client)
	ctx := context.Background()

	_, _, err := svc.Readme(ctx, "latte")
	assert.ErrorIs(t, err, apperror.ErrNotFound, "no snapshot yet")

	seedStale(t, svc)

	rm, repo, err := svc.Readme(ctx, "latte")
	require.NoError(t, err)
	assert.Equal(t, "master", rm.Branch)
	assert.Equal(t, "octocat/latte", repo.FullName)

	_, _, err = svc.Readme(ctx, "espresso")
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	client.readmeErr = apperror.Connectivity("readme", errors.New("boom"))
	rm, _, err = svc.Readme(ctx, "latte")
	require.NoError(t, err, "readme failures degrade to absent")
	assert.Nil(t, rm)
}

func TestParticipation_PendingIsAbsent(t *testing.T) {
	client := &fakeClient{repos: sampleRepos()}
	svc, _ := newTestService(t, client)
	seedStale(t, svc)

	p, err := svc.Participation(context.Background(), "mocha")
	require.NoError(t, err)
	assert.Nil(t, p)

	client.partic = &model.Participation{All: make([]int, 52), Owner: make([]int, 52)}
	p, err = svc.Participation(context.Background(), "mocha")
	require.NoError(t, err)
	assert.Len(t, p.All, 52)
}

func withTimestamp(s *model.Snapshot, at time.Time) *model.Snapshot {
	cp := *s
	cp.Timestamp = at
	return &cp
}
