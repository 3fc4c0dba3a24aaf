package view

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/brewfolio/internal/model"
)

func TestPaginate_Followers(t *testing.T) {
	followers := make([]int, 25)
	for i := range followers {
		followers[i] = i + 1
	}

	tests := []struct {
		name     string
		page     int
		wantPage int
		first    int
		count    int
		hasNext  bool
	}{
		{name: "page 1", page: 1, wantPage: 1, first: 1, count: 12, hasNext: true},
		{name: "page 2", page: 2, wantPage: 2, first: 13, count: 12, hasNext: true},
		{name: "page 3 has the last one", page: 3, wantPage: 3, first: 25, count: 1, hasNext: false},
		{name: "past the end clamps", page: 9, wantPage: 3, first: 25, count: 1, hasNext: false},
		{name: "zero clamps to first", page: 0, wantPage: 1, first: 1, count: 12, hasNext: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Paginate(followers, tt.page, FollowerPageSize)
			assert.Equal(t, tt.wantPage, p.Page)
			assert.Equal(t, 3, p.TotalPages)
			require.Len(t, p.Items, tt.count)
			assert.Equal(t, tt.first, p.Items[0])
			assert.Equal(t, tt.hasNext, p.HasNext())
		})
	}

	assert.True(t, CanAdvance(2, 25, FollowerPageSize))
	assert.False(t, CanAdvance(3, 25, FollowerPageSize), "advancing past the last page is disallowed")
}

func TestPaginate_Empty(t *testing.T) {
	p := Paginate([]string{}, 4, RepoPageSize)
	assert.Equal(t, 1, p.Page)
	assert.Equal(t, 1, p.TotalPages)
	assert.Empty(t, p.Items)
	assert.False(t, p.HasPrev())
	assert.False(t, p.HasNext())
	assert.False(t, CanAdvance(1, 0, RepoPageSize))
}

func TestPagination_Neighbours(t *testing.T) {
	p := Paginate(make([]int, 20), 2, 9)
	assert.Equal(t, 1, p.PrevPage())
	assert.Equal(t, 3, p.NextPage())

	last := Paginate(make([]int, 20), 3, 9)
	assert.Equal(t, 3, last.NextPage())
}

func str(s string) *string { return &s }

func TestFilterRepos(t *testing.T) {
	repos := []model.Repository{
		{Name: "cold-brew", Language: str("Go"), Description: str("Slow steeped service")},
		{Name: "espresso", Language: str("Rust")},
		{Name: "Latte-Art", Language: str("Go")},
		{Name: "notes", Description: str("Tasting notes for brew days")},
	}

	tests := []struct {
		name     string
		search   string
		language string
		want     []string
	}{
		{name: "everything", search: "", language: AllLanguages, want: []string{"cold-brew", "espresso", "Latte-Art", "notes"}},
		{name: "by language", search: "", language: "Go", want: []string{"cold-brew", "Latte-Art"}},
		{name: "search matches name case-insensitively", search: "LATTE", language: AllLanguages, want: []string{"Latte-Art"}},
		{name: "search matches description", search: "brew", language: AllLanguages, want: []string{"cold-brew", "notes"}},
		{name: "both", search: "brew", language: "Go", want: []string{"cold-brew"}},
		{name: "empty language means all", search: "", language: "", want: []string{"cold-brew", "espresso", "Latte-Art", "notes"}},
		{name: "no match", search: "tea", language: AllLanguages, want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FilterRepos(repos, tt.search, tt.language)
			names := []string{}
			for _, r := range got {
				names = append(names, r.Name)
			}
			assert.Equal(t, tt.want, names)
		})
	}
}

func TestLanguages(t *testing.T) {
	repos := []model.Repository{
		{Language: str("Go")}, {}, {Language: str("Rust")}, {Language: str("Go")},
	}
	assert.Equal(t, []string{"Go", "Rust"}, Languages(repos))
}

func TestReduce(t *testing.T) {
	base := Default()
	base.RepoPage = 3

	tests := []struct {
		name   string
		start  State
		action Action
		check  func(t *testing.T, s State)
	}{
		{
			name: "search resets repo page", start: base,
			action: Action{Type: ActionSearch, Value: "  brew  "},
			check: func(t *testing.T, s State) {
				assert.Equal(t, "brew", s.Search)
				assert.Equal(t, 1, s.RepoPage)
			},
		},
		{
			name: "filter resets repo page", start: base,
			action: Action{Type: ActionFilter, Value: "Go"},
			check: func(t *testing.T, s State) {
				assert.Equal(t, "Go", s.Language)
				assert.Equal(t, 1, s.RepoPage)
			},
		},
		{
			name: "bad page is ignored", start: base,
			action: Action{Type: ActionRepoPage, Value: "-2"},
			check: func(t *testing.T, s State) {
				assert.Equal(t, 3, s.RepoPage)
			},
		},
		{
			name: "follower page", start: base,
			action: Action{Type: ActionFollowerPage, Value: "2"},
			check: func(t *testing.T, s State) {
				assert.Equal(t, 2, s.FollowerPage)
				assert.Equal(t, 3, s.RepoPage)
			},
		},
		{
			name: "toggle theme", start: base,
			action: Action{Type: ActionToggleTheme},
			check: func(t *testing.T, s State) {
				assert.Equal(t, ThemeDark, s.Theme)
				assert.Equal(t, ThemeLight, Reduce(s, Action{Type: ActionToggleTheme}).Theme)
			},
		},
		{
			name: "navigate closes expanded readme", start: State{View: PageRepos, Expanded: "latte"},
			action: Action{Type: ActionNavigate, Value: "followers"},
			check: func(t *testing.T, s State) {
				assert.Equal(t, PageFollowers, s.View)
				assert.Empty(t, s.Expanded)
			},
		},
		{
			name: "navigate to unknown page is ignored", start: State{View: PageStats},
			action: Action{Type: ActionNavigate, Value: "admin"},
			check: func(t *testing.T, s State) {
				assert.Equal(t, PageStats, s.View)
			},
		},
		{
			name: "expand twice collapses", start: State{Expanded: "latte"},
			action: Action{Type: ActionExpand, Value: "latte"},
			check: func(t *testing.T, s State) {
				assert.Empty(t, s.Expanded)
			},
		},
		{
			name: "use stale clears dialog", start: State{Dialog: "rate limited"},
			action: Action{Type: ActionUseStale},
			check: func(t *testing.T, s State) {
				assert.True(t, s.UseStale)
				assert.Empty(t, s.Dialog)
			},
		},
		{
			name: "dismiss", start: State{Dialog: "rate limited"},
			action: Action{Type: ActionDismiss},
			check: func(t *testing.T, s State) {
				assert.Empty(t, s.Dialog)
			},
		},
		{
			name: "unknown action normalizes only", start: State{},
			action: Action{Type: "explode"},
			check: func(t *testing.T, s State) {
				assert.Equal(t, Default(), s)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, Reduce(tt.start, tt.action))
		})
	}
}

func TestReduce_DoesNotMutateInput(t *testing.T) {
	s := Default()
	_ = Reduce(s, Action{Type: ActionSearch, Value: "x"})
	assert.Equal(t, Default(), s)
}

func TestActivityBars(t *testing.T) {
	a := ActivityBars(42, 12)
	b := ActivityBars(42, 12)
	c := ActivityBars(43, 12)

	assert.Equal(t, a, b, "same seed, same bars")
	assert.NotEqual(t, a, c)
	for _, h := range a {
		assert.GreaterOrEqual(t, h, 20)
		assert.LessOrEqual(t, h, 100)
	}
	assert.Nil(t, ActivityBars(1, 0))
}

func TestMulberry32_KnownSequence(t *testing.T) {
	// Reference values for seed 1.
	rng := mulberry32(1)
	got := []string{
		fmt.Sprintf("%.10f", rng()),
		fmt.Sprintf("%.10f", rng()),
	}
	assert.Equal(t, []string{"0.6270739406", "0.0027357212"}, got)
}

func TestTiming(t *testing.T) {
	assert.Equal(t, 180*time.Millisecond, DefaultTiming.StaggerDelay(3))
	assert.Equal(t, int64(1200), Millis(DefaultTiming.Drop))
}
