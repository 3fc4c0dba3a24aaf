// Package view holds the display state of the portfolio and the pure functions
// that transform it. Nothing here does I/O; handlers load a State from the
// session cookie, apply one Action, and render.
package view

import (
	"strconv"
	"strings"
)

// Page is one of the top-level screens.
type Page string

const (
	PageHome      Page = "home"
	PageRepos     Page = "repos"
	PageFollowers Page = "followers"
	PageStats     Page = "stats"
)

// Theme is the colour scheme.
type Theme string

const (
	ThemeLight Theme = "latte"
	ThemeDark  Theme = "espresso"
)

// AllLanguages is the filter value that matches every repository.
const AllLanguages = "all"

// maxSearchLen bounds the stored search text.
const maxSearchLen = 100

// State is everything the user can change about what they see. It is small
// and serialisable so it can live in a cookie.
type State struct {
	View         Page   `json:"view"`
	Theme        Theme  `json:"theme"`
	Search       string `json:"search,omitempty"`
	Language     string `json:"language"`
	RepoPage     int    `json:"repoPage"`
	FollowerPage int    `json:"followerPage"`
	// Expanded is the name of the repository whose README is open.
	Expanded string `json:"expanded,omitempty"`
	// UseStale is set when the user chose to continue with cached data.
	UseStale bool `json:"useStale,omitempty"`
	// Dialog is the dismissible message shown over the current page.
	Dialog string `json:"dialog,omitempty"`
}

// Default is the state of a first visit.
func Default() State {
	return State{
		View:         PageHome,
		Theme:        ThemeLight,
		Language:     AllLanguages,
		RepoPage:     1,
		FollowerPage: 1,
	}
}

// Normalize fixes out-of-range values, e.g. from an old or hand-edited cookie.
func (s State) Normalize() State {
	switch s.View {
	case PageHome, PageRepos, PageFollowers, PageStats:
	default:
		s.View = PageHome
	}
	if s.Theme != ThemeDark {
		s.Theme = ThemeLight
	}
	if s.Language == "" {
		s.Language = AllLanguages
	}
	if s.RepoPage < 1 {
		s.RepoPage = 1
	}
	if s.FollowerPage < 1 {
		s.FollowerPage = 1
	}
	s.Search = clip(strings.TrimSpace(s.Search), maxSearchLen)
	return s
}

// ActionType names a reducer.
type ActionType string

const (
	ActionSearch       ActionType = "search"
	ActionFilter       ActionType = "filter"
	ActionRepoPage     ActionType = "repo-page"
	ActionFollowerPage ActionType = "follower-page"
	ActionToggleTheme  ActionType = "toggle-theme"
	ActionNavigate     ActionType = "navigate"
	ActionExpand       ActionType = "expand"
	ActionUseStale     ActionType = "use-stale"
	ActionDismiss      ActionType = "dismiss"
	ActionShowDialog   ActionType = "dialog"
)

// Action is one user interaction. Value is interpreted per type.
type Action struct {
	Type  ActionType
	Value string
}

// Reduce applies a to s and returns the new state. Unknown actions and
// unparseable values leave the state unchanged.
func Reduce(s State, a Action) State {
	s = s.Normalize()

	switch a.Type {
	case ActionSearch:
		s.Search = clip(strings.TrimSpace(a.Value), maxSearchLen)
		s.RepoPage = 1
	case ActionFilter:
		s.Language = a.Value
		if s.Language == "" {
			s.Language = AllLanguages
		}
		s.RepoPage = 1
	case ActionRepoPage:
		if n, ok := pageNumber(a.Value); ok {
			s.RepoPage = n
		}
	case ActionFollowerPage:
		if n, ok := pageNumber(a.Value); ok {
			s.FollowerPage = n
		}
	case ActionToggleTheme:
		if s.Theme == ThemeDark {
			s.Theme = ThemeLight
		} else {
			s.Theme = ThemeDark
		}
	case ActionNavigate:
		p := Page(a.Value)
		switch p {
		case PageHome, PageRepos, PageFollowers, PageStats:
			s.View = p
			s.Expanded = ""
		}
	case ActionExpand:
		// Expanding the open repository again collapses it.
		if s.Expanded == a.Value {
			s.Expanded = ""
		} else {
			s.Expanded = a.Value
		}
	case ActionUseStale:
		s.UseStale = true
		s.Dialog = ""
	case ActionDismiss:
		s.Dialog = ""
	case ActionShowDialog:
		s.Dialog = a.Value
	}
	return s
}

// pageNumber parses a 1-based page number. Clamping to the last page happens
// at render time, when the item count is known.
func pageNumber(v string) (int, bool) {
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
