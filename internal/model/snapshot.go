package model

import "time"

// LanguageCount is one bar of the language histogram.
type LanguageCount struct {
	Language string `json:"language"`
	Count    int    `json:"count"`
}

// Stats holds the figures derived from one aggregation pass.
type Stats struct {
	TotalStars     int             `json:"totalStars"`
	TotalForks     int             `json:"totalForks"`
	TopLanguages   []LanguageCount `json:"topLanguages"`
	MostStarred    string          `json:"mostStarred"`
	AccountAgeDays int             `json:"accountAgeDays"`
	Strength       string          `json:"strength"` // qualitative "brew strength"
}

// Snapshot is the unit of caching: everything one aggregation pass produced.
//
// A snapshot is either absent or complete. It is built in one pass, written once,
// and replaced as a whole; there are no partial updates.
type Snapshot struct {
	PassID       string            `json:"passId"`
	User         User              `json:"user"`
	Repos        []Repository      `json:"repos"`
	PinnedRepos  []Repository      `json:"pinnedRepos"`
	PinnedSource PinnedSource      `json:"pinnedSource"`
	Followers    []Follower        `json:"followers"`
	Tags         map[string]string `json:"tags"` // repo name → latest tag
	Stats        Stats             `json:"stats"`
	Timestamp    time.Time         `json:"timestamp"`
}

// FindRepo looks a repository up by name in the general list, then the pinned list.
func (s *Snapshot) FindRepo(name string) (Repository, bool) {
	for _, r := range s.Repos {
		if r.Name == name {
			return r, true
		}
	}
	for _, r := range s.PinnedRepos {
		if r.Name == name {
			return r, true
		}
	}
	return Repository{}, false
}

// FollowerUsers widens every follower into the placeholder User shape.
func (s *Snapshot) FollowerUsers() []User {
	users := make([]User, 0, len(s.Followers))
	for _, f := range s.Followers {
		users = append(users, f.AsUser())
	}
	return users
}
