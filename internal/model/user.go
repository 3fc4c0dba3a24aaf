// Package model defines the data structures used throughout the application.
//
// Everything in here is a snapshot of remote GitHub state at fetch time.
// Nothing is mutated locally after a fetch; a refresh always produces new values.
package model

import "time"

// User is the profile of the GitHub account the portfolio is rendered for.
//
// The json tags follow GitHub's REST field names so a /users/{login} response
// decodes straight into this struct, and the cached snapshot keeps the same shape.
type User struct {
	ID          int64     `json:"id"`
	Login       string    `json:"login"`      // GitHub handle, e.g. "octocat"
	AvatarURL   string    `json:"avatar_url"` // Profile picture URL
	HTMLURL     string    `json:"html_url"`   // Profile page on github.com
	Name        string    `json:"name"`       // Display name (may be empty)
	Bio         string    `json:"bio"`
	PublicRepos int       `json:"public_repos"`
	Followers   int       `json:"followers"`
	Following   int       `json:"following"`
	CreatedAt   time.Time `json:"created_at"`

	// Placeholder is true when the profile was synthesised from a follower list
	// entry. Bio and counts are then filler and must not be shown as facts.
	Placeholder bool `json:"placeholder,omitempty"`
}

// DisplayName returns the name to show in headings, falling back to the login.
func (u User) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	return u.Login
}

// Follower is one entry of the follower list endpoint.
// The list endpoint only returns these four fields.
type Follower struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	AvatarURL string `json:"avatar_url"`
	HTMLURL   string `json:"html_url"`
}

// placeholderBio is shown on follower cards in place of a real bio.
const placeholderBio = "Coffee enthusiast"

// AsUser widens a follower into the minimal User shape the follower grid renders.
// Bio and counts are placeholders and Placeholder is set so templates can tell.
func (f Follower) AsUser() User {
	return User{
		ID:          f.ID,
		Login:       f.Login,
		AvatarURL:   f.AvatarURL,
		HTMLURL:     f.HTMLURL,
		Name:        f.Login,
		Bio:         placeholderBio,
		Placeholder: true,
	}
}
