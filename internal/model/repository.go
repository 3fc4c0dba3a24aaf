package model

import (
	"strings"
	"time"
)

// Repository is a public repository owned by the portfolio user.
//
// Description and Language are pointers because GitHub returns null for them
// and the templates need to tell "empty" from "absent".
type Repository struct {
	ID             int64     `json:"id"`
	Name           string    `json:"name"`
	FullName       string    `json:"full_name"` // owner/name
	HTMLURL        string    `json:"html_url"`
	Description    *string   `json:"description"`
	Language       *string   `json:"language"`
	Stars          int       `json:"stargazers_count"`
	Forks          int       `json:"forks_count"`
	UpdatedAt      time.Time `json:"updated_at"`
	Topics         []string  `json:"topics"`
	CloneURL       string    `json:"clone_url"`
	DefaultBranch  string    `json:"default_branch"`
	SocialImageURL string    `json:"social_image_url,omitempty"`
}

// Owner returns the owner part of FullName, or "" when FullName is not set.
func (r Repository) Owner() string {
	owner, _, found := strings.Cut(r.FullName, "/")
	if !found {
		return ""
	}
	return owner
}

// DescriptionText returns the description or "" when GitHub sent null.
func (r Repository) DescriptionText() string {
	if r.Description == nil {
		return ""
	}
	return *r.Description
}

// LanguageName returns the primary language or "" when GitHub sent null.
func (r Repository) LanguageName() string {
	if r.Language == nil {
		return ""
	}
	return *r.Language
}

// PinnedSource records where a pinned list came from. The two sources have the
// same shape but not the same fidelity: the REST fallback has no topics or images.
type PinnedSource string

const (
	PinnedFromGraphQL      PinnedSource = "graphql"
	PinnedFromRESTFallback PinnedSource = "rest-fallback"
)

// Readme is a repository README together with the branch it was found on.
// Branch is needed to resolve relative image paths inside the document.
type Readme struct {
	Content string `json:"content"`
	Branch  string `json:"branch"`
}

// Participation is the weekly commit count for the last 52 weeks.
// All counts every contributor, Owner only the repository owner.
type Participation struct {
	All   []int `json:"all"`
	Owner []int `json:"owner"`
}
