package view

import (
	"strings"

	"github.com/sakif/brewfolio/internal/model"
)

// Page sizes for the grids.
const (
	RepoPageSize     = 9
	FollowerPageSize = 12
)

// Pagination describes one page of a list.
type Pagination[T any] struct {
	Items      []T
	Page       int // 1-based, after clamping
	TotalPages int // at least 1
	Total      int
	Size       int
}

// HasPrev reports whether there is a page before this one.
func (p Pagination[T]) HasPrev() bool { return p.Page > 1 }

// HasNext reports whether there is a page after this one.
func (p Pagination[T]) HasNext() bool { return CanAdvance(p.Page, p.Total, p.Size) }

// PrevPage and NextPage are the neighbouring page numbers, clamped.
func (p Pagination[T]) PrevPage() int { return max(p.Page-1, 1) }
func (p Pagination[T]) NextPage() int { return min(p.Page+1, p.TotalPages) }

// Paginate returns page (1-based) of items. Pages outside [1, last] are
// clamped, so the result is never an empty page of a non-empty list.
func Paginate[T any](items []T, page, size int) Pagination[T] {
	if size < 1 {
		size = 1
	}
	total := len(items)
	pages := TotalPages(total, size)
	page = min(max(page, 1), pages)

	start := (page - 1) * size
	end := min(start+size, total)
	return Pagination[T]{
		Items:      items[start:end],
		Page:       page,
		TotalPages: pages,
		Total:      total,
		Size:       size,
	}
}

// TotalPages is ceil(total/size), but never less than 1.
func TotalPages(total, size int) int {
	if size < 1 || total <= 0 {
		return 1
	}
	return (total + size - 1) / size
}

// CanAdvance reports whether moving forward from page is allowed.
func CanAdvance(page, total, size int) bool {
	return page < TotalPages(total, size)
}

// FilterRepos keeps repositories whose name or description contains search
// (case-insensitive) and whose language matches. AllLanguages matches any
// language, including none.
func FilterRepos(repos []model.Repository, search, language string) []model.Repository {
	q := strings.ToLower(strings.TrimSpace(search))
	out := make([]model.Repository, 0, len(repos))
	for _, r := range repos {
		if language != "" && language != AllLanguages && r.LanguageName() != language {
			continue
		}
		if q != "" &&
			!strings.Contains(strings.ToLower(r.Name), q) &&
			!strings.Contains(strings.ToLower(r.DescriptionText()), q) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// Languages lists the distinct primary languages in first-seen order.
func Languages(repos []model.Repository) []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range repos {
		l := r.LanguageName()
		if l == "" || seen[l] {
			continue
		}
		seen[l] = true
		out = append(out, l)
	}
	return out
}
