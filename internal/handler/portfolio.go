// Package handler contains the HTTP handlers of the portfolio: server-rendered
// pages, the JSON API and the status event stream.
//
// Handlers parse the request, call the service, and write the response. They
// hold no business logic; the error policy lives in service.Resolve.
package handler

import (
	"context"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sakif/brewfolio/internal/auth"
	"github.com/sakif/brewfolio/internal/classifier"
	"github.com/sakif/brewfolio/internal/countdown"
	"github.com/sakif/brewfolio/internal/markdown"
	"github.com/sakif/brewfolio/internal/model"
	"github.com/sakif/brewfolio/internal/service"
	"github.com/sakif/brewfolio/internal/view"
)

// Portfolio is what the handlers need from the service layer.
type Portfolio interface {
	Login() string
	Board() *service.StatusBoard
	Resolve(ctx context.Context, trigger service.Trigger, viewHealthy bool) service.Outcome
	LoadStale(ctx context.Context) (*model.Snapshot, error)
	Current(ctx context.Context) *model.Snapshot
	Readme(ctx context.Context, name string) (*model.Readme, model.Repository, error)
	Participation(ctx context.Context, name string) (*model.Participation, error)
}

// Pages rendered by the handler. Each is parsed together with the layout.
const (
	tmplHome      = "home.html"
	tmplRepos     = "repos.html"
	tmplFollowers = "followers.html"
	tmplStats     = "stats.html"
	tmplBlocked   = "blocked.html"
)

var pageTemplates = []string{tmplHome, tmplRepos, tmplFollowers, tmplStats, tmplBlocked}

// Options groups the collaborators of PortfolioHandler.
type Options struct {
	Templates fs.FS // holds base.html, partials.html and one file per page
	Codec     *auth.SessionCodec
	Verifier  *auth.KeyVerifier
	Markdown  *markdown.Renderer
	Timing    view.Timing
	Logger    *slog.Logger
}

// PortfolioHandler serves the portfolio pages and API.
type PortfolioHandler struct {
	svc       Portfolio
	templates map[string]*template.Template
	codec     *auth.SessionCodec
	verifier  *auth.KeyVerifier
	markdown  *markdown.Renderer
	timing    view.Timing
	logger    *slog.Logger
	now       func() time.Time
}

// NewPortfolioHandler parses every page template once, at startup.
func NewPortfolioHandler(svc Portfolio, opts Options) (*PortfolioHandler, error) {
	h := &PortfolioHandler{
		svc:       svc,
		templates: make(map[string]*template.Template, len(pageTemplates)),
		codec:     opts.Codec,
		verifier:  opts.Verifier,
		markdown:  opts.Markdown,
		timing:    opts.Timing,
		logger:    opts.Logger,
		now:       time.Now,
	}

	// Every page defines "content", so each gets its own template set built
	// from the shared layout plus the page file.
	for _, page := range pageTemplates {
		tmpl, err := template.New(page).Funcs(h.funcs()).ParseFS(opts.Templates, "base.html", "partials.html", page)
		if err != nil {
			return nil, fmt.Errorf("parsing template %s: %w", page, err)
		}
		h.templates[page] = tmpl
	}
	return h, nil
}

func (h *PortfolioHandler) funcs() template.FuncMap {
	return template.FuncMap{
		"roast": classifier.Classify,
		"bars": func(id int64) []int {
			return view.ActivityBars(id, 12)
		},
		"stagger": func(i int) int64 {
			return view.Millis(h.timing.StaggerDelay(i))
		},
		"ms":   view.Millis,
		"date": func(t time.Time) string { return t.Format("Jan 2, 2006") },
		"add":  func(a, b int) int { return a + b },
		"pct": func(part, whole int) int {
			if whole <= 0 {
				return 0
			}
			return part * 100 / whole
		},
		"card": func(i int, r model.Repository, tags map[string]string) repoCard {
			return repoCard{Index: i, Repo: r, Tag: tags[r.Name]}
		},
		"pathEscape": url.PathEscape,
	}
}

// pageData is handed to every template.
type pageData struct {
	Title    string
	Page     view.Page
	State    view.State
	Login    string
	Snapshot *model.Snapshot
	Stale    bool
	Status   service.Status
	Timing   view.Timing
	// KeyRequired shows the refresh key field next to the refresh button.
	KeyRequired bool

	Featured  []model.Repository
	Repos     view.Pagination[model.Repository]
	Languages []string
	Followers view.Pagination[model.User]
	Modal     *repoModal
	Blocked   *blockedScreen
}

// repoCard is the argument of the "repo-card" partial.
type repoCard struct {
	Index int
	Repo  model.Repository
	Tag   string
}

type repoModal struct {
	Repo          model.Repository
	Roast         classifier.Roast
	Tag           string
	Readme        template.HTML
	Branch        string
	Participation *model.Participation
	RetryAfter    int64 // ms; set while participation is still being computed
}

type blockedScreen struct {
	Message        string
	RateLimited    bool
	Countdown      string
	ResetEpoch     int64
	StaleAvailable bool
}

// === Pages ===

func (h *PortfolioHandler) HandleHome(w http.ResponseWriter, r *http.Request) {
	h.servePage(w, r, view.PageHome, nil)
}

func (h *PortfolioHandler) HandleRepos(w http.ResponseWriter, r *http.Request) {
	h.servePage(w, r, view.PageRepos, nil)
}

func (h *PortfolioHandler) HandleFollowers(w http.ResponseWriter, r *http.Request) {
	h.servePage(w, r, view.PageFollowers, nil)
}

func (h *PortfolioHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	h.servePage(w, r, view.PageStats, nil)
}

// HandleRepo renders the repository grid with one repository's README open.
func (h *PortfolioHandler) HandleRepo(w http.ResponseWriter, r *http.Request) {
	name := urlParam(r, "name")
	h.servePage(w, r, view.PageRepos, func(ctx context.Context, d *pageData) error {
		rm, repo, err := h.svc.Readme(ctx, name)
		if err != nil {
			return err
		}
		modal := &repoModal{
			Repo:  repo,
			Roast: classifier.Classify(repo),
			Tag:   d.Snapshot.Tags[repo.Name],
		}
		if rm != nil {
			modal.Branch = rm.Branch
			html, err := h.markdown.Render(rm.Content, markdown.Source{
				Owner:  ownerOf(repo, h.svc.Login()),
				Repo:   repo.Name,
				Branch: rm.Branch,
			})
			if err != nil {
				h.logger.Warn("rendering readme failed",
					slog.String("repo", repo.Name),
					slog.String("error", err.Error()),
				)
			} else {
				modal.Readme = html
			}
		}
		p, err := h.svc.Participation(ctx, name)
		if err != nil {
			return err
		}
		modal.Participation = p
		if p == nil {
			modal.RetryAfter = service.ParticipationRetryAfter.Milliseconds()
		}
		d.State.Expanded = repo.Name
		d.Modal = modal
		return nil
	})
}

// servePage loads data per the initial-load policy and renders page. When the
// data is blocked the error screen is rendered instead. extra, if set, fills
// page-specific fields once a snapshot is available.
func (h *PortfolioHandler) servePage(w http.ResponseWriter, r *http.Request, page view.Page, extra func(context.Context, *pageData) error) {
	ctx := r.Context()
	state := auth.StateFromContext(ctx)
	state.View = page

	data := &pageData{
		Title:       fmt.Sprintf("%s's Coffee Shop", h.svc.Login()),
		Page:        page,
		Login:       h.svc.Login(),
		Timing:      h.timing,
		KeyRequired: h.verifier.Enabled(),
	}

	snap, stale, screen := h.load(ctx, &state)
	data.State = state
	data.Status = h.svc.Board().Current()

	if screen != nil {
		data.Blocked = screen
		status := http.StatusServiceUnavailable
		if screen.RateLimited {
			status = http.StatusTooManyRequests
		}
		h.render(w, r, tmplBlocked, status, data)
		return
	}

	data.Snapshot = snap
	data.Stale = stale
	h.fill(data)

	if extra != nil {
		if err := extra(ctx, data); err != nil {
			h.renderError(w, r, err)
			return
		}
	}

	h.render(w, r, templateFor(page), http.StatusOK, data)
}

// load picks the snapshot to show. A viewer who chose the stale escape hatch
// keeps reading the cache until the shared status is no longer blocked.
func (h *PortfolioHandler) load(ctx context.Context, state *view.State) (*model.Snapshot, bool, *blockedScreen) {
	if state.UseStale {
		if h.svc.Board().Current().Mode == service.ModeBlocked {
			if snap, err := h.svc.LoadStale(ctx); err == nil {
				return snap, true, nil
			}
		}
		state.UseStale = false
	}

	out := h.svc.Resolve(ctx, service.TriggerInitial, false)
	if out.Mode == service.ModeReady && out.Snapshot != nil {
		return out.Snapshot, false, nil
	}
	return nil, false, h.blockedScreen(out)
}

func (h *PortfolioHandler) blockedScreen(out service.Outcome) *blockedScreen {
	screen := &blockedScreen{
		Message:        service.UserMessage(out.Err),
		StaleAvailable: out.StaleAvailable,
	}
	if !out.ResetAt.IsZero() {
		screen.RateLimited = true
		screen.ResetEpoch = out.ResetAt.Unix()
		screen.Countdown = countdown.FormatEpoch(screen.ResetEpoch, h.now())
	}
	return screen
}

// fill derives the per-page lists from the snapshot and view state.
func (h *PortfolioHandler) fill(d *pageData) {
	snap := d.Snapshot
	switch d.Page {
	case view.PageHome:
		d.Featured = snap.PinnedRepos
	case view.PageRepos:
		filtered := view.FilterRepos(snap.Repos, d.State.Search, d.State.Language)
		d.Repos = view.Paginate(filtered, d.State.RepoPage, view.RepoPageSize)
		d.State.RepoPage = d.Repos.Page
		d.Languages = view.Languages(snap.Repos)
	case view.PageFollowers:
		d.Followers = view.Paginate(snap.FollowerUsers(), d.State.FollowerPage, view.FollowerPageSize)
		d.State.FollowerPage = d.Followers.Page
	}
}

func (h *PortfolioHandler) render(w http.ResponseWriter, r *http.Request, name string, status int, data *pageData) {
	// The clamped page numbers and cleared flags become the new cookie.
	if err := auth.SaveState(w, r, h.codec, data.State); err != nil {
		h.logger.Warn("saving view state failed", slog.String("error", err.Error()))
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := h.templates[name].ExecuteTemplate(w, "base", data); err != nil {
		h.logger.Error("failed to render template",
			slog.String("template", name),
			slog.String("error", err.Error()),
		)
	}
}

// renderError is used for failures after data loaded, e.g. an unknown repository.
func (h *PortfolioHandler) renderError(w http.ResponseWriter, r *http.Request, err error) {
	status, _ := errorStatus(err)
	msg := "Something went wrong brewing this page."
	if status == http.StatusNotFound {
		msg = "That repository isn't on the menu."
	}
	http.Error(w, msg, status)
}

func templateFor(p view.Page) string {
	switch p {
	case view.PageRepos:
		return tmplRepos
	case view.PageFollowers:
		return tmplFollowers
	case view.PageStats:
		return tmplStats
	default:
		return tmplHome
	}
}

// pagePath is the URL of a top-level screen.
func pagePath(p view.Page) string {
	if p == view.PageHome {
		return "/"
	}
	return "/" + string(p)
}

func ownerOf(r model.Repository, fallback string) string {
	if o := r.Owner(); o != "" {
		return o
	}
	return fallback
}

// localPath accepts only same-site absolute paths as redirect targets.
func localPath(p string) (string, bool) {
	if !strings.HasPrefix(p, "/") || strings.HasPrefix(p, "//") || strings.HasPrefix(p, "/\\") {
		return "", false
	}
	return p, true
}
