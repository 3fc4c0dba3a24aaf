package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/brewfolio/internal/apperror"
	"github.com/sakif/brewfolio/internal/auth"
	"github.com/sakif/brewfolio/internal/countdown"
	"github.com/sakif/brewfolio/internal/service"
	"github.com/sakif/brewfolio/internal/view"
)

// urlParam reads a chi route parameter, undoing any percent-encoding.
func urlParam(r *http.Request, key string) string {
	raw := chi.URLParam(r, key)
	if v, err := url.PathUnescape(raw); err == nil {
		return v
	}
	return raw
}

// HandleAction applies one view action from a form post and redirects
// (Post/Redirect/Get) to the page that shows the new state.
//
// Form fields: action, value, and optional return (a local path).
func (h *PortfolioHandler) HandleAction(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	action := view.Action{
		Type:  view.ActionType(r.PostFormValue("action")),
		Value: r.PostFormValue("value"),
	}
	state := view.Reduce(auth.StateFromContext(r.Context()), action)
	h.saveAndRedirect(w, r, state, redirectTarget(r, state, action))
}

func redirectTarget(r *http.Request, s view.State, a view.Action) string {
	switch a.Type {
	case view.ActionNavigate:
		return pagePath(s.View)
	case view.ActionExpand:
		if s.Expanded != "" {
			return "/repos/" + url.PathEscape(s.Expanded)
		}
		return pagePath(view.PageRepos)
	case view.ActionSearch, view.ActionFilter, view.ActionRepoPage:
		return pagePath(view.PageRepos)
	case view.ActionFollowerPage:
		return pagePath(view.PageFollowers)
	}
	if p, ok := localPath(r.PostFormValue("return")); ok {
		return p
	}
	return pagePath(s.View)
}

// HandleRefresh is the manual refresh button. On a healthy page a failure
// only opens a dialog; on a blocked page it behaves like a page load.
func (h *PortfolioHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	state := auth.StateFromContext(r.Context())
	target := pagePath(state.View)
	if p, ok := localPath(r.FormValue("return")); ok {
		target = p
	}

	if err := h.verifier.Verify(auth.RefreshKey(r)); err != nil {
		state = view.Reduce(state, view.Action{Type: view.ActionShowDialog, Value: refusalMessage(err)})
		h.saveAndRedirect(w, r, state, target)
		return
	}

	healthy := h.svc.Board().Current().Mode != service.ModeBlocked
	out := h.svc.Resolve(r.Context(), service.TriggerManual, healthy)

	switch out.Mode {
	case service.ModeReady:
		state.UseStale = false
		state.Dialog = ""
	case service.ModeDialog:
		state = view.Reduce(state, view.Action{Type: view.ActionShowDialog, Value: h.dialogMessage(out)})
	}
	h.saveAndRedirect(w, r, state, target)
}

// HandleUseStale is the escape hatch on the error screen: continue with the
// cached snapshot whatever its age.
func (h *PortfolioHandler) HandleUseStale(w http.ResponseWriter, r *http.Request) {
	state := auth.StateFromContext(r.Context())
	if _, err := h.svc.LoadStale(r.Context()); err != nil {
		h.logger.Info("stale snapshot requested but none cached")
		h.saveAndRedirect(w, r, state, pagePath(state.View))
		return
	}
	state = view.Reduce(state, view.Action{Type: view.ActionUseStale})
	h.saveAndRedirect(w, r, state, pagePath(state.View))
}

func (h *PortfolioHandler) dialogMessage(out service.Outcome) string {
	msg := service.UserMessage(out.Err)
	if !out.ResetAt.IsZero() {
		msg = fmt.Sprintf("%s Try again in %s.", msg, countdown.Format(out.ResetAt, h.now()))
	}
	return msg
}

func refusalMessage(err error) string {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return "Refresh refused: " + appErr.Message + "."
	}
	return "Refresh refused."
}

func (h *PortfolioHandler) saveAndRedirect(w http.ResponseWriter, r *http.Request, s view.State, target string) {
	if err := auth.SaveState(w, r, h.codec, s); err != nil {
		h.logger.Warn("saving view state failed", slog.String("error", err.Error()))
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}
