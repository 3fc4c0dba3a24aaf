package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/sakif/brewfolio/internal/apperror"
	"github.com/sakif/brewfolio/internal/auth"
	"github.com/sakif/brewfolio/internal/classifier"
	"github.com/sakif/brewfolio/internal/countdown"
	"github.com/sakif/brewfolio/internal/markdown"
	"github.com/sakif/brewfolio/internal/model"
	"github.com/sakif/brewfolio/internal/service"
)

// SnapshotResponse is the body of GET /api/snapshot and POST /api/refresh.
type SnapshotResponse struct {
	Status   service.Status  `json:"status"`
	Stale    bool            `json:"stale"`
	Snapshot *model.Snapshot `json:"snapshot"`
}

// HandleSnapshot returns the portfolio data. ?stale=1 returns the cached
// snapshot whatever its age and never touches GitHub.
func (h *PortfolioHandler) HandleSnapshot(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if r.URL.Query().Get("stale") == "1" {
		snap, err := h.svc.LoadStale(ctx)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, SnapshotResponse{Status: h.svc.Board().Current(), Stale: true, Snapshot: snap})
		return
	}

	out := h.svc.Resolve(ctx, service.TriggerInitial, false)
	if out.Mode != service.ModeReady {
		writeError(w, out.Err)
		return
	}
	writeJSON(w, http.StatusOK, SnapshotResponse{Status: h.svc.Board().Current(), Snapshot: out.Snapshot})
}

// HandleAPIRefresh forces a full aggregation pass. The refresh key, when
// configured, goes in the X-Refresh-Key header.
func (h *PortfolioHandler) HandleAPIRefresh(w http.ResponseWriter, r *http.Request) {
	if err := h.verifier.Verify(auth.RefreshKey(r)); err != nil {
		writeError(w, err)
		return
	}

	healthy := h.svc.Board().Current().Mode != service.ModeBlocked
	out := h.svc.Resolve(r.Context(), service.TriggerManual, healthy)
	if out.Mode != service.ModeReady {
		writeError(w, out.Err)
		return
	}
	writeJSON(w, http.StatusOK, SnapshotResponse{Status: h.svc.Board().Current(), Snapshot: out.Snapshot})
}

// CountdownResponse is the body of GET /api/countdown.
type CountdownResponse struct {
	Label            string `json:"label"`
	Ready            bool   `json:"ready"`
	RemainingSeconds int64  `json:"remainingSeconds"`
	ResetAt          int64  `json:"resetAt,omitempty"`
}

// HandleCountdown formats the time left until ?reset= (Unix seconds). Without
// the parameter it uses the current rate-limit reset, if any.
func (h *PortfolioHandler) HandleCountdown(w http.ResponseWriter, r *http.Request) {
	now := h.now()

	var target time.Time
	if raw := r.URL.Query().Get("reset"); raw != "" {
		epoch, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || epoch < 0 {
			writeError(w, apperror.ValidationFailed("reset", "reset must be a Unix timestamp in seconds"))
			return
		}
		target = time.Unix(epoch, 0)
	} else if st := h.svc.Board().Current(); st.RateLimited() {
		target = st.ResetAt
	}

	resp := CountdownResponse{Label: countdown.ReadyLabel, Ready: true}
	if !target.IsZero() {
		resp.ResetAt = target.Unix()
		resp.Label = countdown.Format(target, now)
		resp.RemainingSeconds = int64(countdown.Remaining(target, now) / time.Second)
		resp.Ready = resp.Label == countdown.ReadyLabel
	}
	writeJSON(w, http.StatusOK, resp)
}

// ReadmeResponse is the body of GET /api/repos/{name}/readme.
type ReadmeResponse struct {
	Repo   string           `json:"repo"`
	Branch string           `json:"branch"`
	HTML   string           `json:"html"`
	Roast  classifier.Roast `json:"roast"`
}

// HandleReadme returns a repository's README rendered to HTML.
func (h *PortfolioHandler) HandleReadme(w http.ResponseWriter, r *http.Request) {
	name := urlParam(r, "name")
	rm, repo, err := h.svc.Readme(r.Context(), name)
	if err != nil {
		writeError(w, err)
		return
	}
	if rm == nil {
		writeError(w, apperror.NotFound("readme", name))
		return
	}

	html, err := h.markdown.Render(rm.Content, markdown.Source{
		Owner:  ownerOf(repo, h.svc.Login()),
		Repo:   repo.Name,
		Branch: rm.Branch,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ReadmeResponse{
		Repo:   repo.Name,
		Branch: rm.Branch,
		HTML:   string(html),
		Roast:  classifier.Classify(repo),
	})
}

// HandleParticipation returns weekly commit counts. While GitHub is still
// computing them the answer is 202 with Retry-After.
func (h *PortfolioHandler) HandleParticipation(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.Participation(r.Context(), urlParam(r, "name"))
	if err != nil {
		writeError(w, err)
		return
	}
	if p == nil {
		w.Header().Set("Retry-After", strconv.Itoa(int(service.ParticipationRetryAfter/time.Second)))
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "computing"})
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// HandleHealth reports liveness plus the shared data status.
func (h *PortfolioHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	st := h.svc.Board().Current()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"mode":        st.Mode,
		"subscribers": h.svc.Board().Subscribers(),
	})
}
