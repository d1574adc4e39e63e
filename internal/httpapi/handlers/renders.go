package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"scenecast/internal/httpkit"
	"scenecast/internal/models"
	apperrors "scenecast/internal/pkg/errors"
	"scenecast/internal/ports"
	"scenecast/internal/render"
	"scenecast/internal/render/workspace"
	"scenecast/internal/repositories"
)

type CreateRenderRequest struct {
	Prompt   string  `json:"prompt"`
	Script   string  `json:"script,omitempty"`
	Duration float64 `json:"duration"`
	Mode     string  `json:"mode,omitempty"`
	Width    int     `json:"width,omitempty"`
	Height   int     `json:"height,omitempty"`
	FPS      int     `json:"fps,omitempty"`
}

// PostRender records a render job and queues it. A submitted script is
// validated here so the caller learns about it at once.
func (h *Handler) PostRender(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()

	var body CreateRenderRequest
	if err := httpkit.DecodeJSON(r, &body); err != nil {
		return apperrors.Validation("invalid json body: " + err.Error())
	}
	body.Prompt = strings.TrimSpace(body.Prompt)
	if body.Prompt == "" && strings.TrimSpace(body.Script) == "" {
		return apperrors.ValidationField("prompt", "prompt or script is required")
	}
	mode, err := render.ParseMode(body.Mode)
	if err != nil {
		return apperrors.ValidationField("mode", err.Error())
	}

	req := h.defaults(render.Request{
		JobID:    workspace.NewJobID(),
		Prompt:   body.Prompt,
		Duration: body.Duration,
		Mode:     mode,
		Width:    body.Width,
		Height:   body.Height,
		FPS:      body.FPS,
	})
	if err := req.Validate(); err != nil {
		return apperrors.Validation(err.Error())
	}
	if strings.TrimSpace(body.Script) != "" {
		if _, res := render.Validate(render.NewScript(body.Script)); !res.OK {
			return apperrors.New(apperrors.CodeScriptInvalid, res.Reason).WithField("missing", res.Missing)
		}
	}

	job := &models.RenderJob{
		ID:              req.JobID,
		Prompt:          req.Prompt,
		Script:          body.Script,
		DurationMinutes: req.Duration,
		Mode:            string(req.Mode),
		Width:           req.Width,
		Height:          req.Height,
		FPS:             req.FPS,
		FrameCount:      req.FrameCount(),
	}
	if err := h.renders.Create(ctx, job); err != nil {
		return apperrors.Wrap(err, "renders.create", "db insert failed")
	}
	if err := h.queue.Push(ctx, job.ID); err != nil {
		return apperrors.WrapWithCode(err, apperrors.CodeUnavailable, "renders.enqueue", "queue push failed").
			WithField("render_id", job.ID)
	}

	h.log.FromContext(ctx).Info("render queued", "job_id", job.ID, "frames", job.FrameCount)
	httpkit.WriteJSON(w, http.StatusCreated, map[string]any{"render": job})
	return nil
}

// ListRenders lists jobs, newest first, optionally filtered by status.
func (h *Handler) ListRenders(w http.ResponseWriter, r *http.Request) error {
	status := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("status")))
	limit := 50
	if v, err := strconv.Atoi(strings.TrimSpace(r.URL.Query().Get("limit"))); err == nil && v > 0 && v <= 200 {
		limit = v
	}

	jobs, err := h.renders.List(r.Context(), status, limit)
	if err != nil {
		return apperrors.Wrap(err, "renders.list", "db query failed")
	}
	if jobs == nil {
		jobs = []models.RenderJob{}
	}
	httpkit.WriteJSON(w, http.StatusOK, map[string]any{"renders": jobs})
	return nil
}

func (h *Handler) GetRender(w http.ResponseWriter, r *http.Request) error {
	job, err := h.loadRender(r)
	if err != nil {
		return err
	}
	httpkit.WriteJSON(w, http.StatusOK, map[string]any{"render": job})
	return nil
}

// StreamRenderVideo serves a finished render's video from storage.
func (h *Handler) StreamRenderVideo(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()
	job, err := h.loadRender(r)
	if err != nil {
		return err
	}
	if job.Status != models.StatusDone || job.VideoAssetID == "" {
		return apperrors.New(apperrors.CodeConflict, "render has no video yet").
			WithFields(map[string]any{"render_id": job.ID, "status": job.Status, "stage": job.Stage})
	}

	asset, err := h.assets.Get(ctx, job.VideoAssetID)
	if err != nil {
		if errors.Is(err, repositories.ErrAssetNotFound) {
			return apperrors.NotFound("asset", job.VideoAssetID)
		}
		return apperrors.Wrap(err, "renders.video", "asset lookup failed")
	}

	rc, ct, size, err := h.sp.GetObject(ctx, asset.ObjectKey)
	if err != nil {
		code, msg := apperrors.CodeStorage, "video could not be read"
		if errors.Is(err, ports.ErrObjectNotFound) {
			code, msg = apperrors.CodeNotFound, "video file missing"
		}
		return apperrors.WrapWithCode(err, code, "renders.video", msg).
			WithField("object_key", asset.ObjectKey)
	}
	defer rc.Close()

	if ct == "" {
		ct = asset.Mime
	}
	if size <= 0 {
		size = asset.SizeBytes
	}
	w.Header().Set("Content-Type", ct)
	if size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	}
	if _, err := io.Copy(w, rc); err != nil {
		// Headers are gone; the client sees a short body.
		h.log.FromContext(ctx).WithError(err).Warn("video stream interrupted", "job_id", job.ID)
	}
	return nil
}

func (h *Handler) loadRender(r *http.Request) (*models.RenderJob, error) {
	id := chi.URLParam(r, "renderId")
	job, err := h.renders.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, repositories.ErrRenderNotFound) {
			return nil, apperrors.NotFound("render", id)
		}
		return nil, apperrors.Wrap(err, "renders.get", "db query failed")
	}
	return job, nil
}
