/*
handlers.go - HTTP API handlers for the sprint engine

PURPOSE:
  Exposes sprints, daily updates and the compensation calculator via REST.
  Handles HTTP request/response and JSON serialization, and delegates to the
  domain packages.

ENDPOINTS:
  Sprints:
    GET    /api/sprints                      List sprints
    POST   /api/sprints                      Create sprint
    GET    /api/sprints/{id}                 Get sprint
    DELETE /api/sprints/{id}                 Delete sprint
    GET    /api/sprints/{id}/sprint-day      Suggested sprint day (?date=)

  Daily updates:
    GET    /api/sprints/{id}/updates         List updates
    POST   /api/sprints/{id}/updates         Post update

  Compensation:
    GET    /api/sprints/{id}/compensation    Saved plans, newest first
    POST   /api/sprints/{id}/compensation    Save plan
    POST   /api/compensation/compute         Breakdown + milestone payouts
    POST   /api/compensation/milestones      Validate and append a milestone
    POST   /api/compensation/export          CSV download
    POST   /api/compensation/import          CSV upload
    POST   /api/compensation/email           Email plan to recipients

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input, unreadable CSV
  - 404: Sprint not found
  - 500: Internal errors

SECURITY NOTE:
  No authentication. Account/session handling is an external collaborator
  that sits in front of this service.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/warp/sprint-engine/compensation"
	"github.com/warp/sprint-engine/generic"
	"github.com/warp/sprint-engine/notify"
	"github.com/warp/sprint-engine/sprint"
	"github.com/warp/sprint-engine/store/sqlite"
	"go.uber.org/zap"
)

// maxImportBytes bounds CSV uploads.
const maxImportBytes = 1 << 20

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store    *sqlite.Store
	Mailer   notify.Mailer
	MailFrom string
	Logger   *zap.Logger

	// Now is the clock used for sprint-day defaults.
	Now func() time.Time
}

// NewHandler creates a new handler with the given store. A nil mailer logs
// messages instead of sending them.
func NewHandler(store *sqlite.Store, mailer notify.Mailer, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if mailer == nil {
		mailer = notify.NewLogMailer(logger)
	}
	return &Handler{
		Store:  store,
		Mailer: mailer,
		Logger: logger,
		Now:    time.Now,
	}
}

// =============================================================================
// SPRINT HANDLERS
// =============================================================================

// ListSprints returns all sprints.
func (h *Handler) ListSprints(w http.ResponseWriter, r *http.Request) {
	sprints, err := h.Store.ListSprints(r.Context())
	if err != nil {
		h.writeDomainError(w, r, "Failed to list sprints", err)
		return
	}

	dtos := make([]SprintDTO, len(sprints))
	for i, s := range sprints {
		dtos[i] = toSprintDTO(s)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateSprint creates a new sprint.
func (h *Handler) CreateSprint(w http.ResponseWriter, r *http.Request) {
	var req CreateSprintRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	s := sprint.Sprint{
		ID:         generic.SprintID(strings.TrimSpace(req.ID)),
		Title:      strings.TrimSpace(req.Title),
		ClientName: strings.TrimSpace(req.ClientName),
		Weeks:      req.Weeks,
		CreatedAt:  h.Now(),
	}
	if s.ID == "" {
		s.ID = generic.SprintID(uuid.NewString())
	}
	if s.Weeks == 0 {
		s.Weeks = sprint.DefaultWeeks
	}
	if req.StartDate != nil && strings.TrimSpace(*req.StartDate) != "" {
		tp, ok := generic.ParseDate(*req.StartDate)
		if !ok {
			writeError(w, http.StatusBadRequest, "Invalid start_date format (use YYYY-MM-DD)", nil)
			return
		}
		start := tp.Time
		s.StartDate = &start
	}
	if err := s.Validate(); err != nil {
		h.writeDomainError(w, r, "Invalid sprint", err)
		return
	}

	if err := h.Store.SaveSprint(r.Context(), s); err != nil {
		h.writeDomainError(w, r, "Failed to create sprint", err)
		return
	}

	h.Logger.Info("sprint created", zap.String("sprint_id", string(s.ID)), zap.Int("weeks", s.Weeks))
	writeJSON(w, http.StatusCreated, toSprintDTO(s))
}

// GetSprint returns a single sprint.
func (h *Handler) GetSprint(w http.ResponseWriter, r *http.Request) {
	s, ok := h.loadSprint(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toSprintDTO(*s))
}

// DeleteSprint removes a sprint with its plans and updates.
func (h *Handler) DeleteSprint(w http.ResponseWriter, r *http.Request) {
	id := generic.SprintID(chi.URLParam(r, "id"))
	if err := h.Store.DeleteSprint(r.Context(), id); err != nil {
		h.writeDomainError(w, r, "Failed to delete sprint", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetSprintDay suggests the sprint day for ?date= (default today).
// GET /api/sprints/{id}/sprint-day
func (h *Handler) GetSprintDay(w http.ResponseWriter, r *http.Request) {
	s, ok := h.loadSprint(w, r)
	if !ok {
		return
	}

	now := h.Now()
	if raw := r.URL.Query().Get("date"); raw != "" {
		tp, ok := generic.ParseDate(raw)
		if !ok {
			writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", nil)
			return
		}
		now = tp.Time
	}

	window := s.Window()
	writeJSON(w, http.StatusOK, SprintDayDTO{
		SprintID:  string(s.ID),
		Date:      generic.TimePointOf(now).String(),
		SprintDay: window.DefaultSprintDay(now),
		TotalDays: window.TotalDays(),
	})
}

// =============================================================================
// DAILY UPDATE HANDLERS
// =============================================================================

// ListDailyUpdates returns a sprint's updates.
func (h *Handler) ListDailyUpdates(w http.ResponseWriter, r *http.Request) {
	s, ok := h.loadSprint(w, r)
	if !ok {
		return
	}

	updates, err := h.Store.ListDailyUpdates(r.Context(), s.ID)
	if err != nil {
		h.writeDomainError(w, r, "Failed to list updates", err)
		return
	}

	dtos := make([]DailyUpdateDTO, len(updates))
	for i, u := range updates {
		dtos[i] = toDailyUpdateDTO(u)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateDailyUpdate posts an update, defaulting the sprint day when omitted.
func (h *Handler) CreateDailyUpdate(w http.ResponseWriter, r *http.Request) {
	s, ok := h.loadSprint(w, r)
	if !ok {
		return
	}

	var req CreateDailyUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	window := s.Window()
	now := h.Now()
	u := sprint.DailyUpdate{
		ID:          uuid.NewString(),
		SprintID:    s.ID,
		SprintDay:   req.SprintDay,
		Frame:       req.Frame,
		Body:        req.Body,
		Links:       req.Links,
		Attachments: req.Attachments,
		CreatedAt:   now,
	}
	if u.SprintDay == 0 {
		u.SprintDay = window.DefaultSprintDay(now)
	}
	if err := u.Validate(window.TotalDays()); err != nil {
		h.writeDomainError(w, r, "Invalid update", err)
		return
	}

	if err := h.Store.SaveDailyUpdate(r.Context(), u); err != nil {
		h.writeDomainError(w, r, "Failed to save update", err)
		return
	}
	writeJSON(w, http.StatusCreated, toDailyUpdateDTO(u))
}

// =============================================================================
// COMPENSATION HANDLERS
// =============================================================================

// Compute returns the split and milestone payouts for the posted state.
// POST /api/compensation/compute
func (h *Handler) Compute(w http.ResponseWriter, r *http.Request) {
	var req CompensationInputDTO
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	writeJSON(w, http.StatusOK, toComputeResponse(req.toState()))
}

// AddMilestone validates a milestone and returns the list with it appended.
// POST /api/compensation/milestones
func (h *Handler) AddMilestone(w http.ResponseWriter, r *http.Request) {
	var req AddMilestoneRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	state := CompensationInputDTO{Milestones: req.Milestones}.toState()
	ledger := compensation.NewLedgerFrom(state.Milestones)

	multiplier, ok := generic.DecimalFromFloat(req.Multiplier)
	if !ok {
		multiplier = decimal.Zero
	}
	m, err := ledger.Add(compensation.MilestoneInput{
		Summary:    req.Summary,
		Multiplier: multiplier,
		Date:       req.Date,
	})
	if err != nil {
		h.writeDomainError(w, r, "Invalid milestone", err)
		return
	}

	resp := AddMilestoneResponse{Milestone: toMilestoneDTO(m)}
	for _, ms := range ledger.Milestones() {
		resp.Milestones = append(resp.Milestones, toMilestoneDTO(ms))
	}
	writeJSON(w, http.StatusOK, resp)
}

// ListCompensationPlans returns a sprint's saved plans.
// GET /api/sprints/{id}/compensation
func (h *Handler) ListCompensationPlans(w http.ResponseWriter, r *http.Request) {
	s, ok := h.loadSprint(w, r)
	if !ok {
		return
	}

	records, err := h.Store.ListCompensationPlans(r.Context(), s.ID)
	if err != nil {
		h.writeDomainError(w, r, "Failed to list plans", err)
		return
	}

	dtos := make([]SavedPlanDTO, len(records))
	for i, rec := range records {
		dtos[i] = toSavedPlanDTO(rec)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// SaveCompensationPlan stores the calculator state for a sprint. Every
// milestone must pass the add rules before it is persisted.
// POST /api/sprints/{id}/compensation
func (h *Handler) SaveCompensationPlan(w http.ResponseWriter, r *http.Request) {
	s, ok := h.loadSprint(w, r)
	if !ok {
		return
	}

	var req SaveCompensationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	state := req.Inputs.toState()
	if err := compensation.NewLedgerFrom(state.Milestones).Validate(); err != nil {
		h.writeDomainError(w, r, "Invalid milestone", err)
		return
	}

	snap := compensation.NewSnapshot(string(s.ID), req.Label, state)
	id, err := h.Store.SaveCompensationPlan(r.Context(), snap)
	if err != nil {
		h.writeDomainError(w, r, "Failed to save plan", err)
		return
	}

	h.Logger.Info("compensation plan saved",
		zap.String("sprint_id", string(s.ID)),
		zap.Int64("plan_id", id),
		zap.Int("milestones", len(state.Milestones)),
	)
	writeJSON(w, http.StatusCreated, SavedPlanDTO{ID: id, Snapshot: snap, CreatedAt: h.Now().Format(time.RFC3339)})
}

// ExportCSV returns the posted state as a CSV download.
// POST /api/compensation/export
func (h *Handler) ExportCSV(w http.ResponseWriter, r *http.Request) {
	var req CompensationInputDTO
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	var buf bytes.Buffer
	if err := compensation.ExportCSV(&buf, req.toState()); err != nil {
		h.writeDomainError(w, r, "Failed to export CSV", err)
		return
	}

	name := "compensation"
	if req.SprintID != "" {
		name += "-" + sanitizeFilename(req.SprintID)
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.csv"`, name))
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

// ImportCSV reads a CSV upload (raw body or multipart "file") on top of a
// fresh calculator, or on top of the sprint's latest saved plan when
// ?sprint_id= names one.
// POST /api/compensation/import
func (h *Handler) ImportCSV(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	base := compensation.State{Plan: compensation.NewPlan()}

	if sid := r.URL.Query().Get("sprint_id"); sid != "" {
		latest, err := h.Store.LatestCompensationPlan(ctx, generic.SprintID(sid))
		if err != nil {
			h.writeDomainError(w, r, "Failed to load saved plan", err)
			return
		}
		if latest != nil {
			base = latest.Snapshot.State()
		} else {
			base.SelectedSprint = sid
		}
	}

	src, closeFn, err := importSource(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Could not read the uploaded file", err)
		return
	}
	defer closeFn()

	res, err := compensation.ImportCSV(src, base)
	if err != nil {
		if compensation.IsImportError(err) {
			writeError(w, http.StatusBadRequest, "Could not import CSV", err)
			return
		}
		h.writeDomainError(w, r, "Could not import CSV", err)
		return
	}

	applied := res.Applied
	if applied == nil {
		applied = []string{}
	}
	writeJSON(w, http.StatusOK, ImportResponse{
		Message:            "CSV imported successfully",
		Inputs:             toCompensationInputDTO(res.State),
		Applied:            applied,
		MilestonesImported: res.MilestonesImported,
	})
}

func importSource(r *http.Request) (io.Reader, func(), error) {
	r.Body = http.MaxBytesReader(nil, r.Body, maxImportBytes)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		f, _, err := r.FormFile("file")
		if err != nil {
			return nil, func() {}, err
		}
		return f, func() { f.Close() }, nil
	}
	return r.Body, func() {}, nil
}

// EmailCompensation sends the posted state to the listed recipients.
// POST /api/compensation/email
func (h *Handler) EmailCompensation(w http.ResponseWriter, r *http.Request) {
	var req EmailRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	recipients, err := notify.ParseRecipients(req.Recipients)
	if err != nil {
		h.writeDomainError(w, r, "Invalid recipients", err)
		return
	}

	snap := compensation.NewSnapshot(req.Inputs.SprintID, req.Label, req.Inputs.toState())
	msg := notify.NewSnapshotMessage(h.MailFrom, recipients, snap)
	if err := h.Mailer.Send(r.Context(), msg); err != nil {
		h.writeDomainError(w, r, "Failed to send email", err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"status":     "sent",
		"recipients": recipients,
	})
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) loadSprint(w http.ResponseWriter, r *http.Request) (*sprint.Sprint, bool) {
	id := generic.SprintID(chi.URLParam(r, "id"))
	s, err := h.Store.GetSprint(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, r, "Failed to get sprint", err)
		return nil, false
	}
	return s, true
}

func toSavedPlanDTO(rec sqlite.PlanRecord) SavedPlanDTO {
	dto := SavedPlanDTO{ID: rec.ID, Snapshot: rec.Snapshot}
	if !rec.CreatedAt.IsZero() {
		dto.CreatedAt = rec.CreatedAt.Format(time.RFC3339)
	}
	return dto
}

// writeDomainError maps domain errors to status codes. Server-side failures
// are logged; client errors are not.
func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, message string, err error) {
	switch {
	case generic.IsNotFound(err):
		writeError(w, http.StatusNotFound, "Sprint not found", nil)
	case generic.IsClientError(err):
		resp := ErrorResponse{Error: message, Details: err.Error()}
		var ve *generic.ValidationError
		if errors.As(err, &ve) {
			resp.Field = ve.Field
		}
		writeJSON(w, http.StatusBadRequest, resp)
	default:
		h.Logger.Error(message,
			zap.Error(err),
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
		writeError(w, http.StatusInternalServerError, message, err)
	}
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

func sanitizeFilename(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '-'
	}, s)
}
