/*
handlers.go - HTTP API handlers for the TOIL engine

PURPOSE:
  Exposes the TOIL accrual engine via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Users:
    GET  /api/users/{id}/summary      Monthly summary (accrued/used/remaining)
    GET  /api/users/{id}/records      Accrual record history
    POST /api/users/{id}/recalculate  Recalculate accrual for a date
    POST /api/users/{id}/usage        Record TOIL consumption
    PUT  /api/users/{id}/schedule     Assign work schedule
    POST /api/users/{id}/entries      Register time entries

  Holidays:
    PUT  /api/holidays                Replace the holiday calendar

  Admin:
    POST /api/admin/dedup                 Void duplicate records
    POST /api/admin/cache/clear           Drop all cached summaries
    POST /api/admin/calculations/disable  Kill-switch: reject all calculations
    POST /api/admin/calculations/resume   Lift the kill-switch

  Health:
    GET  /api/health

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: No schedule assigned to the user
  - 429: Calculation throttled or disabled
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/warp/toil-engine/engine"
	"github.com/warp/toil-engine/schedule"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Engine    *engine.Engine
	Schedules *ScheduleRegistry
	Holidays  *HolidayRegistry
	Entries   *EntryRegistry
}

// NewHandler creates a handler around an engine and its input registries.
func NewHandler(eng *engine.Engine, schedules *ScheduleRegistry, holidays *HolidayRegistry, entries *EntryRegistry) *Handler {
	return &Handler{
		Engine:    eng,
		Schedules: schedules,
		Holidays:  holidays,
		Entries:   entries,
	}
}

// =============================================================================
// USER HANDLERS
// =============================================================================

// GetSummary returns the accrued/used/remaining summary for a month.
// The month defaults to the current one when the query param is absent.
func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	userID := engine.UserID(chi.URLParam(r, "id"))

	month := engine.MonthYear(r.URL.Query().Get("month"))
	if month == "" {
		month = engine.MonthYearOf(time.Now().UTC())
	}
	if _, err := time.Parse("2006-01", string(month)); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid month format (use YYYY-MM)", err)
		return
	}

	summary, err := h.Engine.Summary(r.Context(), userID, month)
	if err != nil {
		writeDomainError(w, "Failed to compute summary", err)
		return
	}

	writeJSON(w, http.StatusOK, toSummaryDTO(summary))
}

// GetRecords returns the user's accrual record history, voided included.
func (h *Handler) GetRecords(w http.ResponseWriter, r *http.Request) {
	userID := engine.UserID(chi.URLParam(r, "id"))

	var (
		recs []engine.Record
		err  error
	)
	if month := r.URL.Query().Get("month"); month != "" {
		recs, err = h.Engine.Store().ListByUserMonth(r.Context(), userID, engine.MonthYear(month))
	} else {
		recs, err = h.Engine.Store().ListByUser(r.Context(), userID)
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list records", err)
		return
	}

	writeJSON(w, http.StatusOK, toRecordDTOs(recs))
}

// Recalculate runs the accrual calculation for one user-day using the
// registered schedule, holidays, and time entries.
func (h *Handler) Recalculate(w http.ResponseWriter, r *http.Request) {
	userID := engine.UserID(chi.URLParam(r, "id"))

	var req RecalculateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
		return
	}

	summary, err := h.Engine.Recalculate(r.Context(), userID, date)
	if err != nil {
		writeDomainError(w, "Calculation failed", err)
		return
	}
	if summary == nil {
		// No accrual produced for this day; report the current state.
		current, err := h.Engine.Summary(r.Context(), userID, engine.MonthYearOf(date))
		if err != nil {
			writeDomainError(w, "Failed to compute summary", err)
			return
		}
		writeJSON(w, http.StatusOK, toSummaryDTO(current))
		return
	}

	writeJSON(w, http.StatusOK, toSummaryDTO(*summary))
}

// RecordUsage records TOIL consumption against the user's balance.
func (h *Handler) RecordUsage(w http.ResponseWriter, r *http.Request) {
	userID := engine.UserID(chi.URLParam(r, "id"))

	var req UsageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
		return
	}
	if req.Hours <= 0 {
		writeError(w, http.StatusBadRequest, "Usage hours must be positive", nil)
		return
	}

	usage := engine.UsageRecord{
		UserID:    userID,
		Date:      date,
		Hours:     engine.Hours{Value: decimal.NewFromFloat(req.Hours)},
		MonthYear: engine.MonthYearOf(date),
		EntryID:   req.EntryID,
	}

	summary, err := h.Engine.RecordUsage(r.Context(), usage)
	if err != nil {
		writeDomainError(w, "Failed to record usage", err)
		return
	}

	writeJSON(w, http.StatusCreated, toSummaryDTO(*summary))
}

// AssignSchedule replaces the user's work schedule and invalidates any
// summaries derived from the old one.
func (h *Handler) AssignSchedule(w http.ResponseWriter, r *http.Request) {
	userID := engine.UserID(chi.URLParam(r, "id"))

	var req ScheduleDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	ws, err := req.ToDomain()
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid schedule", err)
		return
	}

	h.Schedules.Assign(userID, ws)
	h.Engine.NotifyScheduleChanged(r.Context(), userID)

	writeJSON(w, http.StatusOK, map[string]string{"status": "assigned"})
}

// AddEntries registers time entries as calculation input.
func (h *Handler) AddEntries(w http.ResponseWriter, r *http.Request) {
	userID := engine.UserID(chi.URLParam(r, "id"))

	var req EntriesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	entries := make([]engine.TimeEntry, 0, len(req.Entries))
	for _, dto := range req.Entries {
		entry, err := dto.ToDomain(userID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid entry", err)
			return
		}
		entries = append(entries, entry)
	}

	h.Entries.Add(entries...)
	writeJSON(w, http.StatusCreated, map[string]int{"added": len(entries)})
}

// =============================================================================
// HOLIDAY HANDLERS
// =============================================================================

// ReplaceHolidays swaps in a new holiday calendar.
func (h *Handler) ReplaceHolidays(w http.ResponseWriter, r *http.Request) {
	var req []HolidayDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	holidays := make([]schedule.Holiday, 0, len(req))
	for _, dto := range req {
		holiday, err := dto.ToDomain()
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid holiday", err)
			return
		}
		holidays = append(holidays, holiday)
	}

	h.Holidays.Replace(holidays)
	h.Engine.ClearCache()

	writeJSON(w, http.StatusOK, map[string]int{"count": len(holidays)})
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// Dedup voids duplicate accrual records for every known user.
func (h *Handler) Dedup(w http.ResponseWriter, r *http.Request) {
	users, err := h.Engine.Store().ListUsers(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list users", err)
		return
	}

	total := 0
	for _, userID := range users {
		voided, err := h.Engine.Store().VoidDuplicates(r.Context(), userID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Dedup failed", err)
			return
		}
		total += voided
	}
	h.Engine.ClearCache()

	writeJSON(w, http.StatusOK, map[string]int{"voided": total})
}

// ClearCache drops all cached summaries.
func (h *Handler) ClearCache(w http.ResponseWriter, r *http.Request) {
	h.Engine.ClearCache()
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

// DisableCalculations flips the kill-switch. Every subsequent calculation
// attempt is rejected until ResumeCalculations is called.
func (h *Handler) DisableCalculations(w http.ResponseWriter, r *http.Request) {
	h.Engine.Throttle().DisableAll()
	writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
}

// ResumeCalculations lifts the kill-switch.
func (h *Handler) ResumeCalculations(w http.ResponseWriter, r *http.Request) {
	h.Engine.Throttle().ResumeAll()
	writeJSON(w, http.StatusOK, map[string]string{"status": "resumed"})
}

// Health reports liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

func writeDomainError(w http.ResponseWriter, message string, err error) {
	switch {
	case engine.IsThrottled(err):
		writeError(w, http.StatusTooManyRequests, message, err)
	case errors.Is(err, engine.ErrMissingSchedule):
		writeError(w, http.StatusNotFound, message, err)
	case engine.IsClientError(err):
		writeError(w, http.StatusBadRequest, message, err)
	default:
		writeError(w, http.StatusInternalServerError, message, err)
	}
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
