package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/yuqie6/cyclecal/internal/bootstrap"
	"github.com/yuqie6/cyclecal/internal/engine"
	"github.com/yuqie6/cyclecal/internal/eventbus"
	"github.com/yuqie6/cyclecal/internal/pkg/buildinfo"
	"github.com/yuqie6/cyclecal/internal/schema"
	"github.com/yuqie6/cyclecal/internal/service"
)

const timeLayout = "2006-01-02T15:04:05"

// ========== DTOs（与前端契约保持稳定） ==========

type CycleDTO struct {
	ID              int64   `json:"id"`
	CycleNumber     int     `json:"cycle_number"`
	StartAt         string  `json:"start_at"`
	EndAt           string  `json:"end_at,omitempty"`
	ValidDaysCount  int     `json:"valid_days_count"`
	ValidHoursCount float64 `json:"valid_hours_count"`
	IsCompleted     bool    `json:"is_completed"`
	Remark          string  `json:"remark"`
}

type SkipPeriodDTO struct {
	ID        int64  `json:"id"`
	CycleID   int64  `json:"cycle_id"`
	Date      string `json:"date"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

type SettingsDTO struct {
	StartHour        int    `json:"start_hour"`
	StartMinute      int    `json:"start_minute"`
	SkipHours        int    `json:"skip_hours"`
	DefaultSkipStart string `json:"default_skip_start"`
	DefaultSkipEnd   string `json:"default_skip_end"`
}

func toSettingsDTO(s *schema.CalendarSettings) SettingsDTO {
	start, end := engine.DefaultSkipWindow(s)
	return SettingsDTO{
		StartHour:        s.StartHour,
		StartMinute:      s.StartMinute,
		SkipHours:        s.SkipHours,
		DefaultSkipStart: start,
		DefaultSkipEnd:   end,
	}
}

type SaveSettingsRequestDTO struct {
	StartDate string `json:"start_date"`
	SkipHours int    `json:"skip_hours"`
}

type SetSkipPeriodRequestDTO struct {
	CycleID   int64  `json:"cycle_id"`
	Date      string `json:"date"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

type CreateCycleRequestDTO struct {
	StartDate string `json:"start_date"`
	Remark    string `json:"remark"`
}

type UpdateCycleRequestDTO struct {
	ID          int64   `json:"id"`
	StartDate   *string `json:"start_date"`
	EndDate     *string `json:"end_date"`
	CycleNumber *int    `json:"cycle_number"`
	IsCompleted *bool   `json:"is_completed"`
	Remark      *string `json:"remark"`
}

type CompleteCycleRequestDTO struct {
	ID      int64   `json:"id"`
	Remark  string  `json:"remark"`
	EndDate *string `json:"end_date"`
}

type CompleteCycleResponseDTO struct {
	Closed    CycleDTO `json:"closed"`
	Successor CycleDTO `json:"successor"`
}

type DeleteCycleRequestDTO struct {
	ID int64 `json:"id"`
}

func toCycleDTO(c *schema.Cycle) CycleDTO {
	dto := CycleDTO{
		ID:              c.ID,
		CycleNumber:     c.CycleNumber,
		StartAt:         c.StartAt.Format(timeLayout),
		ValidDaysCount:  c.ValidDaysCount,
		ValidHoursCount: c.ValidHoursCount,
		IsCompleted:     c.IsCompleted,
		Remark:          c.Remark,
	}
	if c.EndAt != nil {
		dto.EndAt = c.EndAt.Format(timeLayout)
	}
	return dto
}

func toSkipPeriodDTO(p *schema.SkipPeriod) SkipPeriodDTO {
	return SkipPeriodDTO{
		ID:        p.ID,
		CycleID:   p.CycleID,
		Date:      p.Date.Format("2006-01-02"),
		StartTime: p.StartTime,
		EndTime:   p.EndTime,
	}
}

// ========== routes ==========

type apiServer struct {
	core      *bootstrap.Core
	hub       *eventbus.Hub
	startTime time.Time
}

func newAPI(core *bootstrap.Core, hub *eventbus.Hub) *apiServer {
	return &apiServer{
		core:      core,
		hub:       hub,
		startTime: time.Now(),
	}
}

func (a *apiServer) registerJSONRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/calendar/settings", a.settings)
	mux.HandleFunc("/api/calendar/data", a.wrapGET(a.getCalendarData))
	mux.HandleFunc("/api/calendar/skip-periods", a.skipPeriods)
	mux.HandleFunc("/api/calendar/reset", a.wrapPOST(a.resetCalendar))

	mux.HandleFunc("/api/cycles", a.cycles)
	mux.HandleFunc("/api/cycles/current", a.wrapGET(a.getCurrentCycle))
	mux.HandleFunc("/api/cycles/detail", a.wrapGET(a.getCycleDetail))
	mux.HandleFunc("/api/cycles/update", a.wrapPOST(a.updateCycle))
	mux.HandleFunc("/api/cycles/complete", a.wrapPOST(a.completeCycle))
	mux.HandleFunc("/api/cycles/delete", a.wrapPOST(a.deleteCycle))
}

func (a *apiServer) wrapGET(fn func(http.ResponseWriter, *http.Request)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		fn(w, r)
	}
}

func (a *apiServer) wrapPOST(fn func(http.ResponseWriter, *http.Request)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		fn(w, r)
	}
}

// writeServiceError 把服务层错误映射到 HTTP 状态码
func writeServiceError(w http.ResponseWriter, err error) {
	var rangeErr *engine.RangeViolationError
	var windowErr *engine.MalformedSkipWindowError
	switch {
	case errors.Is(err, service.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, engine.ErrCycleAlreadyOpen),
		errors.Is(err, service.ErrCycleCompleted):
		writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &rangeErr),
		errors.As(err, &windowErr),
		errors.Is(err, service.ErrInvalidInput),
		errors.Is(err, service.ErrRemarkRequired):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// ========== handlers ==========

func (a *apiServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":         true,
		"name":       a.core.Cfg.App.Name,
		"version":    buildinfo.Version,
		"started_at": a.startTime.Format(time.RFC3339),
	})
}

func (a *apiServer) settings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.getSettings(w, r)
	case http.MethodPost:
		a.saveSettings(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (a *apiServer) getSettings(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	settings, err := a.core.Services.Calendar.GetSettings(ctx)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSettingsDTO(settings))
}

func (a *apiServer) saveSettings(w http.ResponseWriter, r *http.Request) {
	var req SaveSettingsRequestDTO
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "请求体无效: "+err.Error())
		return
	}
	startAt, err := service.ParseExternalDate(req.StartDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	settings, err := a.core.Services.Calendar.UpdateSettings(ctx, startAt, req.SkipHours)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSettingsDTO(settings))
}

func (a *apiServer) getCalendarData(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	from := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.Local)
	to := from.AddDate(0, 1, -1)

	if s := strings.TrimSpace(r.URL.Query().Get("start_date")); s != "" {
		t, err := service.ParseExternalDate(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		from = t
	}
	if s := strings.TrimSpace(r.URL.Query().Get("end_date")); s != "" {
		t, err := service.ParseExternalDate(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		to = t
	}
	if to.Before(from) {
		writeError(w, http.StatusBadRequest, "end_date 不能早于 start_date")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	resp, err := a.core.Services.Calendar.CalendarRange(ctx, from, to)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *apiServer) skipPeriods(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.listSkipPeriods(w, r)
	case http.MethodPost:
		a.setSkipPeriod(w, r)
	case http.MethodDelete:
		a.deleteSkipPeriod(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (a *apiServer) listSkipPeriods(w http.ResponseWriter, r *http.Request) {
	cycleID, err := parseInt64Param(r.URL.Query().Get("cycle_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "cycle_id 无效")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	periods, err := a.core.Services.Calendar.ListSkipPeriods(ctx, cycleID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	result := make([]SkipPeriodDTO, 0, len(periods))
	for i := range periods {
		result = append(result, toSkipPeriodDTO(&periods[i]))
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *apiServer) setSkipPeriod(w http.ResponseWriter, r *http.Request) {
	var req SetSkipPeriodRequestDTO
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "请求体无效: "+err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	period, err := a.core.Services.Calendar.SetSkipPeriod(ctx, req.CycleID, req.Date, req.StartTime, req.EndTime)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSkipPeriodDTO(period))
}

func (a *apiServer) deleteSkipPeriod(w http.ResponseWriter, r *http.Request) {
	id, err := parseInt64Param(r.URL.Query().Get("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "id 无效")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	if err := a.core.Services.Calendar.DeleteSkipPeriod(ctx, id); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (a *apiServer) resetCalendar(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	if err := a.core.Services.Calendar.Reset(ctx); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (a *apiServer) cycles(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.listCycles(w, r)
	case http.MethodPost:
		a.createCycle(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (a *apiServer) listCycles(w http.ResponseWriter, r *http.Request) {
	offset := 0
	limit := 100
	if s := strings.TrimSpace(r.URL.Query().Get("offset")); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n >= 0 {
			offset = n
		}
	}
	if s := strings.TrimSpace(r.URL.Query().Get("limit")); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			limit = n
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	cycles, err := a.core.Services.Cycle.List(ctx, offset, limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	result := make([]CycleDTO, 0, len(cycles))
	for i := range cycles {
		result = append(result, toCycleDTO(&cycles[i]))
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *apiServer) getCurrentCycle(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	cycle, err := a.core.Services.Cycle.Current(ctx)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCycleDTO(cycle))
}

func (a *apiServer) getCycleDetail(w http.ResponseWriter, r *http.Request) {
	id, err := parseInt64Param(r.URL.Query().Get("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "id 无效")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	cycle, err := a.core.Services.Cycle.GetByID(ctx, id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCycleDTO(cycle))
}

func (a *apiServer) createCycle(w http.ResponseWriter, r *http.Request) {
	var req CreateCycleRequestDTO
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "请求体无效: "+err.Error())
		return
	}
	startAt, err := service.ParseExternalDate(req.StartDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	cycle, err := a.core.Services.Cycle.CreateManual(ctx, startAt, req.Remark)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCycleDTO(cycle))
}

func (a *apiServer) updateCycle(w http.ResponseWriter, r *http.Request) {
	var req UpdateCycleRequestDTO
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "请求体无效: "+err.Error())
		return
	}

	upd := service.CycleUpdate{
		CycleNumber: req.CycleNumber,
		IsCompleted: req.IsCompleted,
		Remark:      req.Remark,
	}
	if req.StartDate != nil {
		t, err := service.ParseExternalDate(*req.StartDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		upd.StartAt = &t
	}
	if req.EndDate != nil {
		t, err := service.ParseExternalDate(*req.EndDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		upd.EndAt = &t
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	cycle, err := a.core.Services.Cycle.Update(ctx, req.ID, upd)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCycleDTO(cycle))
}

func (a *apiServer) completeCycle(w http.ResponseWriter, r *http.Request) {
	var req CompleteCycleRequestDTO
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "请求体无效: "+err.Error())
		return
	}

	var endAt *time.Time
	if req.EndDate != nil {
		t, err := service.ParseExternalDate(*req.EndDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		endAt = &t
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	closed, successor, err := a.core.Services.Cycle.Complete(ctx, req.ID, req.Remark, endAt)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, CompleteCycleResponseDTO{
		Closed:    toCycleDTO(closed),
		Successor: toCycleDTO(successor),
	})
}

func (a *apiServer) deleteCycle(w http.ResponseWriter, r *http.Request) {
	var req DeleteCycleRequestDTO
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "请求体无效: "+err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	if err := a.core.Services.Cycle.Delete(ctx, req.ID); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// ========== SSE ==========

func (a *apiServer) handleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "stream not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ctx := r.Context()
	sub := a.hub.Subscribe(ctx, 32)

	// initial event
	_, _ = io.WriteString(w, "event: ready\n")
	_, _ = io.WriteString(w, "data: {}\n\n")
	flusher.Flush()

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = io.WriteString(w, "event: ping\n")
			_, _ = io.WriteString(w, "data: {}\n\n")
			flusher.Flush()
		case evt, ok := <-sub:
			if !ok {
				return
			}
			b, _ := json.Marshal(evt)
			_, _ = io.WriteString(w, "event: "+sanitizeSSEName(evt.Type)+"\n")
			_, _ = io.WriteString(w, "data: ")
			_, _ = w.Write(b)
			_, _ = io.WriteString(w, "\n\n")
			flusher.Flush()
		}
	}
}

func sanitizeSSEName(name string) string {
	n := strings.TrimSpace(name)
	if n == "" {
		return "message"
	}
	n = strings.ReplaceAll(n, "\n", "")
	n = strings.ReplaceAll(n, "\r", "")
	return n
}
