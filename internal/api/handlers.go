package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/stinkmap/stinkmap/internal/engine"
	"github.com/stinkmap/stinkmap/internal/gate"
	"github.com/stinkmap/stinkmap/internal/models"
	"github.com/stinkmap/stinkmap/internal/rpc"
	"github.com/stinkmap/stinkmap/internal/services"
	"github.com/stinkmap/stinkmap/internal/store"
	"github.com/stinkmap/stinkmap/internal/table"
	"github.com/stinkmap/stinkmap/internal/utils"
)

type healthResponse struct {
	Status     string     `json:"status"`
	Records    int        `json:"records"`
	Malformed  int        `json:"malformed"`
	UpdatedAt  *time.Time `json:"updatedAt,omitempty"`
	LastError  string     `json:"lastError,omitempty"`
	RefreshP95 string     `json:"refreshP95,omitempty"`
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	st := h.session.Store()
	resp := healthResponse{
		Status:    "SERVING",
		Records:   st.Len(),
		Malformed: st.MalformedCount(),
	}
	if at := st.UpdatedAt(); !at.IsZero() {
		resp.UpdatedAt = &at
	}
	if err := h.session.LastError(); err != nil {
		resp.Status = "DEGRADED"
		resp.LastError = utils.UserMessage(err)
	}
	if p95 := h.session.RefreshLatencyP95(); p95 > 0 {
		resp.RefreshP95 = p95.String()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) refresh(w http.ResponseWriter, r *http.Request) {
	count, err := h.session.Refresh(r.Context())
	if h.onRefresh != nil && !errors.Is(err, services.ErrRefreshInProgress) {
		h.onRefresh(err)
	}
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"count": count})
}

func (h *Handler) listReports(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	window, err := store.ParseTimeWindow(q.Get("window"))
	if err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}
	sort := table.DefaultSort
	if col := q.Get("sort"); col != "" {
		if sort.Column, err = table.ParseColumn(col); err != nil {
			writeMessage(w, http.StatusBadRequest, err.Error())
			return
		}
		if sort.Direction, err = table.ParseDirection(q.Get("dir")); err != nil {
			writeMessage(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	spec := store.FilterSpec{
		Text:     q.Get("q"),
		Category: store.ParseCategoryFilter(q.Get("category")),
		Window:   window,
	}
	rows := h.session.Reports(spec, sort)
	if rows == nil {
		rows = []models.Report{}
	}
	writeJSON(w, http.StatusOK, rows)
}

type submitRequest struct {
	Lat           *float64 `json:"lat"`
	Lng           *float64 `json:"lng"`
	StinkLevel    string   `json:"stinkLevel"`
	StinkDuration string   `json:"stinkDuration"`
	Comment       string   `json:"comment"`
}

func (h *Handler) submitReport(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Lat == nil || req.Lng == nil {
		writeMessage(w, http.StatusBadRequest, "lat and lng are required")
		return
	}
	category := models.ParseCategory(req.StinkLevel)
	duration := models.ParseDuration(req.StinkDuration)
	if !category.Known() || !duration.Known() {
		writeMessage(w, http.StatusBadRequest, "stinkLevel and stinkDuration must be known values")
		return
	}

	report, err := h.session.Submit(r.Context(), models.NewReport(*req.Lat, *req.Lng, category, duration, req.Comment, time.Time{}))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, report)
}

func (h *Handler) pins(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.session.Pins())
}

func (h *Handler) trend(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var spec *engine.RangeSpec
	if value := q.Get("range"); value != "" {
		spec = &engine.RangeSpec{Value: value, Start: q.Get("start"), End: q.Get("end")}
	}
	chart, _, err := h.session.Trend(r.Context(), spec)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, chart)
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.session.Stats())
}

func (h *Handler) exportCSV(w http.ResponseWriter, r *http.Request) {
	category := store.ParseCategoryFilter(r.URL.Query().Get("category"))
	var buf bytes.Buffer
	name, err := h.session.ExportCSV(&buf, category)
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	_, _ = w.Write(buf.Bytes())
}

// writeError maps pipeline errors onto status codes. None of them are fatal;
// the working set is untouched in every case.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var blocked *gate.BlockedError
	var appErr *utils.AppError
	switch {
	case errors.As(err, &blocked):
		secs := int(math.Ceil(blocked.RetryAfter.Seconds()))
		w.Header().Set("Retry-After", strconv.Itoa(secs))
		writeMessage(w, http.StatusTooManyRequests, "Please wait "+strconv.Itoa(secs)+"s before submitting again")
	case errors.Is(err, services.ErrRefreshInProgress):
		writeMessage(w, http.StatusConflict, err.Error())
	case rpc.IsServerError(err):
		h.logger.Warn("endpoint rejected request", slog.Any("error", err))
		writeMessage(w, http.StatusBadGateway, err.Error())
	case rpc.IsTransient(err):
		h.logger.Warn("endpoint unreachable", slog.Any("error", err))
		writeMessage(w, http.StatusBadGateway, "Could not reach the reports endpoint")
	case errors.As(err, &appErr):
		writeMessage(w, http.StatusBadRequest, appErr.Msg)
	default:
		h.logger.Error("request failed", slog.Any("error", err))
		writeMessage(w, http.StatusInternalServerError, "internal error")
	}
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
