package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/advisor-reports/internal/fetcher"
	"github.com/sells-group/advisor-reports/internal/model"
	"github.com/sells-group/advisor-reports/internal/report"
)

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) listPeriods(w http.ResponseWriter, r *http.Request) {
	periods, err := s.store.ListPeriods(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if periods == nil {
		periods = []model.PeriodSummary{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"periods": periods})
}

// getPeriod lists a period's records. Advisors only see their own row.
func (s *Server) getPeriod(w http.ResponseWriter, r *http.Request) {
	period := chi.URLParam(r, "period")
	recs, err := s.store.GetByPeriod(r.Context(), period)
	if err != nil {
		writeError(w, r, err)
		return
	}
	caller, _ := CallerFrom(r.Context())
	out := make([]model.PerformanceRecord, 0, len(recs))
	for _, rec := range recs {
		if canRead(caller, rec.AdvisorID) {
			out = append(out, rec)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"period": period, "records": out})
}

func (s *Server) upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	if err := r.ParseMultipartForm(s.maxUpload); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid multipart upload")
		return
	}
	defer r.MultipartForm.RemoveAll() //nolint:errcheck

	period, err := model.ParsePeriod(r.FormValue("period"), r.FormValue("periodStart"), r.FormValue("periodEnd"))
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "periodStart and periodEnd must be YYYY-MM-DD dates")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close() //nolint:errcheck

	format := fetcher.FormatFromName(header.Filename)
	res, err := s.importer.Import(r.Context(), file, format, period)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) deletePeriod(w http.ResponseWriter, r *http.Request) {
	period := chi.URLParam(r, "period")
	n, err := s.store.DeletePeriod(r.Context(), period)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"period": period, "deleted": n})
}

// getReport renders one advisor's report. The format query parameter
// selects pdf, md, or json. Every pdf or md attempt that passes the access
// and format checks is audited; json returns the model and is not.
func (s *Server) getReport(w http.ResponseWriter, r *http.Request) {
	period := chi.URLParam(r, "period")
	advisorID := chi.URLParam(r, "advisorID")

	caller, _ := CallerFrom(r.Context())
	if !canRead(caller, advisorID) {
		writeMessage(w, http.StatusForbidden, "advisors may only read their own report")
		return
	}

	format := r.URL.Query().Get("format")
	if format == "" {
		format = s.defaultFmt
	}
	var renderer report.Renderer
	if format != "json" {
		var err error
		if renderer, err = report.NewRenderer(format); err != nil {
			writeMessage(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	m, err := s.builder.BuildModel(r.Context(), advisorID, period)
	if err != nil {
		if renderer != nil {
			s.recordRender(r, renderer, report.FailedOutcome(advisorID, period, err))
		}
		writeError(w, r, err)
		return
	}
	if renderer == nil {
		writeJSON(w, http.StatusOK, m)
		return
	}

	body, err := renderer.Render(m)
	if err != nil {
		err = eris.Wrapf(err, "api: render %s/%s", advisorID, period)
		s.recordRender(r, renderer, report.FailedOutcome(advisorID, period, err))
		writeError(w, r, err)
		return
	}
	name := report.FileName(advisorID, period, renderer.Ext())
	s.recordRender(r, renderer, report.Outcome{
		AdvisorID: advisorID,
		Period:    period,
		Path:      name,
		Status:    model.AuditSuccess,
	})

	w.Header().Set("Content-Type", contentType(renderer.Ext()))
	w.Header().Set("Content-Disposition", `inline; filename="`+name+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// recordRender audits a final render outcome. It outlives a cancelled request.
func (s *Server) recordRender(r *http.Request, renderer report.Renderer, out report.Outcome) {
	report.Record(context.WithoutCancel(r.Context()), s.audit, s.metrics, renderer.Ext(), out)
}

func contentType(ext string) string {
	switch ext {
	case "pdf":
		return "application/pdf"
	case "md":
		return "text/markdown; charset=utf-8"
	}
	return "application/octet-stream"
}
