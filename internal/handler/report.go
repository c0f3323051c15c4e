package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/pos-backoffice/internal/domain/period"
	"github.com/xenking/pos-backoffice/internal/domain/report"
)

func (h *Handler) reportParams(r *http.Request) (report.Params, error) {
	q := r.URL.Query()

	start, err := h.dateParam(q.Get("startDate"), "startDate", false)
	if err != nil {
		return report.Params{}, err
	}
	end, err := h.dateParam(q.Get("endDate"), "endDate", true)
	if err != nil {
		return report.Params{}, err
	}
	limit, err := intParam(q.Get("limit"), "limit")
	if err != nil {
		return report.Params{}, err
	}
	return report.Params{
		Period:  period.Name(q.Get("period")),
		Start:   start,
		End:     end,
		GroupBy: report.Grouping(q.Get("groupBy")),
		Limit:   limit,
	}, nil
}

// GenerateReport handles GET /api/reports/{kind}.
func (h *Handler) GenerateReport(w http.ResponseWriter, r *http.Request) {
	p, err := h.reportParams(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	res, err := h.reports.Generate(r.Context(), report.Kind(chi.URLParam(r, "kind")), p)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, res, "")
}

// ExportReport handles GET /api/reports/{kind}/export?format=csv|json&gzip=true.
// The report is generated before any byte is written so failures still get
// the error envelope.
func (h *Handler) ExportReport(w http.ResponseWriter, r *http.Request) {
	p, err := h.reportParams(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	q := r.URL.Query()
	format, err := report.ParseFormat(q.Get("format"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	compress, _ := strconv.ParseBool(q.Get("gzip"))

	res, err := h.reports.Generate(r.Context(), report.Kind(chi.URLParam(r, "kind")), p)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if compress {
		w.Header().Set("Content-Type", "application/gzip")
	} else {
		w.Header().Set("Content-Type", format.ContentType())
	}
	w.Header().Set("Content-Disposition", `attachment; filename="`+report.FileName(res, format, compress)+`"`)
	w.WriteHeader(http.StatusOK)

	if err := report.Write(w, res, format, compress); err != nil {
		// Headers are already sent.
		zctx.From(r.Context()).Warn("Export aborted", zap.Error(err), zap.String("report", string(res.Kind)))
	}
}
