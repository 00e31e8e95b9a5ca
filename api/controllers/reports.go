package controllers

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/ppetrack/ppetrack-backend/api/responses"
	"github.com/ppetrack/ppetrack-backend/api/validators"
	"github.com/ppetrack/ppetrack-backend/internal/reports"
	pkgerrors "github.com/ppetrack/ppetrack-backend/pkg/errors"
	"github.com/ppetrack/ppetrack-backend/pkg/logger"
	"github.com/ppetrack/ppetrack-backend/pkg/pagination"
)

func reportQuery(r *http.Request) (reports.Query, error) {
	q := r.URL.Query()
	dimension, err := reports.ParseDimension(q.Get("dimension"))
	if err != nil {
		return reports.Query{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "dimension must be item, employee, machine or supplier")
	}
	id, err := validators.ParseQueryUUID(r, "id")
	if err != nil {
		return reports.Query{}, err
	}
	rng, err := reports.ParseRange(q.Get("from"), q.Get("to"))
	if err != nil {
		return reports.Query{}, err
	}
	limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
	if err != nil {
		return reports.Query{}, err
	}
	return reports.Query{
		Dimension: dimension,
		ID:        id,
		Range:     rng,
		Limit:     limit,
		Cursor:    q.Get("cursor"),
	}, nil
}

// ReportEvents lists the usage or purchase events of one entity.
func ReportEvents(svc reports.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query, err := reportQuery(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		page, err := svc.Events(r.Context(), query)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WritePage(w, page, query.Limit, page.NextCursor)
	}
}

func ReportSummary(svc reports.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query, err := reportQuery(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		summary, err := svc.Summary(r.Context(), query)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, summary)
	}
}

func ReportDashboard(svc reports.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		dashboard, err := svc.Dashboard(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, dashboard)
	}
}

// ReportExport renders the whole filtered event set as CSV. The file is
// buffered so a failure can still be reported as a JSON error.
func ReportExport(svc reports.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query, err := reportQuery(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var buf bytes.Buffer
		if err := svc.Export(r.Context(), query, &buf); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		filename := fmt.Sprintf("%s-%s.csv", query.Dimension, query.ID)
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write(buf.Bytes()); err != nil {
			logg.Warn(logg.WithField(r.Context(), "error", err.Error()), "report export write failed")
		}
	}
}
