package controllers

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ppetrack/ppetrack-backend/api/responses"
	"github.com/ppetrack/ppetrack-backend/api/validators"
	"github.com/ppetrack/ppetrack-backend/internal/ledger"
	"github.com/ppetrack/ppetrack-backend/pkg/logger"
	"github.com/ppetrack/ppetrack-backend/pkg/pagination"
)

type recordUsageRequest struct {
	ItemID     string `json:"itemId" validate:"required,uuid"`
	EmployeeID string `json:"employeeId" validate:"required,uuid"`
	MachineID  string `json:"machineId" validate:"required,uuid"`
	Location   string `json:"location" validate:"required"`
	Quantity   int    `json:"quantity" validate:"gt=0,lte=2147483647"`
	Notes      string `json:"notes" validate:"max=500"`
}

type recordRestockRequest struct {
	ItemID     string           `json:"itemId" validate:"required,uuid"`
	SupplierID string           `json:"supplierId" validate:"required,uuid"`
	Location   string           `json:"location" validate:"required"`
	Quantity   int              `json:"quantity" validate:"gt=0,lte=2147483647"`
	TotalCost  *decimal.Decimal `json:"totalCost" validate:"required"`
}

type editUsageRequest struct {
	EmployeeID string `json:"employeeId" validate:"required,uuid"`
	Location   string `json:"location" validate:"required"`
	Quantity   int    `json:"quantity" validate:"gt=0,lte=2147483647"`
}

// UsageRecord consumes stock from one location.
func UsageRecord(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFrom(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body recordUsageRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		event, err := svc.RecordUsage(r.Context(), actor, ledger.RecordUsageInput{
			ItemID:     uuid.MustParse(body.ItemID),
			EmployeeID: uuid.MustParse(body.EmployeeID),
			MachineID:  uuid.MustParse(body.MachineID),
			Location:   body.Location,
			Quantity:   body.Quantity,
			Notes:      body.Notes,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, event)
	}
}

// RestockRecord adds stock to one location and logs the purchase.
func RestockRecord(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFrom(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body recordRestockRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		event, err := svc.RecordRestock(r.Context(), actor, ledger.RecordRestockInput{
			ItemID:     uuid.MustParse(body.ItemID),
			SupplierID: uuid.MustParse(body.SupplierID),
			Location:   body.Location,
			Quantity:   body.Quantity,
			TotalCost:  *body.TotalCost,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, event)
	}
}

func UsageList(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params, err := pageParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		filter, err := logFilter(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		page, err := svc.ListUsage(r.Context(), params, filter)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WritePage(w, page.Items, pagination.NormalizeLimit(params.Limit), page.NextCursor)
	}
}

func PurchasesList(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params, err := pageParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		filter, err := logFilter(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		page, err := svc.ListPurchases(r.Context(), params, filter)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WritePage(w, page.Items, pagination.NormalizeLimit(params.Limit), page.NextCursor)
	}
}

func UsageEdit(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFrom(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		id, err := validators.ParseUUIDParam(r, "eventId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body editUsageRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		event, err := svc.EditUsageEvent(r.Context(), actor, id, ledger.EditUsageInput{
			EmployeeID: uuid.MustParse(body.EmployeeID),
			Location:   body.Location,
			Quantity:   body.Quantity,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, event)
	}
}

// UsageDelete removes a log entry. Stock is left as is.
func UsageDelete(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFrom(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		id, err := validators.ParseUUIDParam(r, "eventId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.DeleteUsageEvent(r.Context(), actor, id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// logFilter reads the same field, value, from and to parameters as a live
// subscription.
func logFilter(r *http.Request) (ledger.LogFilter, error) {
	f, err := liveFilter(r)
	if err != nil {
		return ledger.LogFilter{}, err
	}
	return ledger.LogFilter(f), nil
}

func pageParams(r *http.Request) (pagination.Params, error) {
	limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
	if err != nil {
		return pagination.Params{}, err
	}
	return pagination.Params{Limit: limit, Cursor: r.URL.Query().Get("cursor")}, nil
}
