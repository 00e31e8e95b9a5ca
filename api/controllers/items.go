package controllers

import (
	"net/http"

	"github.com/ppetrack/ppetrack-backend/api/responses"
	"github.com/ppetrack/ppetrack-backend/api/validators"
	"github.com/ppetrack/ppetrack-backend/internal/inventory"
	"github.com/ppetrack/ppetrack-backend/pkg/logger"
)

type createItemRequest struct {
	Name              string `json:"name" validate:"required,max=120"`
	Category          string `json:"category" validate:"required"`
	Location1Qty      int    `json:"location1Qty" validate:"gte=0,lte=2147483647"`
	Location2Qty      int    `json:"location2Qty" validate:"gte=0,lte=2147483647"`
	LowStockThreshold int    `json:"lowStockThreshold" validate:"gte=0,lte=2147483647"`
}

// updateItemRequest has no quantity fields; strict decoding rejects them.
type updateItemRequest struct {
	Name              *string `json:"name" validate:"omitempty,max=120"`
	Category          *string `json:"category"`
	LowStockThreshold *int    `json:"lowStockThreshold" validate:"omitempty,gte=0,lte=2147483647"`
}

func ItemsList(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		items, err := svc.ListItems(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, items)
	}
}

func ItemGet(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseUUIDParam(r, "itemId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		item, err := svc.GetItem(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, item)
	}
}

func ItemCreate(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFrom(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body createItemRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		item, err := svc.CreateItem(r.Context(), actor, inventory.CreateItemInput{
			Name:              body.Name,
			Category:          body.Category,
			Location1Qty:      body.Location1Qty,
			Location2Qty:      body.Location2Qty,
			LowStockThreshold: body.LowStockThreshold,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, item)
	}
}

func ItemUpdate(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFrom(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		id, err := validators.ParseUUIDParam(r, "itemId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body updateItemRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		item, err := svc.UpdateItem(r.Context(), actor, id, inventory.UpdateItemInput{
			Name:              body.Name,
			Category:          body.Category,
			LowStockThreshold: body.LowStockThreshold,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, item)
	}
}

func ItemDelete(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFrom(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		id, err := validators.ParseUUIDParam(r, "itemId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.DeleteItem(r.Context(), actor, id); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"id": id, "deleted": true})
	}
}
