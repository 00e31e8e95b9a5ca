package responses

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	pkgerrors "github.com/ppetrack/ppetrack-backend/pkg/errors"
	"github.com/ppetrack/ppetrack-backend/pkg/logger"
	"github.com/ppetrack/ppetrack-backend/pkg/types"
)

// fallbackBody is sent when a payload cannot be encoded.
const fallbackBody = `{"error":{"code":"INTERNAL_ERROR","message":"internal server error"}}`

func WriteSuccess(w http.ResponseWriter, data any) {
	WriteSuccessStatus(w, http.StatusOK, data)
}

func WriteSuccessStatus(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, types.SuccessEnvelope{Data: data})
}

// WritePage renders a cursor page with its continuation in meta.
func WritePage(w http.ResponseWriter, data any, limit int, nextCursor string) {
	writeJSON(w, http.StatusOK, types.SuccessEnvelope{
		Data: data,
		Meta: &types.PageMeta{NextCursor: nextCursor, Limit: limit},
	})
}

// WriteError renders err as the error envelope. Untyped errors become
// INTERNAL_ERROR; only codes flagged ClientMessage expose their own message.
// Server-side failures log at error, client rejections at warn.
func WriteError(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, err error) {
	if err == nil {
		err = errors.New("unknown error")
	}
	status, envelope := errorEnvelope(err)

	if logg != nil {
		ctx = logg.WithFields(ctx, pkgerrors.LogFields(err))
		if status >= http.StatusInternalServerError {
			logg.Error(ctx, "request.error", err)
		} else {
			logg.Warn(ctx, "request.rejected")
		}
	}
	writeJSON(w, status, envelope)
}

func errorEnvelope(err error) (int, types.ErrorEnvelope) {
	typed := pkgerrors.As(err)
	if typed == nil {
		typed = pkgerrors.Wrap(pkgerrors.CodeInternal, err, "unexpected error")
	}
	meta := pkgerrors.MetadataFor(typed.Code())

	apiErr := types.APIError{Code: string(typed.Code()), Message: meta.PublicMessage}
	if meta.ClientMessage && typed.Message() != "" {
		apiErr.Message = typed.Message()
	}
	if meta.DetailsAllowed {
		apiErr.Details = typed.Details()
	}
	return meta.HTTPStatus, types.ErrorEnvelope{Error: apiErr}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		status, body = http.StatusInternalServerError, []byte(fallbackBody)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(append(body, '\n'))
}
