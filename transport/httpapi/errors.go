package httpapi

import (
	"encoding/json"
	"net/http"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-tokengate/core"
)

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Message  string `json:"message"`
	TextCode string `json:"text_code"`
	Category string `json:"category,omitempty"`
}

func apiError(message string, category goerrors.Category, textCode string) error {
	return goerrors.New(message, category).
		WithCode(categoryStatus(category)).
		WithTextCode(textCode)
}

// writeError renders any error as the gateway's JSON error envelope. Rich
// errors keep their own status and text code; everything else is an internal
// failure.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	body := errorBody{
		Message:  "An unexpected error occurred",
		TextCode: core.GatewayErrorInternal,
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		if richErr.Code > 0 {
			status = richErr.Code
		} else {
			status = categoryStatus(richErr.Category)
		}
		body.Message = richErr.Message
		body.TextCode = richErr.TextCode
		body.Category = string(richErr.Category)
		if body.TextCode == "" {
			body.TextCode = core.GatewayErrorInternal
		}
	} else if err != nil {
		body.Message = err.Error()
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorEnvelope{Error: body})
}

func categoryStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
