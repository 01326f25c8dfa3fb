package core

import (
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	GatewayErrorBadInput               = "GATEWAY_BAD_INPUT"
	GatewayErrorProviderNotFound       = "GATEWAY_PROVIDER_NOT_FOUND"
	GatewayErrorProviderExchangeFailed = "GATEWAY_PROVIDER_EXCHANGE_FAILED"
	GatewayErrorIdentityLookupFailed   = "GATEWAY_IDENTITY_LOOKUP_FAILED"
	GatewayErrorTenantNotFound         = "GATEWAY_TENANT_NOT_FOUND"
	GatewayErrorPersistenceFailed      = "GATEWAY_PERSISTENCE_FAILED"
	GatewayErrorMirrorFailed           = "GATEWAY_MIRROR_FAILED"
	GatewayErrorJobNotFound            = "GATEWAY_JOB_NOT_FOUND"
	GatewayErrorRunUpdateFailed        = "GATEWAY_RUN_UPDATE_FAILED"
	GatewayErrorInternal               = "GATEWAY_INTERNAL_ERROR"
)

func gatewayErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureGatewayErrorEnvelope(richErr)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "provider") && strings.Contains(msg, "not registered"):
		return newGatewayError(err.Error(), goerrors.CategoryNotFound, GatewayErrorProviderNotFound)
	case strings.Contains(msg, "tenant not found"):
		return newGatewayError(err.Error(), goerrors.CategoryNotFound, GatewayErrorTenantNotFound)
	case strings.Contains(msg, "token endpoint"), strings.Contains(msg, "token request"):
		return newGatewayError(err.Error(), goerrors.CategoryExternal, GatewayErrorProviderExchangeFailed)
	case strings.Contains(msg, "identity endpoint"), strings.Contains(msg, "identity lookup"):
		return newGatewayError(err.Error(), goerrors.CategoryExternal, GatewayErrorIdentityLookupFailed)
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"), strings.Contains(msg, "mismatch"):
		return newGatewayError(err.Error(), goerrors.CategoryBadInput, GatewayErrorBadInput)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureGatewayErrorEnvelope(mapped)
}

func newGatewayError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureGatewayErrorEnvelope(
		goerrors.New(message, category).
			WithTextCode(textCode),
	)
}

func ensureGatewayErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = gatewayHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultGatewayTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultGatewayTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return GatewayErrorBadInput
	case goerrors.CategoryNotFound:
		return GatewayErrorTenantNotFound
	case goerrors.CategoryExternal:
		return GatewayErrorProviderExchangeFailed
	default:
		return GatewayErrorInternal
	}
}

func gatewayHTTPStatus(category goerrors.Category) int {
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
	default:
		return http.StatusInternalServerError
	}
}

// IsGatewayTextCode reports whether err carries the given gateway text code.
func IsGatewayTextCode(err error, textCode string) bool {
	if err == nil {
		return false
	}
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(richErr.TextCode), strings.TrimSpace(textCode))
}
