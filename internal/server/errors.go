package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/temirov/clawaudit/internal/attestation"
	"github.com/temirov/clawaudit/internal/notify"
	"github.com/temirov/clawaudit/internal/remediation"
	"github.com/temirov/clawaudit/internal/scan"
	"github.com/temirov/clawaudit/internal/webhook"
)

// Error codes returned in ErrorResponse.Code.
const (
	CodeInvalidArgument      = "INVALID_ARGUMENT"
	CodeNotFound             = "NOT_FOUND"
	CodeConfigurationMissing = "CONFIGURATION_MISSING"
	CodeUnauthorized         = "UNAUTHORIZED"
	CodeRemoteFailure        = "REMOTE_FAILURE"
	CodeInternal             = "INTERNAL"

	notFoundMessageConstant = "no proof recorded for the given selector"
	internalMessageConstant = "internal error"
)

// ErrorResponse is the body of every non-2xx answer.
type ErrorResponse struct {
	Code    string   `json:"code"`
	Message string   `json:"message"`
	Field   string   `json:"field,omitempty"`
	Missing []string `json:"missing,omitempty"`
	Step    string   `json:"step,omitempty"`
}

// invalidBodyError reports a request body that could not be decoded.
type invalidBodyError struct {
	cause error
}

func (bodyError invalidBodyError) Error() string {
	return bodyError.cause.Error()
}

func (bodyError invalidBodyError) Unwrap() error {
	return bodyError.cause
}

// writeError maps domain errors to status codes.
func (server *Server) writeError(ginContext *gin.Context, failure error) {
	var (
		validationError    scan.ValidationError
		configurationError scan.ConfigurationError
		trailLimitError    attestation.TrailLimitError
		stepError          remediation.StepError
		deliveryError      notify.DeliveryError
		payloadError       webhook.PayloadError
		bodyError          invalidBodyError
	)

	switch {
	case errors.As(failure, &bodyError):
		writeErrorResponse(ginContext, http.StatusBadRequest, ErrorResponse{Code: CodeInvalidArgument, Message: bodyError.Error()})
	case errors.As(failure, &validationError):
		writeErrorResponse(ginContext, http.StatusBadRequest, ErrorResponse{Code: CodeInvalidArgument, Message: validationError.Error(), Field: validationError.Field})
	case errors.As(failure, &configurationError):
		writeErrorResponse(ginContext, http.StatusInternalServerError, ErrorResponse{Code: CodeConfigurationMissing, Message: configurationError.Error(), Missing: configurationError.Missing})
	case errors.As(failure, &trailLimitError), errors.Is(failure, attestation.ErrSelectorRequired), errors.Is(failure, notify.ErrContentRequired):
		writeErrorResponse(ginContext, http.StatusBadRequest, ErrorResponse{Code: CodeInvalidArgument, Message: failure.Error()})
	case errors.As(failure, &stepError):
		// Every remediation failure is a 400; the code and step tell validation from GitHub failures.
		stepCode := CodeRemoteFailure
		if stepError.Step == remediation.StepValidate {
			stepCode = CodeInvalidArgument
		}
		writeErrorResponse(ginContext, http.StatusBadRequest, ErrorResponse{Code: stepCode, Message: stepError.Error(), Step: string(stepError.Step)})
	case errors.As(failure, &deliveryError):
		writeErrorResponse(ginContext, http.StatusBadGateway, ErrorResponse{Code: CodeRemoteFailure, Message: deliveryError.Error()})
	case errors.As(failure, &payloadError):
		writeErrorResponse(ginContext, http.StatusBadRequest, ErrorResponse{Code: CodeInvalidArgument, Message: payloadError.Error()})
	case errors.Is(failure, webhook.ErrSignatureMissing), errors.Is(failure, webhook.ErrSignatureInvalid):
		writeErrorResponse(ginContext, http.StatusUnauthorized, ErrorResponse{Code: CodeUnauthorized, Message: failure.Error()})
	default:
		server.logger.Error(internalMessageConstant, zap.String(logFieldPathConstant, ginContext.Request.URL.Path), zap.Error(failure))
		writeErrorResponse(ginContext, http.StatusInternalServerError, ErrorResponse{Code: CodeInternal, Message: internalMessageConstant})
	}
}

func writeErrorResponse(ginContext *gin.Context, status int, response ErrorResponse) {
	ginContext.AbortWithStatusJSON(status, response)
}
