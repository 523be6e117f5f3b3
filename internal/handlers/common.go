package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"reflect"
	"strings"

	"devlink-backend/internal/apperr"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
)

const maxBodyBytes = 1 << 20

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ErrorBody is the error part of an error response
type ErrorBody struct {
	Kind    apperr.Kind `json:"kind"`
	Code    apperr.Code `json:"code"`
	Message string      `json:"message"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// statusFor maps an error kind to an HTTP status code
func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation, apperr.KindIntegrity:
		return http.StatusBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindAuthorization:
		return http.StatusForbidden
	case apperr.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

// respondError sends the error response for err
func respondError(w http.ResponseWriter, err error) {
	kind := apperr.KindOf(err)
	if kind == apperr.KindDependency {
		log.Error().Err(err).Msg("Request failed")
	}
	respondJSON(w, statusFor(kind), errorResponse(err))
}

func errorResponse(err error) ErrorResponse {
	return ErrorResponse{Error: ErrorBody{
		Kind:    apperr.KindOf(err),
		Code:    apperr.CodeOf(err),
		Message: apperr.PublicMessage(err),
	}}
}

// decodeBody decodes a JSON request body into dst and validates it
func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return apperr.Validation(apperr.CodeInvalidInput, "request body is required")
		}
		return apperr.Validation(apperr.CodeInvalidInput, "invalid request body")
	}
	if err := validate.Struct(dst); err != nil {
		return validationError(err)
	}
	return nil
}

// validateParam validates a single path parameter
func validateParam(name, value string) error {
	if err := validate.Var(value, "required,max=128,printascii"); err != nil {
		return apperr.Validation(apperr.CodeInvalidInput, "invalid "+name)
	}
	return nil
}

func validationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return apperr.Validation(apperr.CodeInvalidInput, fe.Field()+" failed "+fe.Tag()+" validation")
	}
	return apperr.Validation(apperr.CodeInvalidInput, "invalid request")
}
