package httputil

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"

	"github.com/voceacampusului/vocea/pkg/apperrors"
)

const CodeInvalidJSON = "INVALID_JSON"

// DecodeAndValidate decodes the JSON body into dest and runs struct
// validation. Failures are validation errors carrying the offending
// fields.
func DecodeAndValidate(r *http.Request, validate *validator.Validate, dest interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dest); err != nil {
		return apperrors.Wrap(apperrors.KindValidation, CodeInvalidJSON, "request body is not valid JSON", err)
	}
	if validate == nil {
		return nil
	}
	if err := validate.Struct(dest); err != nil {
		appErr := apperrors.Wrap(apperrors.KindValidation, apperrors.CodeInvalidInput, "request failed validation", err)
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				appErr = appErr.WithField(strings.ToLower(fe.Field()), fe.Tag())
			}
		}
		return appErr
	}
	return nil
}

// PathString extracts a required path parameter.
func PathString(r *http.Request, key string) (string, error) {
	val := mux.Vars(r)[key]
	if val == "" {
		return "", apperrors.Validation(apperrors.CodeInvalidInput, fmt.Sprintf("missing path parameter: %s", key))
	}
	return val, nil
}

// ParseQueryInt extracts and parses an integer query parameter
func ParseQueryInt(r *http.Request, key string, defaultVal int) (int, error) {
	str := r.URL.Query().Get(key)
	if str == "" {
		return defaultVal, nil
	}
	val, err := strconv.Atoi(str)
	if err != nil {
		return 0, apperrors.Validation(apperrors.CodeInvalidInput, fmt.Sprintf("invalid integer for query param %s", key)).
			WithField(key, str)
	}
	return val, nil
}

// ParseQueryBool extracts and parses a boolean query parameter
func ParseQueryBool(r *http.Request, key string, defaultVal bool) (bool, error) {
	str := r.URL.Query().Get(key)
	if str == "" {
		return defaultVal, nil
	}
	val, err := strconv.ParseBool(str)
	if err != nil {
		return false, apperrors.Validation(apperrors.CodeInvalidInput, fmt.Sprintf("invalid boolean for query param %s", key)).
			WithField(key, str)
	}
	return val, nil
}
