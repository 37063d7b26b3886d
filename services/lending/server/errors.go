package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	nativecommon "lendcore/native/common"
	"lendcore/native/lending"
)

// errorBody is the JSON envelope of every failed request.
type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
	Code  string `json:"code,omitempty"`
}

var kindNames = map[error]string{
	lending.ErrParameterOutOfRange:               "parameter_out_of_range",
	lending.ErrReserveStateInvalid:               "reserve_state_invalid",
	lending.ErrInsufficientCollateral:            "insufficient_collateral",
	lending.ErrHealthFactorTooLow:                "health_factor_too_low",
	lending.ErrHealthFactorAboveLiquidationBound: "health_factor_above_liquidation_bound",
	lending.ErrAssetNotEligible:                  "asset_not_eligible",
	lending.ErrCapExceeded:                       "cap_exceeded",
	lending.ErrAmountInvalid:                     "amount_invalid",
	lending.ErrMathOverflow:                      "math_overflow",
	lending.ErrUnauthorized:                      "unauthorized",
	lending.ErrInternal:                          "internal",
}

// kindName returns the stable label of the engine error kind of err, or
// "internal" for errors the engine did not classify.
func kindName(err error) string {
	if err == nil {
		return ""
	}
	if name, ok := kindNames[lending.KindOf(err)]; ok {
		return name
	}
	return "internal"
}

// toStatus maps engine failures onto HTTP status codes.
func toStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, lending.ErrModulePaused), errors.Is(err, nativecommon.ErrModulePaused):
		return http.StatusServiceUnavailable
	case errors.Is(err, lending.ErrReserveNotListed):
		return http.StatusNotFound
	case errors.Is(err, lending.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, lending.ErrAmountInvalid), errors.Is(err, lending.ErrParameterOutOfRange):
		return http.StatusBadRequest
	case errors.Is(err, lending.ErrReserveStateInvalid),
		errors.Is(err, lending.ErrAssetNotEligible),
		errors.Is(err, lending.ErrHealthFactorAboveLiquidationBound):
		return http.StatusConflict
	case errors.Is(err, lending.ErrInsufficientCollateral),
		errors.Is(err, lending.ErrHealthFactorTooLow),
		errors.Is(err, lending.ErrCapExceeded),
		errors.Is(err, lending.ErrMathOverflow):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func writeJSONError(w http.ResponseWriter, status int, err error) {
	message := ""
	if err != nil {
		message = strings.TrimSpace(err.Error())
	}
	if message == "" {
		message = http.StatusText(status)
	}
	writeJSON(w, status, errorBody{Error: message})
}

// writeEngineError writes an engine failure with its kind and code. Internal
// failures are not echoed to the client.
func writeEngineError(w http.ResponseWriter, err error) {
	status := toStatus(err)
	body := errorBody{Error: http.StatusText(status), Kind: kindName(err)}
	var typed *lending.Error
	if errors.As(err, &typed) {
		if typed.Code != nil {
			body.Code = typed.Code.Error()
		}
		if status != http.StatusInternalServerError {
			body.Error = typed.Error()
		}
	}
	writeJSON(w, status, body)
}
