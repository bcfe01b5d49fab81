package proxy

import (
	"encoding/json"
	"net/http"
	"strconv"

	"mercator-hq/luthien/pkg/policy"
	"mercator-hq/luthien/pkg/proxy/types"
)

// WriteJSONResponse writes data as a JSON body with the given status.
func WriteJSONResponse(w http.ResponseWriter, status int, data any) error {
	body, err := json.Marshal(data)
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(status)
	_, err = w.Write(body)
	return err
}

// WriteError writes an error envelope with the given status.
func WriteError(w http.ResponseWriter, status int, resp *types.ErrorResponse) error {
	return WriteJSONResponse(w, status, resp)
}

// PolicyErrorResponse converts a policy error to its status and envelope. The
// underlying cause is never included.
func PolicyErrorResponse(perr *policy.Error) (int, *types.ErrorResponse) {
	status := perr.StatusCode()
	msg := perr.Detail
	if msg == "" {
		msg = http.StatusText(status)
	}
	code := perr.Code
	if code == "" {
		code = types.CodePolicyError
	}
	return status, types.NewErrorResponse(status, msg, code, "")
}

// WritePolicyError answers with the policy's suggested status and detail.
func WritePolicyError(w http.ResponseWriter, perr *policy.Error) error {
	status, resp := PolicyErrorResponse(perr)
	return WriteError(w, status, resp)
}

// WriteInternalError writes the generic 500 response.
func WriteInternalError(w http.ResponseWriter) error {
	return WriteError(w, http.StatusInternalServerError, types.NewServerError())
}
