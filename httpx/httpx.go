// Package httpx holds the JSON request/response helpers shared by the HTTP
// handlers and middleware.
package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/sridharsr7/personal-task-manager/api"
	"github.com/sridharsr7/personal-task-manager/apperr"
)

// MaxBodyBytes caps request bodies.
const MaxBodyBytes = 1 << 20

var errInvalidPayload = apperr.Validation("Invalid request payload")

// WriteJSON is a helper function to format and send JSON responses.
func WriteJSON(w http.ResponseWriter, code int, payload any) {
	response, err := json.Marshal(payload)
	if err != nil {
		log.Printf("ERROR: encode response: %v", err)
		http.Error(w, `{"message":"Server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

// WriteError converts err into a {"message": ...} body with the status its
// code maps to. Unclassified errors are logged and reported as server errors.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, context.DeadlineExceeded) {
		log.Printf("WARN: %s %s timed out: %v", r.Method, r.URL.Path, err)
		WriteJSON(w, http.StatusGatewayTimeout, api.ErrorResponse{Message: "Request timed out"})
		return
	}
	appErr := apperr.As(err)
	if appErr.Code == apperr.CodeInternal {
		log.Printf("ERROR: %s %s: %v", r.Method, r.URL.Path, err)
	}
	WriteJSON(w, appErr.Code.HTTPStatus(), api.ErrorResponse{Message: appErr.Message})
}

// DecodeJSON reads the request body into dst. An empty body leaves dst at
// its zero value so that field checks report what is missing.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	err := dec.Decode(dst)
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err != nil {
		return apperr.Wrap(errInvalidPayload.Code, errInvalidPayload.Message, err)
	}
	// The body must hold exactly one JSON value.
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			err = errors.New("unexpected data after JSON value")
		}
		return apperr.Wrap(errInvalidPayload.Code, errInvalidPayload.Message, err)
	}
	return nil
}
