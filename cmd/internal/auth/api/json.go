package authapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"lodge/cmd/internal/auth/session"
)

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error apiError `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorResponse{Error: apiError{Code: code, Message: msg}})
}

// writeSessionError maps session failures to responses. It reports false for
// errors that are not part of the session taxonomy.
func writeSessionError(w http.ResponseWriter, err error) bool {
	switch {
	case errors.Is(err, session.ErrReuseDetected):
		writeError(w, http.StatusUnauthorized, "refresh_reuse_detected", "refresh token reuse detected")
	case errors.Is(err, session.ErrTokenExpired):
		writeError(w, http.StatusUnauthorized, "token_expired", "refresh token expired")
	case errors.Is(err, session.ErrTokenNotFound):
		writeError(w, http.StatusUnauthorized, "token_not_found", "refresh token not recognized")
	case errors.Is(err, session.ErrInvalidToken):
		writeError(w, http.StatusUnauthorized, "invalid_token", "invalid refresh token")
	case errors.Is(err, session.ErrDeviceKeyUnavailable):
		writeError(w, http.StatusBadRequest, "device_key_required", "a valid device identifier is required")
	case errors.Is(err, session.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request")
	default:
		return false
	}
	return true
}

// decodeJSON decodes exactly one JSON object. An empty body decodes to the
// zero value when optional is set.
func decodeJSON(w http.ResponseWriter, r *http.Request, maxBytes int64, dst any, optional bool) error {
	if r.Body == nil || r.Body == http.NoBody {
		if optional {
			return nil
		}
		return errors.New("empty body")
	}
	defer func() { _ = r.Body.Close() }()

	body := http.MaxBytesReader(w, r.Body, maxBytes)
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
	// Ensure there is no extra data after the first JSON value.
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return errors.New("extra data after JSON object")
	}
	return nil
}
