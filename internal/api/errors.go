package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Messages shown for failures that carry no server text.
const (
	MsgBadCredentials = "Credenciales incorrectas"
	MsgUnreachable    = "No se pudo conectar con el servidor. Verifique su conexión a internet."
	MsgInvalidLogin   = "Respuesta de login inválida: no se recibieron los tokens"
)

// APIError is a non-2xx response.  Message is the server's human-readable
// text (error, detail or message field, in that order) and Code its
// machine-readable code when present.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api: %d %s", e.Status, e.Message)
	}
	return fmt.Sprintf("api: %d %s", e.Status, http.StatusText(e.Status))
}

// NetworkError wraps a transport failure (no response at all).
type NetworkError struct{ Err error }

func (e *NetworkError) Error() string { return "api: network: " + e.Err.Error() }
func (e *NetworkError) Unwrap() error { return e.Err }

// IsNetwork reports whether err is a transport failure.
func IsNetwork(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}

// AsAPIError returns the APIError inside err, if any.
func AsAPIError(err error) (*APIError, bool) {
	var ae *APIError
	ok := errors.As(err, &ae)
	return ae, ok
}

// errorBody covers the error shapes the backend produces.
type errorBody struct {
	Error   json.RawMessage `json:"error"`
	Detail  json.RawMessage `json:"detail"`
	Message json.RawMessage `json:"message"`
	Code    string          `json:"code"`
}

func newAPIError(status int, body []byte) *APIError {
	e := &APIError{Status: status}
	var eb errorBody
	if json.Unmarshal(body, &eb) != nil {
		return e
	}
	e.Code = eb.Code
	for _, raw := range []json.RawMessage{eb.Error, eb.Detail, eb.Message} {
		if s := text(raw); s != "" {
			e.Message = s
			break
		}
	}
	return e
}

// text accepts a JSON string or a list of strings (field validation errors).
func text(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	var list []string
	if json.Unmarshal(raw, &list) == nil && len(list) > 0 {
		return list[0]
	}
	return ""
}
