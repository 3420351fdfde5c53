package httpapi

import (
	"net/http"

	"github.com/aretw0/arbor/pkg/core"
)

// errorBody is the JSON shape of every failed response.
type errorBody struct {
	Error   string    `json:"error"`
	Kind    core.Kind `json:"kind"`
	ID      string    `json:"id,omitempty"`
	Applied []string  `json:"applied,omitempty"`
	Failed  []string  `json:"failed,omitempty"`
}

// StatusOf maps an error kind to the HTTP status the server answers with.
func StatusOf(kind core.Kind) int {
	switch kind {
	case core.KindUnauthorized:
		return http.StatusUnauthorized
	case core.KindNotFound:
		return http.StatusNotFound
	case core.KindInvalidTransition:
		return http.StatusConflict
	case core.KindPartialCascade:
		return http.StatusMultiStatus
	default:
		return http.StatusServiceUnavailable
	}
}

// KindOf maps a response status back to an error kind. ok is false for
// statuses that are not failures.
func KindOf(status int) (kind core.Kind, ok bool) {
	switch {
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return core.KindUnauthorized, true
	case status == http.StatusNotFound:
		return core.KindNotFound, true
	case status == http.StatusBadRequest, status == http.StatusConflict, status == http.StatusUnprocessableEntity:
		return core.KindInvalidTransition, true
	case status == http.StatusMultiStatus:
		return core.KindPartialCascade, true
	case status >= 400:
		return core.KindTransient, true
	default:
		return "", false
	}
}

func bodyOf(err *core.Error) errorBody {
	msg := err.Msg
	if msg == "" {
		msg = err.Error()
	}
	return errorBody{
		Error:   msg,
		Kind:    err.Kind,
		ID:      err.ID,
		Applied: err.Applied,
		Failed:  err.Failed,
	}
}

func (b errorBody) toError(op string, status int) *core.Error {
	kind, _ := KindOf(status)
	if b.Kind != "" {
		kind = b.Kind
	}
	return &core.Error{
		Kind:    kind,
		Op:      op,
		ID:      b.ID,
		Msg:     b.Error,
		Applied: b.Applied,
		Failed:  b.Failed,
	}
}
