package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/templui/fileshare/internal/apperr"
	"github.com/templui/fileshare/internal/respond"
)

// FilePasswordHeader carries the password of a password-protected file.
const FilePasswordHeader = "X-File-Password"

var errBodyTooLarge = apperr.NewValidation("Request body too large")

// responder renders service errors, with causes only in verbose mode.
type responder struct {
	verbose bool
}

func (rs responder) fail(w http.ResponseWriter, r *http.Request, err error) {
	respond.Error(w, r, err, rs.verbose)
}

// decodeJSON reads the request body into v. An empty body is only
// accepted when optional is set.
func decodeJSON(r *http.Request, v any, optional bool) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) && optional {
		return nil
	}

	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return errBodyTooLarge
	}
	if err != nil {
		return apperr.Wrap(apperr.Validation, "Invalid request body", err)
	}
	return nil
}

// filePassword prefers the header over a password in the body.
func filePassword(r *http.Request, body string) string {
	if p := strings.TrimSpace(r.Header.Get(FilePasswordHeader)); p != "" {
		return p
	}
	return body
}
