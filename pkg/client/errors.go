package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/papercomputeco/ggchat/pkg/chat"
	"github.com/papercomputeco/ggchat/pkg/session"
)

var (
	// ErrUnauthorized is matched by every StatusError carrying a 401 or 403.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrNoCredential is returned before any request is made when the
	// session holds no token.
	ErrNoCredential = session.ErrNoCredential
)

// maxErrorBody bounds how much of an error response is read.
const maxErrorBody = 64 << 10

// StatusError is returned for any non-2xx response.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

func (e *StatusError) Unwrap() error {
	if isAuthStatus(e.StatusCode) {
		return ErrUnauthorized
	}
	return nil
}

func isAuthStatus(code int) bool {
	return code == http.StatusUnauthorized || code == http.StatusForbidden
}

// newStatusError reads resp's body to build the message: the JSON detail
// when present, else the raw text, else the status line.
func newStatusError(resp *http.Response) *StatusError {
	serr := &StatusError{StatusCode: resp.StatusCode}

	var raw []byte
	if resp.Body != nil {
		raw, _ = io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	}

	var body chat.ErrorResponse
	if err := json.Unmarshal(raw, &body); err == nil && strings.TrimSpace(body.Detail) != "" {
		serr.Message = body.Detail
		return serr
	}

	if text := strings.TrimSpace(string(raw)); text != "" {
		serr.Message = text
		return serr
	}

	serr.Message = http.StatusText(resp.StatusCode)
	if serr.Message == "" {
		serr.Message = resp.Status
	}
	return serr
}
