package ensembl

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// errorEnvelope is the body Ensembl REST returns with non-2xx responses.
type errorEnvelope struct {
	Error string `json:"error"`
}

// HTTPError is a summary of a non-2xx Ensembl response.
type HTTPError struct {
	Op         string
	StatusCode int
	Status     string
	// Message is the service's own error text when the body carried one.
	Message string
	// Snippet is a truncated, single-line hint of any other body.
	Snippet string
}

func (e *HTTPError) Error() string {
	if e == nil {
		return "ensembl http error"
	}
	parts := []string{
		fmt.Sprintf("ensembl api error: op=%s status=%s", strings.TrimSpace(e.Op), strings.TrimSpace(e.Status)),
	}
	if e.Message != "" {
		parts = append(parts, "error="+e.Message)
	}
	if e.Snippet != "" {
		parts = append(parts, "body="+e.Snippet)
	}
	return strings.Join(parts, " ")
}

// Body returns whatever the service said about the failure.
func (e *HTTPError) Body() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Snippet
}

func newHTTPError(op string, resp *http.Response, body []byte) *HTTPError {
	h := &HTTPError{Op: op}
	if resp != nil {
		h.StatusCode = resp.StatusCode
		h.Status = resp.Status
	}

	var env errorEnvelope
	if len(body) > 0 && json.Unmarshal(body, &env) == nil && strings.TrimSpace(env.Error) != "" {
		h.Message = strings.TrimSpace(env.Error)
		return h
	}

	h.Snippet = truncateBody(body)
	return h
}

func truncateBody(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	const max = 256
	b := body
	if len(b) > max {
		b = b[:max]
	}
	s := string(b)
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\r", " ")
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if len(body) > max {
		return s + "..."
	}
	return s
}
