package panel

import (
	"bytes"
	"fmt"
	"mime"
	"net/http"
	"strings"

	"pleskfm/markup"
)

// Convention names the way an endpoint reports failure.
type Convention int

const (
	// ExpectStatus: JSON envelope, failure when status == "error".
	ExpectStatus Convention = iota
	// ExpectStatusFail: JSON envelope, failure when status == "fail".
	ExpectStatusFail
	// ExpectStatusMessages: JSON envelope, failure when the first
	// statusMessages entry has status "error".
	ExpectStatusMessages
	// ExpectHTMLError: failure when the body holds a msg-error box.
	ExpectHTMLError
	// ExpectUpload: any 2xx without an error box or error envelope.
	ExpectUpload
	// ExpectOpaque: body passed through as the message; only a non-2xx
	// status is a failure.
	ExpectOpaque
)

const (
	statusError = "error"
	statusFail  = "fail"
)

// Raw is a fully read, small response.
type Raw struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

func (r Raw) ok() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// isHTML reports whether the body is a page rather than JSON or text.
func (r Raw) isHTML() bool {
	if isHTMLContentType(r.Header.Get("Content-Type")) {
		return true
	}
	return bytes.HasPrefix(bytes.TrimSpace(r.Body), []byte("<"))
}

func isHTMLContentType(ct string) bool {
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return strings.HasPrefix(strings.ToLower(ct), "text/html")
	}
	return mt == "text/html" || mt == "application/xhtml+xml"
}

// Result is the uniform outcome of one response.
type Result struct {
	Failed   bool
	Message  string
	Envelope *Envelope // nil unless the body decoded as JSON
}

// Err turns a failed Result into an *OperationError for op.
func (r Result) Err(op string) error {
	if !r.Failed {
		return nil
	}
	return &OperationError{Op: op, Message: r.Message}
}

func failure(msg string) Result {
	return Result{Failed: true, Message: msg}
}

// Interpret classifies raw according to the endpoint's convention.
func Interpret(raw Raw, conv Convention) Result {
	switch conv {
	case ExpectOpaque:
		text := strings.TrimSpace(string(raw.Body))
		switch {
		case raw.ok():
			return Result{Message: text}
		case raw.isHTML():
			return failure(orDefault(markup.ExtractError(bytes.NewReader(raw.Body)), httpStatus(raw)))
		case text != "":
			return failure(httpStatus(raw) + ": " + snippet(raw.Body))
		}
		return failure(httpStatus(raw))
	case ExpectHTMLError:
		if msg := markup.ExtractError(bytes.NewReader(raw.Body)); msg != "" {
			return failure(msg)
		}
		if !raw.ok() {
			return failure(httpStatus(raw))
		}
		return Result{}
	case ExpectUpload:
		return interpretUpload(raw)
	}

	env, err := decodeEnvelope(raw.Body)
	if err != nil {
		return undecodable(raw, err)
	}
	res := Result{Envelope: env, Message: string(env.Message)}
	switch conv {
	case ExpectStatus:
		if env.Status == statusError {
			return Result{Failed: true, Message: orDefault(string(env.Message), "server reported an error"), Envelope: env}
		}
	case ExpectStatusFail:
		if env.Status == statusFail {
			return Result{Failed: true, Message: orDefault(string(env.Message), "server reported a failure"), Envelope: env}
		}
	case ExpectStatusMessages:
		if len(env.StatusMessages) > 0 {
			first := env.StatusMessages[0]
			if first.Status == statusError {
				return Result{Failed: true, Message: orDefault(string(first.Content), "server reported an error"), Envelope: env}
			}
			res.Message = string(first.Content)
		}
	}
	if !raw.ok() {
		return Result{Failed: true, Message: httpStatus(raw), Envelope: env}
	}
	return res
}

func interpretUpload(raw Raw) Result {
	if raw.isHTML() {
		if msg := markup.ExtractError(bytes.NewReader(raw.Body)); msg != "" {
			return failure(msg)
		}
	} else if env, err := decodeEnvelope(raw.Body); err == nil && env.Status == statusError {
		return Result{Failed: true, Message: orDefault(string(env.Message), "server reported an error"), Envelope: env}
	}
	if !raw.ok() {
		return failure(httpStatus(raw))
	}
	return Result{}
}

// undecodable handles a body that should have been JSON but was not.
func undecodable(raw Raw, err error) Result {
	if raw.isHTML() {
		if msg := markup.ExtractError(bytes.NewReader(raw.Body)); msg != "" {
			return failure(msg)
		}
	}
	if !raw.ok() {
		return failure(httpStatus(raw))
	}
	return failure(fmt.Sprintf("unexpected response (%v): %s", err, snippet(raw.Body)))
}

func httpStatus(raw Raw) string {
	if text := http.StatusText(raw.StatusCode); text != "" {
		return fmt.Sprintf("HTTP %d %s", raw.StatusCode, text)
	}
	return fmt.Sprintf("HTTP %d", raw.StatusCode)
}

func snippet(b []byte) string {
	const limit = 120
	s := strings.TrimSpace(string(b))
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
