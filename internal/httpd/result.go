package httpd

import "net/http"

// Fixed error pages served for redirect results.
const (
	UnauthorizedPage = "/401.html"
	NotFoundPage     = "/404.html"
)

// ResultKind tags the variant held by a Result.
type ResultKind int

const (
	// KindNone means the hook gave no answer; static resolution follows.
	KindNone ResultKind = iota
	// KindAPI is a plain JSON answer.
	KindAPI
	// KindRedirect serves a static page in place of the requested path.
	KindRedirect
	// KindAuthorized lets the request through to the underlying resource.
	KindAuthorized
	// KindFault reports a hook failure.
	KindFault
)

func (k ResultKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindAPI:
		return "api"
	case KindRedirect:
		return "redirect"
	case KindAuthorized:
		return "authorized"
	case KindFault:
		return "fault"
	default:
		return "unknown"
	}
}

// Result is what a hook returns to the dispatcher.
type Result struct {
	Kind     ResultKind
	Status   int
	Body     any
	Headers  map[string]string
	Target   string
	Username string
	Err      error
}

// API answers with status and a JSON-encoded body.
func API(status int, body any) Result {
	return Result{Kind: KindAPI, Status: status, Body: body}
}

// Redirect serves the static page at target with the given status.
func Redirect(status int, target string) Result {
	return Result{Kind: KindRedirect, Status: status, Target: target}
}

// Unauthorized serves the 401 page.
func Unauthorized() Result {
	return Redirect(http.StatusUnauthorized, UnauthorizedPage)
}

// NotFound serves the 404 page.
func NotFound() Result {
	return Redirect(http.StatusNotFound, NotFoundPage)
}

// Authorized lets the request continue to static resolution as username.
func Authorized(username string) Result {
	return Result{Kind: KindAuthorized, Username: username}
}

// Fault reports that the hook failed with err.
func Fault(err error) Result {
	return Result{Kind: KindFault, Err: err}
}

// WithHeader returns a copy of r carrying an extra response header.
func (r Result) WithHeader(name, value string) Result {
	headers := make(map[string]string, len(r.Headers)+1)
	for k, v := range r.Headers {
		headers[k] = v
	}
	headers[name] = value
	r.Headers = headers
	return r
}
