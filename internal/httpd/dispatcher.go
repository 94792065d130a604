package httpd

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-relay/internal/log"
	"github.com/vovakirdan/wirechat-relay/internal/metrics"
)

// LoginPath is the browser login form target. A pass-through result on it is
// rewritten to the index page.
const LoginPath = "/login"

// Outcome is the dispatcher's decision for one request.
type Outcome struct {
	// JSON is true when Body must be serialized as the response.
	JSON   bool
	Status int
	Body   any
	// Path is the static resource to serve when JSON is false.
	Path     string
	Headers  map[string]string
	Username string
	Kind     ResultKind
}

// Dispatcher runs hooks and turns their results into outcomes.
type Dispatcher struct {
	routes *RouteTable
	log    *zerolog.Logger
}

// NewDispatcher builds a dispatcher over an immutable route table.
func NewDispatcher(routes *RouteTable, logger *zerolog.Logger) *Dispatcher {
	if logger == nil {
		logger = log.Nop()
	}
	return &Dispatcher{routes: routes, log: logger}
}

// Dispatch resolves req into an Outcome.
func (d *Dispatcher) Dispatch(req *Request) Outcome {
	hook, ok := d.routes.Lookup(req.Method, req.Path)
	if !ok {
		d.log.Debug().Str("method", req.Method).Str("path", req.Path).Msg("no hook, serving static")
		return Outcome{Path: req.Path, Kind: KindNone}
	}

	d.log.Debug().Str("method", req.Method).Str("path", req.Path).Msg("hooking to route")
	res := invoke(hook, req)

	switch res.Kind {
	case KindRedirect:
		return Outcome{Status: res.Status, Path: res.Target, Kind: KindRedirect}

	case KindAuthorized:
		req.Username = res.Username
		out := Outcome{Path: req.Path, Username: res.Username, Kind: KindAuthorized}
		if req.Path == LoginPath {
			out.Path = IndexPath
			out.Headers = copyHeaders(res.Headers)
		}
		return out

	case KindAPI:
		return Outcome{
			JSON:    true,
			Status:  res.Status,
			Body:    res.Body,
			Headers: copyHeaders(res.Headers),
			Kind:    KindAPI,
		}

	case KindFault:
		metrics.HookFaults.Inc()
		d.log.Error().Err(res.Err).Str("method", req.Method).Str("path", req.Path).Msg("hook failed, serving static")
		return Outcome{Path: req.Path, Kind: KindFault}

	default:
		return Outcome{Path: req.Path, Kind: KindNone}
	}
}

// invoke runs hook and converts a panic into a Fault.
func invoke(hook Hook, req *Request) (res Result) {
	defer func() {
		if p := recover(); p != nil {
			if err, ok := p.(error); ok {
				res = Fault(fmt.Errorf("hook panic: %w", err))
				return
			}
			res = Fault(fmt.Errorf("hook panic: %v", p))
		}
	}()
	return hook(req)
}

func copyHeaders(h map[string]string) map[string]string {
	if len(h) == 0 {
		return nil
	}
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out
}
