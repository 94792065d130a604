package httpd

import (
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"
)

func TestReadRequestParsesLineHeadersAndBody(t *testing.T) {
	raw := "POST /api/login?x=1 HTTP/1.1\r\n" +
		"Host: tracker\r\n" +
		"Content-Type: application/json\r\n" +
		"COOKIE: session_id=abc; theme=dark\r\n" +
		"Content-Length: 13\r\n" +
		"\r\n" +
		`{"a":"hello"}`

	req, err := ReadRequest(strings.NewReader(raw), 0)
	if err != nil {
		t.Fatalf("read request: %v", err)
	}

	if req.Method != "POST" || req.Path != "/api/login" || req.Version != "HTTP/1.1" {
		t.Fatalf("unexpected request line: %+v", req)
	}
	if req.RawQuery != "x=1" {
		t.Fatalf("expected query x=1, got %q", req.RawQuery)
	}
	if got := req.Headers.Get("content-type"); got != "application/json" {
		t.Fatalf("expected case-insensitive header, got %q", got)
	}
	if got := req.Headers.Get("Host"); got != "tracker" {
		t.Fatalf("expected host header, got %q", got)
	}
	if req.Cookie("session_id") != "abc" || req.Cookie("theme") != "dark" {
		t.Fatalf("unexpected cookies: %v", req.Cookies)
	}
	if string(req.Body) != `{"a":"hello"}` {
		t.Fatalf("unexpected body %q", req.Body)
	}
	if req.Truncated {
		t.Fatalf("body should not be truncated")
	}
}

func TestReadRequestRootMapsToIndex(t *testing.T) {
	req, err := ReadRequest(strings.NewReader("GET / HTTP/1.1\r\n\r\n"), 0)
	if err != nil {
		t.Fatalf("read request: %v", err)
	}
	if req.Path != IndexPath {
		t.Fatalf("expected %s, got %s", IndexPath, req.Path)
	}
}

func TestReadRequestReadsExactlyContentLength(t *testing.T) {
	raw := "POST /register HTTP/1.1\r\nContent-Length: 5\r\n\r\nhelloEXTRA"

	// One byte at a time forces the body loop to wait for every byte.
	req, err := ReadRequest(iotest.OneByteReader(strings.NewReader(raw)), 0)
	if err != nil {
		t.Fatalf("read request: %v", err)
	}
	if string(req.Body) != "hello" {
		t.Fatalf("expected exactly 5 body bytes, got %q", req.Body)
	}
}

func TestReadRequestAcceptsShortBody(t *testing.T) {
	raw := "POST /register HTTP/1.1\r\nContent-Length: 20\r\n\r\nshort"

	req, err := ReadRequest(strings.NewReader(raw), 0)
	if err != nil {
		t.Fatalf("short body must be accepted, got %v", err)
	}
	if !req.Truncated {
		t.Fatalf("expected truncated flag")
	}
	if string(req.Body) != "short" {
		t.Fatalf("unexpected body %q", req.Body)
	}
}

func TestReadRequestBareLineFeeds(t *testing.T) {
	raw := "GET /heartbeat HTTP/1.0\nCookie: session_id=t\n\n"

	req, err := ReadRequest(strings.NewReader(raw), 0)
	if err != nil {
		t.Fatalf("read request: %v", err)
	}
	if req.Path != "/heartbeat" || req.Cookie("session_id") != "t" {
		t.Fatalf("unexpected request: %+v", req)
	}
}

func TestReadRequestErrors(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		limit  int
		target error
	}{
		{name: "empty", raw: "", target: ErrUnparseable},
		{name: "two tokens", raw: "GET /\r\n\r\n", target: ErrUnparseable},
		{name: "four tokens", raw: "GET / HTTP/1.1 extra\r\n\r\n", target: ErrUnparseable},
		{name: "bad content length", raw: "POST /x HTTP/1.1\r\nContent-Length: abc\r\n\r\n", target: ErrUnparseable},
		{name: "negative content length", raw: "POST /x HTTP/1.1\r\nContent-Length: -1\r\n\r\n", target: ErrUnparseable},
		{name: "huge body", raw: "POST /x HTTP/1.1\r\nContent-Length: 99999999\r\n\r\n", target: ErrBodyTooLarge},
		{name: "header too large", raw: "GET / HTTP/1.1\r\nX-Long: " + strings.Repeat("a", 200) + "\r\n\r\n", limit: 64, target: ErrHeaderTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadRequest(strings.NewReader(tt.raw), tt.limit)
			if !errors.Is(err, tt.target) {
				t.Fatalf("expected %v, got %v", tt.target, err)
			}
		})
	}
}

func TestReadRequestReaderFailureIsUnparseable(t *testing.T) {
	r := io.MultiReader(strings.NewReader("GET /x HT"), iotest.ErrReader(errors.New("reset")))

	_, err := ReadRequest(r, 0)
	if !errors.Is(err, ErrUnparseable) {
		t.Fatalf("expected ErrUnparseable, got %v", err)
	}
}

func TestParseCookiesSkipsGarbage(t *testing.T) {
	cookies := parseCookies("a=1; ; broken; =x; b = 2 ")
	if len(cookies) != 2 || cookies["a"] != "1" || cookies["b"] != "2" {
		t.Fatalf("unexpected cookies: %v", cookies)
	}
}

// endlessReader yields 'A' forever and counts what it hands out.
type endlessReader struct{ n int }

func (r *endlessReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = 'A'
	}
	r.n += len(p)
	return len(p), nil
}

func TestReadRequestBoundsUnterminatedHeaderLine(t *testing.T) {
	const limit = 1024
	r := &endlessReader{}

	_, err := ReadRequest(r, limit)
	if !errors.Is(err, ErrHeaderTooLarge) {
		t.Fatalf("expected ErrHeaderTooLarge, got %v", err)
	}
	// At most one buffer fill past the limit.
	if r.n > limit+4096 {
		t.Fatalf("consumed %d bytes for a %d byte limit", r.n, limit)
	}
}

func TestReadRequestLongLineWithinLimit(t *testing.T) {
	value := strings.Repeat("v", 6000)
	raw := "GET /x HTTP/1.1\r\nX-Long: " + value + "\r\n\r\n"

	req, err := ReadRequest(strings.NewReader(raw), 0)
	if err != nil {
		t.Fatalf("read request: %v", err)
	}
	if req.Headers.Get("x-long") != value {
		t.Fatalf("long header was not reassembled")
	}
}
