package httpd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// IndexPath is served for the bare "/" target.
const IndexPath = "/index.html"

const (
	// DefaultMaxHeaderBytes bounds the request line plus headers.
	DefaultMaxHeaderBytes = 64 << 10
	// MaxBodyBytes bounds the declared Content-Length.
	MaxBodyBytes = 1 << 20
)

var (
	// ErrUnparseable means the request cannot be framed. The connection is
	// closed without a response.
	ErrUnparseable = errors.New("unparseable request")
	// ErrHeaderTooLarge means the header section exceeded its limit.
	ErrHeaderTooLarge = errors.New("request header too large")
	// ErrBodyTooLarge means the declared body exceeds MaxBodyBytes.
	ErrBodyTooLarge = errors.New("request body too large")
)

// Header is a case-insensitive header map. Keys are stored lower-cased.
type Header map[string]string

// Get returns the value of name, ignoring case.
func (h Header) Get(name string) string {
	return h[strings.ToLower(name)]
}

// Set stores value under the lower-cased name.
func (h Header) Set(name, value string) {
	h[strings.ToLower(name)] = value
}

// Request is one framed HTTP request.
type Request struct {
	Method     string
	Path       string
	RawQuery   string
	Version    string
	Headers    Header
	Cookies    map[string]string
	Body       []byte
	RemoteAddr string

	// Truncated is set when the peer closed before Content-Length bytes arrived.
	Truncated bool

	// Username is attached by the dispatcher after a pass-through result.
	Username string
}

// Cookie returns the named cookie value.
func (r *Request) Cookie(name string) string {
	return r.Cookies[name]
}

// ReadRequest frames a single request from r. Headers are read up to the
// first empty line, then exactly Content-Length body bytes. A short body is
// accepted and flagged as truncated.
func ReadRequest(r io.Reader, maxHeaderBytes int) (*Request, error) {
	if maxHeaderBytes <= 0 {
		maxHeaderBytes = DefaultMaxHeaderBytes
	}
	br := bufio.NewReader(r)

	lines, err := readHeaderLines(br, maxHeaderBytes)
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, ErrUnparseable
	}

	req, err := parseRequestLine(lines[0])
	if err != nil {
		return nil, err
	}
	req.Headers = parseHeaders(lines[1:])
	req.Cookies = parseCookies(req.Headers.Get("cookie"))

	length, err := contentLength(req.Headers)
	if err != nil {
		return nil, err
	}
	if length > 0 {
		body := make([]byte, length)
		// EOF, timeouts and resets all end the body early.
		n, readErr := io.ReadFull(br, body)
		req.Truncated = readErr != nil
		req.Body = body[:n]
	}

	return req, nil
}

// readHeaderLines collects lines until the blank separator line or EOF.
func readHeaderLines(br *bufio.Reader, limit int) ([]string, error) {
	var (
		lines []string
		total int
	)
	for {
		line, err := readLine(br, limit-total)
		if errors.Is(err, ErrHeaderTooLarge) {
			return nil, err
		}
		total += len(line)

		trimmed := strings.TrimRight(line, "\r\n")
		if err == nil && trimmed == "" {
			if len(lines) == 0 {
				// Tolerate leading blank lines before the request line.
				continue
			}
			return lines, nil
		}
		if trimmed != "" {
			lines = append(lines, trimmed)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return lines, nil
			}
			return lines, fmt.Errorf("%w: %v", ErrUnparseable, err)
		}
	}
}

// readLine reads through the next newline, failing once more than limit bytes
// have been buffered. Partial lines before an error are returned with it.
func readLine(br *bufio.Reader, limit int) (string, error) {
	var line []byte
	for {
		frag, err := br.ReadSlice('\n')
		if len(line)+len(frag) > limit {
			return "", ErrHeaderTooLarge
		}
		line = append(line, frag...)
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		return string(line), err
	}
}

func parseRequestLine(line string) (*Request, error) {
	parts := strings.Fields(line)
	if len(parts) != 3 {
		return nil, ErrUnparseable
	}

	target := parts[1]
	var rawQuery string
	if i := strings.IndexByte(target, '?'); i >= 0 {
		target, rawQuery = target[:i], target[i+1:]
	}
	if target == "" || target == "/" {
		target = IndexPath
	}

	return &Request{
		Method:   strings.ToUpper(parts[0]),
		Path:     target,
		RawQuery: rawQuery,
		Version:  parts[2],
	}, nil
}

func parseHeaders(lines []string) Header {
	headers := make(Header, len(lines))
	for _, line := range lines {
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		headers.Set(name, strings.TrimSpace(value))
	}
	return headers
}

func parseCookies(header string) map[string]string {
	cookies := make(map[string]string)
	for _, pair := range strings.Split(header, ";") {
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		cookies[key] = strings.TrimSpace(value)
	}
	return cookies
}

func contentLength(h Header) (int, error) {
	raw := h.Get("content-length")
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, ErrUnparseable
	}
	if n > MaxBodyBytes {
		return 0, ErrBodyTooLarge
	}
	return n, nil
}
