package httpd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io/fs"
	"mime"
	"net/http"
	"path"
	"sort"
	"strconv"
	"strings"
)

// Response is a fully built reply ready to be written to the connection.
type Response struct {
	Status  int
	Headers map[string]string
	Body    []byte
}

// Bytes renders the status line, headers and body.
func (r *Response) Bytes() []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "HTTP/1.1 %d %s\r\n", r.Status, http.StatusText(r.Status))

	names := make([]string, 0, len(r.Headers))
	for name := range r.Headers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(&buf, "%s: %s\r\n", name, r.Headers[name])
	}
	buf.WriteString("\r\n")
	buf.Write(r.Body)
	return buf.Bytes()
}

// ResponseBuilder turns outcomes into responses, serving static resources
// from a file system.
type ResponseBuilder struct {
	resources fs.FS
}

// NewResponseBuilder serves static resources from resources. A nil FS serves
// nothing and every static lookup misses.
func NewResponseBuilder(resources fs.FS) *ResponseBuilder {
	return &ResponseBuilder{resources: resources}
}

// Build renders out into a response.
func (b *ResponseBuilder) Build(out Outcome) *Response {
	if out.JSON {
		return b.buildJSON(out)
	}
	return b.buildStatic(out)
}

func (b *ResponseBuilder) buildJSON(out Outcome) *Response {
	status := out.Status
	if status == 0 {
		status = http.StatusOK
	}

	body, err := json.Marshal(out.Body)
	if err != nil {
		status = http.StatusInternalServerError
		body = []byte(`{"status":"failed","reason":"unencodable response"}`)
	}

	resp := &Response{Status: status, Headers: make(map[string]string), Body: body}
	mergeHeaders(resp.Headers, out.Headers)
	resp.Headers["Content-Type"] = "application/json"
	finalize(resp)
	return resp
}

func (b *ResponseBuilder) buildStatic(out Outcome) *Response {
	status := out.Status
	if status == 0 {
		status = http.StatusOK
	}

	body, ok := b.read(out.Path)
	contentType := contentTypeFor(out.Path)
	if !ok {
		status = http.StatusNotFound
		body, ok = b.read(NotFoundPage)
		contentType = contentTypeFor(NotFoundPage)
		if !ok {
			body = []byte("404 Not Found")
			contentType = "text/plain; charset=utf-8"
		}
	}

	resp := &Response{Status: status, Headers: make(map[string]string), Body: body}
	mergeHeaders(resp.Headers, out.Headers)
	resp.Headers["Content-Type"] = contentType
	finalize(resp)
	return resp
}

// read loads a resource by URL path. Paths escaping the root miss.
func (b *ResponseBuilder) read(urlPath string) ([]byte, bool) {
	if b.resources == nil {
		return nil, false
	}
	name := strings.TrimPrefix(path.Clean("/"+urlPath), "/")
	if name == "" || !fs.ValidPath(name) {
		return nil, false
	}
	data, err := fs.ReadFile(b.resources, name)
	if err != nil {
		return nil, false
	}
	return data, true
}

func contentTypeFor(urlPath string) string {
	if ct := mime.TypeByExtension(path.Ext(urlPath)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

func mergeHeaders(dst, src map[string]string) {
	for k, v := range src {
		dst[k] = v
	}
}

func finalize(resp *Response) {
	resp.Headers["Content-Length"] = strconv.Itoa(len(resp.Body))
	resp.Headers["Connection"] = "close"
}
