package forwarder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/angeloszaimis/instance-balancer/internal/instance"
)

// ErrInstanceUnreachable marks any failure to get a response out of an instance.
var ErrInstanceUnreachable = errors.New("instance unreachable")

// UnreachableError carries the instance and the transport error behind an
// ErrInstanceUnreachable.
type UnreachableError struct {
	Instance instance.Instance
	Err      error
}

func (e *UnreachableError) Error() string {
	return fmt.Sprintf("instance %s unreachable: %v", e.Instance.HostPort(), e.Err)
}

func (e *UnreachableError) Unwrap() error {
	return e.Err
}

func (e *UnreachableError) Is(target error) bool {
	return target == ErrInstanceUnreachable
}

// Request is the part of an inbound request that gets replayed upstream.
type Request struct {
	Method string
	// Path in its escaped form, as in url.URL.EscapedPath.
	Path     string
	RawQuery string
	Header   http.Header
	Body     io.Reader
	// ContentLength of Body, -1 if unknown.
	ContentLength int64
	RemoteAddr    string
}

// Response is the upstream answer, fully read.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Hop-by-hop headers, RFC 7230 section 6.1.
var hopHeaders = []string{
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

type Forwarder struct {
	client *http.Client
}

// New creates a Forwarder whose requests are bounded by timeout.
// A zero timeout leaves requests unbounded.
func New(timeout time.Duration) *Forwarder {
	return NewWithClient(&http.Client{
		Timeout: timeout,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	})
}

func NewWithClient(client *http.Client) *Forwarder {
	return &Forwarder{client: client}
}

// Forward sends req to inst once and returns its response.
func (f *Forwarder) Forward(ctx context.Context, inst instance.Instance, req Request) (*Response, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	target := inst.URL(req.Path, req.RawQuery)

	outReq, err := http.NewRequestWithContext(ctx, method, target.String(), req.Body)
	if err != nil {
		return nil, fmt.Errorf("build request for %s: %w", inst.HostPort(), err)
	}

	if req.Body != nil && req.ContentLength > 0 {
		outReq.ContentLength = req.ContentLength
	}
	if req.Header != nil {
		outReq.Header = req.Header.Clone()
	}
	removeHopHeaders(outReq.Header)
	appendForwardedFor(outReq.Header, req.RemoteAddr)

	res, err := f.client.Do(outReq)
	if err != nil {
		return nil, &UnreachableError{Instance: inst, Err: err}
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, &UnreachableError{Instance: inst, Err: err}
	}

	header := res.Header.Clone()
	removeHopHeaders(header)

	return &Response{
		StatusCode: res.StatusCode,
		Header:     header,
		Body:       body,
	}, nil
}

func removeHopHeaders(header http.Header) {
	for _, h := range hopHeaders {
		header.Del(h)
	}
}

func appendForwardedFor(header http.Header, remoteAddr string) {
	clientIP, _, err := net.SplitHostPort(remoteAddr)
	if err != nil || clientIP == "" {
		return
	}

	if prior := header.Values("X-Forwarded-For"); len(prior) > 0 {
		clientIP = strings.Join(prior, ", ") + ", " + clientIP
	}
	header.Set("X-Forwarded-For", clientIP)
}
