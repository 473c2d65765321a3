package http

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

// Result is the outcome of one request. It is created per call, consumed by
// checks and metrics, and then dropped.
type Result struct {
	Method     string
	URL        string
	StatusCode int
	Status     string
	Proto      string
	Header     http.Header

	// Body holds at most MaxBodyBytes; Bytes counts everything received
	Body          []byte
	BodyTruncated bool
	Bytes         int64

	StartTime time.Time
	Timings   Timings

	// Duration is Timings.Duration()
	Duration time.Duration

	// Success is true for a 2xx or 3xx response with no transport error
	Success bool

	// Err is set when the request could not complete
	Err *RequestError
}

// GetHeader returns the value of the specified header
func (r *Result) GetHeader(key string) string {
	if r.Header == nil {
		return ""
	}
	return r.Header.Get(key)
}

// BodyString returns the retained body as a string
func (r *Result) BodyString() string {
	return string(r.Body)
}

// DecodeJSON unmarshals the retained body into v
func (r *Result) DecodeJSON(v interface{}) error {
	return json.Unmarshal(r.Body, v)
}

// IsClientError returns true if the response status code is in the 4xx range
func (r *Result) IsClientError() bool {
	return r.StatusCode >= 400 && r.StatusCode < 500
}

// IsServerError returns true if the response status code is in the 5xx range
func (r *Result) IsServerError() bool {
	return r.StatusCode >= 500 && r.StatusCode < 600
}

// ErrorKind classifies a transport failure.
type ErrorKind string

const (
	ErrorKindDNS      ErrorKind = "dns"
	ErrorKindConnect  ErrorKind = "connect"
	ErrorKindTLS      ErrorKind = "tls"
	ErrorKindTimeout  ErrorKind = "timeout"
	ErrorKindCanceled ErrorKind = "canceled"
	ErrorKindInvalid  ErrorKind = "invalid"
	ErrorKindOther    ErrorKind = "other"
)

// RequestError describes a request that produced no usable response.
type RequestError struct {
	Kind ErrorKind
	Op   string
	URL  string
	Err  error
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("%s %s: %s: %v", e.Op, e.URL, e.Kind, e.Err)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// Timeout reports whether the request ran out of time.
func (e *RequestError) Timeout() bool {
	return e.Kind == ErrorKindTimeout
}

// classify maps err to a RequestError. ctx is the caller's context, checked
// first so a cancelled run is not reported as a network failure.
func classify(ctx context.Context, op, url string, err error) *RequestError {
	re := &RequestError{Op: op, URL: url, Err: err}

	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			re.Kind = ErrorKindTimeout
		} else {
			re.Kind = ErrorKindCanceled
		}
		return re
	}

	var (
		dnsErr      *net.DNSError
		netErr      net.Error
		recordErr   tls.RecordHeaderError
		verifyErr   *tls.CertificateVerificationError
		unknownAuth x509.UnknownAuthorityError
		hostnameErr x509.HostnameError
		invalidErr  x509.CertificateInvalidError
		opErr       *net.OpError
	)

	switch {
	case errors.Is(err, context.Canceled):
		re.Kind = ErrorKindCanceled
	case errors.Is(err, context.DeadlineExceeded):
		re.Kind = ErrorKindTimeout
	case errors.As(err, &dnsErr):
		re.Kind = ErrorKindDNS
		if dnsErr.IsTimeout {
			re.Kind = ErrorKindTimeout
		}
	case errors.As(err, &recordErr),
		errors.As(err, &verifyErr),
		errors.As(err, &unknownAuth),
		errors.As(err, &hostnameErr),
		errors.As(err, &invalidErr):
		re.Kind = ErrorKindTLS
	case errors.As(err, &netErr) && netErr.Timeout():
		re.Kind = ErrorKindTimeout
	case errors.As(err, &opErr) && opErr.Op == "dial":
		re.Kind = ErrorKindConnect
	default:
		re.Kind = ErrorKindOther
	}

	return re
}
