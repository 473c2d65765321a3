package http

import (
	"crypto/tls"
	"net/http/httptrace"
	"sync"
	"time"
)

// Timings breaks a request into the same phases k6 reports.
type Timings struct {
	// Blocked is time spent waiting for a connection, including DNS
	Blocked time.Duration `json:"blocked"`

	// Connecting is TCP connect time
	Connecting time.Duration `json:"connecting"`

	// TLSHandshaking is TLS handshake time
	TLSHandshaking time.Duration `json:"tlsHandshaking"`

	// Sending is time spent writing the request
	Sending time.Duration `json:"sending"`

	// Waiting is time to first response byte after the request was written
	Waiting time.Duration `json:"waiting"`

	// Receiving is time spent reading the response body
	Receiving time.Duration `json:"receiving"`
}

// Duration is sending + waiting + receiving, which is what k6 reports as
// http_req_duration.
func (t Timings) Duration() time.Duration {
	return t.Sending + t.Waiting + t.Receiving
}

// tracer collects httptrace callbacks. Dial callbacks may fire on other
// goroutines, so every field is guarded.
type tracer struct {
	mu sync.Mutex

	start        time.Time
	gotConn      time.Time
	connectStart time.Time
	connectDone  time.Time
	tlsStart     time.Time
	tlsDone      time.Time
	wroteRequest time.Time
	gotFirstByte time.Time
}

func newTracer(start time.Time) *tracer {
	return &tracer{start: start}
}

func (t *tracer) clientTrace() *httptrace.ClientTrace {
	mark := func(field *time.Time) {
		t.mu.Lock()
		*field = time.Now()
		t.mu.Unlock()
	}

	return &httptrace.ClientTrace{
		ConnectStart: func(network, addr string) {
			t.mu.Lock()
			// Keep the first attempt when dialing races several addresses
			if t.connectStart.IsZero() {
				t.connectStart = time.Now()
			}
			t.mu.Unlock()
		},
		ConnectDone: func(network, addr string, err error) {
			if err == nil {
				mark(&t.connectDone)
			}
		},
		TLSHandshakeStart: func() {
			mark(&t.tlsStart)
		},
		TLSHandshakeDone: func(state tls.ConnectionState, err error) {
			if err == nil {
				mark(&t.tlsDone)
			}
		},
		GotConn: func(httptrace.GotConnInfo) {
			mark(&t.gotConn)
		},
		WroteRequest: func(httptrace.WroteRequestInfo) {
			mark(&t.wroteRequest)
		},
		GotFirstResponseByte: func() {
			mark(&t.gotFirstByte)
		},
	}
}

// timings converts the marks into phase durations. Phases that never started
// are zero; a phase that started but did not finish runs until end.
func (t *tracer) timings(end time.Time) Timings {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out Timings

	if !t.connectStart.IsZero() {
		out.Connecting = span(t.connectStart, t.connectDone, end)
	}
	if !t.tlsStart.IsZero() {
		out.TLSHandshaking = span(t.tlsStart, t.tlsDone, end)
	}

	if t.gotConn.IsZero() {
		// Never got a connection: all of it was spent blocked or dialing
		out.Blocked = nonNegative(end.Sub(t.start) - out.Connecting - out.TLSHandshaking)
		return out
	}
	out.Blocked = nonNegative(t.gotConn.Sub(t.start) - out.Connecting - out.TLSHandshaking)

	if t.wroteRequest.IsZero() {
		out.Sending = nonNegative(end.Sub(t.gotConn))
		return out
	}
	out.Sending = nonNegative(t.wroteRequest.Sub(t.gotConn))

	if t.gotFirstByte.IsZero() {
		out.Waiting = nonNegative(end.Sub(t.wroteRequest))
		return out
	}
	out.Waiting = nonNegative(t.gotFirstByte.Sub(t.wroteRequest))
	out.Receiving = nonNegative(end.Sub(t.gotFirstByte))

	return out
}

func span(from, to, end time.Time) time.Duration {
	if to.IsZero() {
		to = end
	}
	return nonNegative(to.Sub(from))
}

func nonNegative(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d
}
