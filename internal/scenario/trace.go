package scenario

import (
	"crypto/tls"
	"net/http/httptrace"
	"sync"
	"time"
)

// Timings breaks a request down the way k6 reports it.
type Timings struct {
	// Blocked is the time spent waiting for a connection
	Blocked time.Duration `json:"blocked"`

	// Connecting is TCP connect time, zero on a reused connection
	Connecting time.Duration `json:"connecting"`

	// TLSHandshaking is zero on plain HTTP or a reused connection
	TLSHandshaking time.Duration `json:"tlsHandshaking"`

	Sending   time.Duration `json:"sending"`
	Waiting   time.Duration `json:"waiting"`
	Receiving time.Duration `json:"receiving"`
}

// Duration is sending + waiting + receiving.
func (t Timings) Duration() time.Duration {
	return t.Sending + t.Waiting + t.Receiving
}

// tracer records connection lifecycle timestamps for a single request.
// Hooks may fire on transport goroutines.
type tracer struct {
	mu sync.Mutex

	start        time.Time
	connectStart time.Time
	connectDone  time.Time
	tlsStart     time.Time
	tlsDone      time.Time
	gotConn      time.Time
	wroteRequest time.Time
	firstByte    time.Time
}

func (tr *tracer) clientTrace() *httptrace.ClientTrace {
	return &httptrace.ClientTrace{
		ConnectStart: func(network, addr string) {
			tr.mark(&tr.connectStart)
		},
		ConnectDone: func(network, addr string, err error) {
			if err == nil {
				tr.mark(&tr.connectDone)
			}
		},
		TLSHandshakeStart: func() {
			tr.mark(&tr.tlsStart)
		},
		TLSHandshakeDone: func(state tls.ConnectionState, err error) {
			if err == nil {
				tr.mark(&tr.tlsDone)
			}
		},
		GotConn: func(info httptrace.GotConnInfo) {
			tr.mark(&tr.gotConn)
		},
		WroteRequest: func(info httptrace.WroteRequestInfo) {
			tr.mark(&tr.wroteRequest)
		},
		GotFirstResponseByte: func() {
			tr.mark(&tr.firstByte)
		},
	}
}

func (tr *tracer) mark(at *time.Time) {
	now := time.Now()
	tr.mu.Lock()
	*at = now
	tr.mu.Unlock()
}

// connected reports whether a connection was ever obtained.
func (tr *tracer) connected() bool {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return !tr.gotConn.IsZero()
}

// timings computes the breakdown once the body has been drained at end.
// Without a GotConn event (custom round trippers) the whole request counts
// as waiting.
func (tr *tracer) timings(end time.Time) Timings {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	var t Timings

	if tr.gotConn.IsZero() {
		t.Waiting = end.Sub(tr.start)
		return t
	}

	t.Blocked = tr.gotConn.Sub(tr.start)
	if !tr.connectStart.IsZero() && !tr.connectDone.IsZero() {
		t.Connecting = tr.connectDone.Sub(tr.connectStart)
	}
	if !tr.tlsStart.IsZero() && !tr.tlsDone.IsZero() {
		t.TLSHandshaking = tr.tlsDone.Sub(tr.tlsStart)
	}

	sent := tr.gotConn
	if !tr.wroteRequest.IsZero() {
		sent = tr.wroteRequest
	}
	t.Sending = sent.Sub(tr.gotConn)

	first := sent
	if !tr.firstByte.IsZero() {
		first = tr.firstByte
	}
	t.Waiting = first.Sub(sent)
	t.Receiving = end.Sub(first)

	return t
}
