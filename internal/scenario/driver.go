// Package scenario implements the per-iteration request logic of a virtual
// user: pick an endpoint, GET it with the run's token, check the response
// and pause for the think-time.
package scenario

import (
	"context"
	"errors"
	"io"
	"math/rand"
	"net/http"
	"net/http/httptrace"
	"time"
)

// Response is what checks see of a completed request.
type Response struct {
	Status   int
	Duration time.Duration
	Err      error
}

// RequestSample is one recorded HTTP request.
type RequestSample struct {
	Endpoint string
	Status   int
	Duration time.Duration
	Timings  Timings
	Bytes    int64
	Failed   bool
	Err      error
}

// Recorder receives the samples produced by an iteration.
type Recorder interface {
	RecordRequest(s RequestSample)
	RecordCheck(name string, passed bool)
	RecordIteration(d time.Duration)
}

// Driver executes scenario iterations. It holds no per-VU state and is safe
// for concurrent use once configured.
type Driver struct {
	// BaseURL is prefixed verbatim to every endpoint
	BaseURL string

	// Token is sent verbatim as the Authorization header
	Token string

	Endpoints []string
	ThinkTime time.Duration
	Checks    []Check

	// DiscardResponseBodies drains bodies to io.Discard
	DiscardResponseBodies bool

	// Pick returns an index in [0, n). Defaults to math/rand/v2.
	Pick func(n int) int

	// Sleep pauses for d or until ctx is done. Defaults to a timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// ErrNoEndpoints is returned when the driver has nothing to request.
var ErrNoEndpoints = errors.New("scenario has no endpoints")

// Iterate runs one iteration: a single GET against a random endpoint, the
// checks, then the think-time.
//
// Request failures, failed checks and slow responses are recorded, not
// returned. The only errors are ctx cancellation and a missing endpoint
// list. A request cut short by cancellation is not recorded.
func (d *Driver) Iterate(ctx context.Context, client *http.Client, rec Recorder) error {
	if len(d.Endpoints) == 0 {
		return ErrNoEndpoints
	}

	start := time.Now()

	endpoint := d.Endpoints[d.pick(len(d.Endpoints))]
	sample, err := d.do(ctx, client, endpoint)
	if err != nil {
		return err
	}
	rec.RecordRequest(sample)

	resp := &Response{Status: sample.Status, Duration: sample.Duration, Err: sample.Err}
	for _, c := range d.Checks {
		rec.RecordCheck(c.Name, c.Run(resp))
	}

	if err := d.sleep(ctx, d.ThinkTime); err != nil {
		return err
	}

	rec.RecordIteration(time.Since(start))
	return nil
}

// do performs the request. It returns an error only when ctx was cancelled.
func (d *Driver) do(ctx context.Context, client *http.Client, endpoint string) (RequestSample, error) {
	sample := RequestSample{Endpoint: endpoint}

	tr := &tracer{}
	traceCtx := httptrace.WithClientTrace(ctx, tr.clientTrace())

	req, err := http.NewRequestWithContext(traceCtx, http.MethodGet, d.BaseURL+endpoint, nil)
	if err != nil {
		sample.Failed = true
		sample.Err = err
		return sample, nil
	}
	req.Header.Set("Authorization", d.Token)
	req.Header.Set("Content-Type", "application/json")

	tr.start = time.Now()
	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return sample, ctx.Err()
		}
		sample.Failed = true
		sample.Err = err
		if tr.connected() {
			sample.Timings = tr.timings(time.Now())
			sample.Duration = sample.Timings.Duration()
		}
		return sample, nil
	}

	n, readErr := d.drain(resp.Body)
	resp.Body.Close()
	end := time.Now()

	if readErr != nil && ctx.Err() != nil {
		return sample, ctx.Err()
	}

	sample.Status = resp.StatusCode
	sample.Bytes = n
	sample.Timings = tr.timings(end)
	sample.Duration = sample.Timings.Duration()
	sample.Err = readErr
	sample.Failed = readErr != nil || resp.StatusCode >= 400

	return sample, nil
}

func (d *Driver) drain(body io.Reader) (int64, error) {
	if d.DiscardResponseBodies {
		return io.Copy(io.Discard, body)
	}
	data, err := io.ReadAll(body)
	return int64(len(data)), err
}

func (d *Driver) pick(n int) int {
	if d.Pick != nil {
		return d.Pick(n)
	}
	return rand.Intn(n)
}

func (d *Driver) sleep(ctx context.Context, dur time.Duration) error {
	if d.Sleep != nil {
		return d.Sleep(ctx, dur)
	}
	return Sleep(ctx, dur)
}

// Sleep pauses for d, returning early with ctx.Err() if ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
