package performance

import (
	"context"
	"crypto/tls"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chess-vn/chessload/internal/scenario"
)

// VUScheduler manages the lifecycle of Virtual Users.
//
// It provides:
//   - VU pool management (spawning, retiring, cancelling VUs)
//   - The shared HTTP client all VUs use
//   - Graceful shutdown coordination
//
// The scheduler is used by executors to control VU counts.
type VUScheduler struct {
	driver   *scenario.Driver
	recorder scenario.Recorder

	httpClientConfig HTTPClientConfig
	client           *http.Client

	vus   map[int]*VirtualUser
	vusMu sync.RWMutex

	nextVUID atomic.Int32
}

// HTTPClientConfig contains HTTP client configuration.
type HTTPClientConfig struct {
	// Timeout for HTTP requests
	Timeout time.Duration

	// MaxIdleConns controls the maximum number of idle connections
	MaxIdleConns int

	// MaxIdleConnsPerHost controls the maximum idle connections per host
	MaxIdleConnsPerHost int

	// MaxConnsPerHost limits the total connections per host (0 = unlimited)
	MaxConnsPerHost int

	// IdleConnTimeout is how long idle connections are kept alive
	IdleConnTimeout time.Duration

	// InsecureSkipVerify skips TLS certificate verification
	InsecureSkipVerify bool
}

// DefaultHTTPClientConfig returns defaults sized for a thousand VUs
// against a single host.
func DefaultHTTPClientConfig() HTTPClientConfig {
	return HTTPClientConfig{
		Timeout:             60 * time.Second,
		MaxIdleConns:        1000,
		MaxIdleConnsPerHost: 100,
		IdleConnTimeout:     90 * time.Second,
	}
}

// NewVUScheduler creates a scheduler whose VUs run driver and report to recorder.
func NewVUScheduler(driver *scenario.Driver, recorder scenario.Recorder, httpConfig HTTPClientConfig) *VUScheduler {
	return &VUScheduler{
		driver:           driver,
		recorder:         recorder,
		httpClientConfig: httpConfig,
		client:           NewHTTPClient(httpConfig),
		vus:              make(map[int]*VirtualUser),
	}
}

// NewHTTPClient creates an HTTP client with the configured settings.
func NewHTTPClient(cfg HTTPClientConfig) *http.Client {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
		MaxConnsPerHost:     cfg.MaxConnsPerHost,
		IdleConnTimeout:     cfg.IdleConnTimeout,
		ForceAttemptHTTP2:   true,
	}
	if cfg.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return &http.Client{
		Transport: transport,
		Timeout:   cfg.Timeout,
	}
}

// Client returns the shared HTTP client.
func (s *VUScheduler) Client() *http.Client {
	return s.client
}

// SpawnVU creates and registers a new Virtual User. Its context derives
// from ctx, so cancelling ctx hard-stops it.
//
// The caller is responsible for running the VU.
func (s *VUScheduler) SpawnVU(ctx context.Context) *VirtualUser {
	id := int(s.nextVUID.Add(1))
	vu := NewVirtualUser(ctx, id, s.driver, s.client, s.recorder)

	s.vusMu.Lock()
	s.vus[id] = vu
	s.vusMu.Unlock()

	return vu
}

// GetVU returns a VU by ID, or nil if not found.
func (s *VUScheduler) GetVU(id int) *VirtualUser {
	s.vusMu.RLock()
	defer s.vusMu.RUnlock()
	return s.vus[id]
}

// GetActiveVUs returns all non-stopped VUs ordered by ID.
func (s *VUScheduler) GetActiveVUs() []*VirtualUser {
	s.vusMu.RLock()
	result := make([]*VirtualUser, 0, len(s.vus))
	for _, vu := range s.vus {
		if vu.GetState() != VUStateStopped {
			result = append(result, vu)
		}
	}
	s.vusMu.RUnlock()

	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// GetActiveVUCount returns the count of non-stopped VUs, retiring ones included.
func (s *VUScheduler) GetActiveVUCount() int {
	s.vusMu.RLock()
	defer s.vusMu.RUnlock()

	count := 0
	for _, vu := range s.vus {
		if vu.GetState() != VUStateStopped {
			count++
		}
	}
	return count
}

// StopVU retires a specific VU.
func (s *VUScheduler) StopVU(id int) {
	if vu := s.GetVU(id); vu != nil {
		vu.RequestStop()
	}
}

// StopAllVUs retires all VUs.
func (s *VUScheduler) StopAllVUs() {
	s.vusMu.RLock()
	defer s.vusMu.RUnlock()

	for _, vu := range s.vus {
		vu.RequestStop()
	}
}

// CancelAllVUs hard-stops every VU that has not stopped yet and returns
// how many were cancelled.
func (s *VUScheduler) CancelAllVUs() int {
	s.vusMu.RLock()
	defer s.vusMu.RUnlock()

	cancelled := 0
	for _, vu := range s.vus {
		if vu.GetState() != VUStateStopped {
			vu.Cancel()
			cancelled++
		}
	}
	return cancelled
}

// RemoveVU removes a VU from the scheduler.
// The VU should be stopped before calling this.
func (s *VUScheduler) RemoveVU(id int) {
	s.vusMu.Lock()
	defer s.vusMu.Unlock()

	if vu, exists := s.vus[id]; exists {
		vu.MarkStopped()
		delete(s.vus, id)
	}
}

// WaitForAllVUs waits for all VUs to stop with a timeout.
//
// Returns the number of VUs that did not stop within the timeout.
func (s *VUScheduler) WaitForAllVUs(timeout time.Duration) int {
	deadline := time.Now().Add(timeout)

	s.vusMu.RLock()
	vus := make([]*VirtualUser, 0, len(s.vus))
	for _, vu := range s.vus {
		vus = append(vus, vu)
	}
	s.vusMu.RUnlock()

	notStopped := 0
	for _, vu := range vus {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			select {
			case <-vu.Done():
			default:
				notStopped++
			}
			continue
		}

		if !vu.WaitForStop(remaining) {
			notStopped++
		}
	}

	return notStopped
}

// Shutdown retires every VU, waits up to gracefulStop for their iterations
// to finish, then cancels the stragglers. It returns how many VUs had to be
// cancelled.
func (s *VUScheduler) Shutdown(gracefulStop time.Duration) int {
	s.StopAllVUs()

	cancelled := 0
	if s.WaitForAllVUs(gracefulStop) > 0 {
		cancelled = s.CancelAllVUs()
	}

	s.client.CloseIdleConnections()
	return cancelled
}
