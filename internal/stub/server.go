// Package stub serves a local stand-in for the chess API read endpoints so
// scenarios can be smoke-run without the real backend.
package stub

import (
	"encoding/json"
	"io"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

// Options configures the stub server.
type Options struct {
	// Token, when set, must match the Authorization header exactly
	Token string

	// Latency is added to every request before it is answered
	Latency time.Duration

	// ErrorRate is the share of requests answered with 500, in [0, 1]
	ErrorRate float64

	Logger log.FieldLogger

	// Roll returns a float in [0, 1). Defaults to math/rand/v2.
	Roll func() float64
}

// Server is the stub chess API.
type Server struct {
	opts     Options
	data     *dataset
	router   chi.Router
	requests *prometheus.CounterVec
	registry *prometheus.Registry
}

// New builds the stub router.
func New(opts Options) *Server {
	if opts.Logger == nil {
		l := log.New()
		l.Out = io.Discard
		opts.Logger = l
	}
	if opts.Roll == nil {
		opts.Roll = rand.Float64
	}

	s := &Server{
		opts:     opts,
		data:     newDataset(time.Now()),
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chessload",
			Subsystem: "stub",
			Name:      "requests_total",
			Help:      "Requests served by the stub chess API.",
		}, []string{"endpoint", "code"}),
	}
	s.registry.MustRegister(s.requests)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}).ServeHTTP)

	r.Group(func(r chi.Router) {
		r.Use(s.authorize)
		r.Use(s.simulate)
		r.Get("/user", s.handleUser)
		r.Get("/userRatings", s.handleUserRatings)
		r.Get("/matchResults", s.handleMatchResults)
		r.Get("/activeMatches", s.handleActiveMatches)
		r.Get("/friends", s.handleFriends)
	})
	s.router = r

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Registry returns the registry holding the stub's request counter.
func (s *Server) Registry() *prometheus.Registry {
	return s.registry
}

func (s *Server) authorize(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.opts.Token != "" && r.Header.Get("Authorization") != s.opts.Token {
			s.count(r, http.StatusUnauthorized)
			_ = writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) simulate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.opts.Latency > 0 {
			timer := time.NewTimer(s.opts.Latency)
			select {
			case <-r.Context().Done():
				timer.Stop()
				return
			case <-timer.C:
			}
		}

		if s.opts.ErrorRate > 0 && s.opts.Roll() < s.opts.ErrorRate {
			s.count(r, http.StatusInternalServerError)
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) count(r *http.Request, code int) {
	s.requests.WithLabelValues(r.URL.Path, strconv.Itoa(code)).Inc()
}

func (s *Server) handleUser(w http.ResponseWriter, r *http.Request) {
	s.reply(w, r, s.data.users[0])
}

func (s *Server) handleUserRatings(w http.ResponseWriter, r *http.Request) {
	s.reply(w, r, listResponse[userRating]{Items: s.data.ratings})
}

func (s *Server) handleMatchResults(w http.ResponseWriter, r *http.Request) {
	s.reply(w, r, listResponse[matchResult]{Items: s.data.results})
}

func (s *Server) handleActiveMatches(w http.ResponseWriter, r *http.Request) {
	s.reply(w, r, listResponse[activeMatch]{Items: s.data.active})
}

func (s *Server) handleFriends(w http.ResponseWriter, r *http.Request) {
	s.reply(w, r, listResponse[friendship]{Items: s.data.friends})
}

func (s *Server) reply(w http.ResponseWriter, r *http.Request, v any) {
	s.count(r, http.StatusOK)
	if err := writeJSON(w, http.StatusOK, v); err != nil {
		s.opts.Logger.WithError(err).WithField("path", r.URL.Path).Warn("write response")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}
