package transporthttp

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"runtime"

	"athenascraper/internal/config"
	"athenascraper/internal/social"
)

const (
	serviceName    = "Athena Browser-Use Service"
	serviceVersion = "0.1.0"
)

type Server struct {
	scraper        social.Scraper
	configured     bool
	allowedOrigins []string
	logger         *slog.Logger
}

func NewServer(scraper social.Scraper, cfg config.Config) *Server {
	logger := scraper.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		scraper:        scraper,
		configured:     cfg.BrowserUseConfigured(),
		allowedOrigins: cfg.AllowedOrigins,
		logger:         logger,
	}
}

// Handler returns the routes wrapped in CORS and request logging.
func (s *Server) Handler() http.Handler {
	return withLogging(s.logger, withCORS(s.allowedOrigins, s.Routes()))
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.root)
	mux.HandleFunc("/health", s.health)
	mux.HandleFunc("/scrape/reddit", s.handleScrape(social.Reddit))
	mux.HandleFunc("/scrape/twitter", s.handleScrape(social.Twitter))
	mux.HandleFunc("/scrape/both", s.handleScrapeBoth)
	mux.HandleFunc(openAPIPath, s.openAPIDocument)
	mux.HandleFunc("/swagger", s.swaggerUI)
	mux.HandleFunc("/swagger/", s.swaggerUI)
	return mux
}

func (s *Server) root(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		s.writeError(w, http.StatusNotFound, "not found")
		return
	}
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{
		"service": serviceName,
		"status":  "running",
		"version": serviceVersion,
	})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	// go_version takes the place of the python_version field.
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":                 "healthy",
		"browser_use_configured": s.configured,
		"go_version":             runtime.Version(),
	})
}

func (s *Server) handleScrape(platform social.Platform) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !allowMethod(w, r, http.MethodPost) {
			return
		}
		req, ok := s.decodeRequest(w, r)
		if !ok {
			return
		}

		resp, err := s.scraper.Scrape(r.Context(), platform, req)
		if err != nil {
			s.logger.Error("scrape failed", slog.String("platform", string(platform)), slog.String("error", err.Error()))
			s.writeScrapeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, resp)
	}
}

func (s *Server) handleScrapeBoth(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	req, ok := s.decodeRequest(w, r)
	if !ok {
		return
	}

	s.writeJSON(w, http.StatusOK, s.scraper.ScrapeBoth(r.Context(), req))
}

func (s *Server) decodeRequest(w http.ResponseWriter, r *http.Request) (social.ScrapeRequest, bool) {
	var req social.ScrapeRequest
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
	if err := decoder.Decode(&req); err != nil {
		var missing *social.ValidationError
		if errors.As(err, &missing) {
			s.writeError(w, http.StatusBadRequest, missing.Error())
		} else {
			s.writeError(w, http.StatusBadRequest, "invalid payload")
		}
		return social.ScrapeRequest{}, false
	}
	return req, true
}

func (s *Server) writeScrapeError(w http.ResponseWriter, err error) {
	var invalid *social.ValidationError
	switch {
	case errors.As(err, &invalid):
		s.writeError(w, http.StatusBadRequest, invalid.Error())
	default:
		// configuration and upstream failures both surface as 500 with the cause
		s.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func allowMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method {
		return true
	}
	w.Header().Set("Allow", method)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusMethodNotAllowed)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": "method not allowed"})
	return false
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Debug("write response", slog.String("error", err.Error()))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
