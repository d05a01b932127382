// Package adminapi exposes a small read-only HTTP introspection surface
// over the zone cache: health, zone listing/detail, and DNSKEY lookup
// at a zone's apex. It carries its own session auth so it can be bound
// to a separate port from the DNS listener without fronting it with
// anything else.
package adminapi

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/golang-jwt/jwt/v5"
	"github.com/miekg/dns"
	"golang.org/x/crypto/bcrypt"

	"github.com/dnsforge/authdns/pkg/dnssec"
	"github.com/dnsforge/authdns/pkg/zonestore"
)

const cookieName = "authdns_session"

// Config controls authentication and CORS for the admin surface.
type Config struct {
	// ListenAddress is the address the HTTP server binds, e.g. ":8053".
	ListenAddress string

	// Username is the single admin account's login name.
	Username string

	// PasswordHash is a bcrypt hash of the admin password. When empty,
	// NewServer generates one from a random password and logs nothing
	// (the caller is expected to set this from configuration in any
	// deployment that exposes the surface beyond localhost).
	PasswordHash string

	// JWTSecret signs session tokens. When empty, NewServer generates a
	// random secret, which means sessions won't survive a restart.
	JWTSecret []byte

	// TokenExpiry bounds how long a session cookie remains valid.
	TokenExpiry time.Duration

	// CORSOrigins lists origins allowed to call the surface from a
	// browser.
	CORSOrigins []string
}

// DefaultConfig returns a one-hour session lifetime and no CORS origins.
func DefaultConfig(listenAddress string) Config {
	return Config{
		ListenAddress: listenAddress,
		Username:      "admin",
		TokenExpiry:   time.Hour,
	}
}

// Server is the admin introspection HTTP server.
type Server struct {
	config       Config
	cache        zonestore.Cache
	hook         dnssec.Hook
	jwtSecret    []byte
	passwordHash string
	startTime    time.Time
	httpServer   *http.Server
}

// NewServer builds a Server over cache (for zone introspection) and
// hook (for DNSKEY lookup; may be dnssec.NoopHook{}).
func NewServer(config Config, cache zonestore.Cache, hook dnssec.Hook) (*Server, error) {
	s := &Server{
		config:    config,
		cache:     cache,
		hook:      hook,
		startTime: time.Now(),
	}

	if len(config.JWTSecret) > 0 {
		s.jwtSecret = config.JWTSecret
	} else {
		secret := make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return nil, err
		}
		s.jwtSecret = secret
	}

	if config.PasswordHash != "" {
		s.passwordHash = config.PasswordHash
	} else {
		hash, err := bcrypt.GenerateFromPassword(randomBytes(16), bcrypt.DefaultCost)
		if err != nil {
			return nil, err
		}
		s.passwordHash = string(hash)
	}

	return s, nil
}

func randomBytes(n int) []byte {
	b := make([]byte, n)
	_, _ = rand.Read(b)

	return b
}

// Start runs the HTTP server until it is shut down or fails to bind.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:              s.config.ListenAddress,
		Handler:           s.router(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}

	return s.httpServer.Shutdown(ctx)
}

func (s *Server) router() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.config.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/api/health", s.handleHealth)
	r.Post("/api/auth/login", s.handleLogin)
	r.Post("/api/auth/logout", s.handleLogout)

	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.Get("/api/zones", s.handleListZones)
		r.Get("/api/zones/{origin}", s.handleZoneDetail)
		r.Get("/api/zones/{origin}/dnskey", s.handleZoneDNSKey)
	})

	return r
}

type sessionClaims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(cookieName)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "not authenticated")
			return
		}

		token, err := jwt.ParseWithClaims(cookie.Value, &sessionClaims{}, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, errors.New("unexpected signing method")
			}

			return s.jwtSecret, nil
		})
		if err != nil || !token.Valid {
			writeError(w, http.StatusUnauthorized, "invalid session")
			return
		}

		next.ServeHTTP(w, r)
	})
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"uptime": time.Since(s.startTime).String(),
		"zones":  len(s.cache.Zones()),
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Username != s.config.Username {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(s.passwordHash), []byte(req.Password)); err != nil {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	expiry := s.config.TokenExpiry
	if expiry <= 0 {
		expiry = time.Hour
	}

	claims := sessionClaims{
		Username: req.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiry)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.jwtSecret)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create session")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    signed,
		Path:     "/",
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   int(expiry.Seconds()),
	})

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

type zoneSummary struct {
	Origin      string `json:"origin"`
	RecordCount int    `json:"recordCount"`
	Serial      uint32 `json:"serial"`
}

func (s *Server) handleListZones(w http.ResponseWriter, r *http.Request) {
	origins := s.cache.Zones()

	summaries := make([]zoneSummary, 0, len(origins))
	for _, origin := range origins {
		zone, err := s.cache.ZoneWithRecords(origin)
		if err != nil {
			continue
		}

		summaries = append(summaries, zoneSummaryOf(zone))
	}

	writeJSON(w, http.StatusOK, map[string]any{"zones": summaries})
}

func zoneSummaryOf(zone *zonestore.Zone) zoneSummary {
	summary := zoneSummary{Origin: zone.Origin, RecordCount: zone.RecordCount()}
	if soa := zone.SOA(); soa != nil {
		summary.Serial = soa.Serial
	}

	return summary
}

type zoneDetail struct {
	zoneSummary
	Names []string `json:"names"`
}

func (s *Server) handleZoneDetail(w http.ResponseWriter, r *http.Request) {
	origin := chi.URLParam(r, "origin")

	zone, err := s.cache.ZoneWithRecords(dns.Fqdn(origin))
	if err != nil {
		writeError(w, http.StatusNotFound, "zone not found")
		return
	}

	writeJSON(w, http.StatusOK, zoneDetail{
		zoneSummary: zoneSummaryOf(zone),
		Names:       zone.AllNames(),
	})
}

func (s *Server) handleZoneDNSKey(w http.ResponseWriter, r *http.Request) {
	origin := chi.URLParam(r, "origin")

	zone, err := s.cache.ZoneWithRecords(dns.Fqdn(origin))
	if err != nil {
		writeError(w, http.StatusNotFound, "zone not found")
		return
	}

	if !s.hook.Enabled(zone.SigningZone) {
		writeJSON(w, http.StatusOK, map[string]any{"signed": false, "keys": []string{}})
		return
	}

	keys := s.hook.DNSKeyRRset(zone.SigningZone)
	rendered := make([]string, 0, len(keys))
	for _, rr := range keys {
		rendered = append(rendered, rr.String())
	}

	writeJSON(w, http.StatusOK, map[string]any{"signed": true, "keys": rendered})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
