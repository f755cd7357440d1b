package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"realtyportal/internal/config"
	"realtyportal/internal/domain"
	apperrors "realtyportal/pkg/errors"
)

type ctxKey int

const (
	userKey ctxKey = iota + 1
	investorKey
)

// userFrom returns the authenticated back-office user
func userFrom(ctx context.Context) *domain.User {
	u, _ := ctx.Value(userKey).(*domain.User)
	return u
}

// investorFrom returns the authenticated investor
func investorFrom(ctx context.Context) *domain.Investor {
	inv, _ := ctx.Value(investorKey).(*domain.Investor)
	return inv
}

// bearerToken extracts the token from an "Authorization: Bearer" header
func bearerToken(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", apperrors.New(apperrors.ErrCodeUnauthorized, "authorization header required")
	}

	// Check Bearer token format
	parts := strings.Fields(authHeader)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", apperrors.New(apperrors.ErrCodeUnauthorized, "invalid authorization header format")
	}
	return parts[1], nil
}

// admin requires a back-office token holding scope
func (s *Server) admin(scope string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, err := bearerToken(r)
		if err != nil {
			writeError(r.Context(), w, err)
			return
		}
		user, err := s.auth.Authenticate(r.Context(), token, scope)
		if err != nil {
			writeError(r.Context(), w, err)
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), userKey, user)))
	}
}

// investor requires an identity provider session token. The investor is
// registered on first sight; inactive and suspended investors are refused.
func (s *Server) investor(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.identity == nil || !s.identity.Enabled() {
			writeError(r.Context(), w, apperrors.New(apperrors.ErrCodeUnauthorized, "investor sign-in is not configured"))
			return
		}
		token, err := bearerToken(r)
		if err != nil {
			writeError(r.Context(), w, err)
			return
		}
		claims, err := s.identity.Verify(token)
		if err != nil {
			writeError(r.Context(), w, apperrors.New(apperrors.ErrCodeUnauthorized, "invalid or expired token"))
			return
		}
		inv, err := s.investors.ResolveIdentity(r.Context(), claims)
		if err != nil {
			writeError(r.Context(), w, err)
			return
		}
		switch inv.Status {
		case domain.InvestorStatusInactive, domain.InvestorStatusSuspended:
			writeError(r.Context(), w, apperrors.New(apperrors.ErrCodeForbidden, "investor account is "+inv.Status))
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), investorKey, inv)))
	}
}

// clientIP returns the peer address. Forwarding headers are only honoured
// when the peer is a trusted proxy; the client is then the right-most hop that
// is not itself a trusted proxy.
func (s *Server) clientIP(r *http.Request) string {
	peer := r.RemoteAddr
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		peer = host
	}
	if !s.trustedProxy(peer) {
		return peer
	}
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		hops := strings.Split(fwd, ",")
		for i := len(hops) - 1; i >= 0; i-- {
			hop := strings.TrimSpace(hops[i])
			if hop == "" {
				continue
			}
			if i == 0 || !s.trustedProxy(hop) {
				return hop
			}
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	return peer
}

func (s *Server) trustedProxy(ip string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range s.proxies {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// securityHeaders adds security headers to responses
func securityHeaders(handler http.Handler, cfg *config.Config) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Permissions-Policy", "geolocation=(), microphone=(), camera=()")

		// HSTS (only in production with HTTPS)
		if !cfg.App.Debug && r.TLS != nil {
			w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		handler.ServeHTTP(w, r)
	})
}

// cors configures CORS based on environment
func cors(handler http.Handler, cfg *config.Config) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")

		// In production, validate against allowed origins
		if !cfg.App.Debug && len(cfg.CORS.AllowedOrigins) > 0 && cfg.CORS.AllowedOrigins[0] != "*" {
			allowed := false
			for _, allowedOrigin := range cfg.CORS.AllowedOrigins {
				if origin == allowedOrigin {
					allowed = true
					break
				}
			}
			if !allowed && origin != "" {
				w.WriteHeader(http.StatusForbidden)
				return
			}
		}

		if origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Add("Vary", "Origin")
		} else if cfg.App.Debug {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		}

		w.Header().Set("Access-Control-Allow-Methods", strings.Join(cfg.CORS.AllowedMethods, ", "))
		w.Header().Set("Access-Control-Allow-Headers", strings.Join(cfg.CORS.AllowedHeaders, ", "))
		w.Header().Set("Access-Control-Expose-Headers", "Content-Type, Content-Disposition, X-Request-ID")
		w.Header().Set("Access-Control-Max-Age", fmt.Sprintf("%d", cfg.CORS.MaxAge))
		w.Header().Set("Access-Control-Allow-Credentials", "true")

		// Handle preflight requests
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		handler.ServeHTTP(w, r)
	})
}

// statusWriter wraps http.ResponseWriter to capture status code
type statusWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *statusWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// requestLogging logs every request except health checks
func (s *Server) requestLogging(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" || r.URL.Path == "/metrics" {
			handler.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, statusCode: http.StatusOK}
		handler.ServeHTTP(wrapped, r)

		entry := s.log.WithFields(logrus.Fields{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      wrapped.statusCode,
			"duration_ms": time.Since(start).Milliseconds(),
			"client_ip":   s.clientIP(r),
			"request_id":  requestID(r.Context()),
		})
		if wrapped.statusCode >= http.StatusInternalServerError {
			entry.Warn("Request completed with error")
		} else {
			entry.Info("Request completed")
		}
	})
}
