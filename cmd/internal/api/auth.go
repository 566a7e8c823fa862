package api

import (
	"errors"
	"net"
	"net/http"
	"strings"

	"adboard/cmd/identity"
	"adboard/cmd/security/token"
)

// requireAuth resolves the bearer token and attaches the Principal to the request.
func (h *Handler) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		raw := bearerToken(r)
		if raw == "" {
			h.metrics.authEvent("resolve", "missing")
			writeUnauthorized(w)
			return
		}

		p, err := h.resolver.Resolve(ctx, raw)
		if err != nil {
			if identity.IsUnauthenticated(err) {
				h.metrics.authEvent("resolve", resolveOutcome(err))
				h.log.InfoContext(ctx, "auth.resolve.failed",
					"request_id", RequestIDFrom(ctx),
					"reason", resolveOutcome(err),
					"token_fp", token.Fingerprint(raw),
				)
				writeUnauthorized(w)
				return
			}
			h.metrics.authEvent("resolve", "error")
			h.writeServiceError(w, r, err)
			return
		}

		h.metrics.authEvent("resolve", "ok")
		next.ServeHTTP(w, r.WithContext(withPrincipal(ctx, p)))
	})
}

func resolveOutcome(err error) string {
	switch {
	case errors.Is(err, token.ErrExpired):
		return "expired"
	case errors.Is(err, token.ErrMalformed):
		return "malformed"
	case errors.Is(err, token.ErrInvalid):
		return "invalid"
	default:
		return "unknown_subject"
	}
}

func bearerToken(r *http.Request) string {
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	if raw == "" {
		return ""
	}
	parts := strings.SplitN(raw, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// clientIP returns the client address. Forwarding headers are honored only
// when trustProxy is set, since clients can spoof them otherwise.
func clientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if ip := parseForwardedIP(r.Header.Get("X-Forwarded-For")); ip != nil {
			return ip.String()
		}
		if ip := net.ParseIP(strings.TrimSpace(r.Header.Get("X-Real-IP"))); ip != nil {
			return ip.String()
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil {
		if ip := net.ParseIP(host); ip != nil {
			return ip.String()
		}
	}
	return strings.TrimSpace(r.RemoteAddr)
}

func parseForwardedIP(raw string) net.IP {
	if raw == "" {
		return nil
	}
	for _, p := range strings.Split(raw, ",") {
		if ip := net.ParseIP(strings.TrimSpace(p)); ip != nil {
			return ip
		}
	}
	return nil
}
