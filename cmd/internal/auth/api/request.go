package authapi

import (
	"net"
	"net/http"
	"strings"

	"tekauth/cmd/internal/auth/session"
)

// MetadataFromRequest builds session metadata from the client's User-Agent
// and address. Forwarding headers are honored only when trustProxy is set.
func MetadataFromRequest(r *http.Request, trustProxy bool) session.Metadata {
	var ip string
	if addr := clientIP(r, trustProxy); addr != nil {
		ip = addr.String()
	}
	return session.Metadata{
		UserAgent: strings.TrimSpace(r.UserAgent()),
		IP:        ip,
	}
}

// BearerToken extracts the access token from "Authorization: Bearer <token>".
func BearerToken(r *http.Request) string {
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, tok, ok := strings.Cut(raw, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(tok)
}

func clientIP(r *http.Request, trustProxy bool) net.IP {
	if trustProxy {
		if ip := parseForwardedIP(r.Header.Get("X-Forwarded-For")); ip != nil {
			return ip
		}
		if ip := net.ParseIP(strings.TrimSpace(r.Header.Get("X-Real-IP"))); ip != nil {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil {
		if ip := net.ParseIP(host); ip != nil {
			return ip
		}
	}
	return nil
}

func parseForwardedIP(raw string) net.IP {
	for _, p := range strings.Split(raw, ",") {
		if ip := net.ParseIP(strings.TrimSpace(p)); ip != nil {
			return ip
		}
	}
	return nil
}
