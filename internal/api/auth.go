package api

import (
	"net/http"
	"strings"
)

// handleAuth answers the nginx mail-proxy authorization handshake. The
// relay puts the intended recipient in Auth-SMTP-To; the response
// headers tell it whether and where to relay the session. The HTTP
// status is always 200, only Auth-Status carries the verdict.
func (s *Server) handleAuth(w http.ResponseWriter, r *http.Request) {
	rcpt := r.Header.Get("Auth-SMTP-To")
	domain := recipientDomain(rcpt)
	if domain == "" || !s.domains[domain] {
		w.Header().Set("Auth-Status", "FORBIDDEN")
		w.Header().Set("Auth-Wait", "0")
		w.WriteHeader(http.StatusOK)
		s.log.Info("relay denied", "rcpt", rcpt)
		return
	}
	w.Header().Set("Auth-Status", "OK")
	w.Header().Set("Auth-Server", r.Host)
	w.Header().Set("Auth-Port", s.cfg.MailPort)
	w.WriteHeader(http.StatusOK)
}

// recipientDomain pulls the domain out of a header shaped like
// "Name <local@domain>": the text after the @, before any trailing >.
// Returns "" when no angle-bracketed address with a domain is present.
func recipientDomain(header string) string {
	_, rest, ok := strings.Cut(header, "<")
	if !ok {
		return ""
	}
	if addr, _, found := strings.Cut(rest, ">"); found {
		rest = addr
	}
	_, domain, ok := strings.Cut(rest, "@")
	if !ok {
		return ""
	}
	return domain
}
