package web

import (
	"bytes"
	"html/template"
	"net/http"

	"smarthq-bridge/internal/events"
)

// The bridge has no real UI; these two pages exist so the one-time
// browser login has somewhere to land.
var pageTmpl = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html>
<head><title>SmartHQ Bridge</title></head>
<body>
<h1>SmartHQ Bridge</h1>
<p>{{.Message}}</p>
{{if .ShowLogin}}<p><a href="/login">Connect SmartHQ account</a></p>{{end}}
</body>
</html>
`))

type pageData struct {
	Message   string
	ShowLogin bool
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	data := pageData{Message: "Connected to SmartHQ."}
	if !s.session.Authorized() {
		data = pageData{
			Message:   "Not connected. Log in with your SmartHQ account to expose your appliances.",
			ShowLogin: true,
		}
	}
	s.renderPage(w, http.StatusOK, data)
}

// handleLogin starts the bootstrap login by sending the browser to the
// vendor's authorization endpoint.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, s.session.LoginURL(), http.StatusFound)
}

// handleOAuthRedirect is the registered redirect URI. It trades the
// one-time code for a token pair and kicks off discovery.
func (s *Server) handleOAuthRedirect(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	if code == "" {
		s.logger.Warn("oauth redirect without code", "query", r.URL.RawQuery)
		s.renderPage(w, http.StatusBadRequest, pageData{
			Message:   "The login response carried no authorization code. Try again.",
			ShowLogin: true,
		})
		return
	}

	if err := s.session.ExchangeCode(r.Context(), code); err != nil {
		s.logger.Error("exchange authorization code", "err", err)
		s.renderPage(w, http.StatusBadGateway, pageData{
			Message:   "Login failed: " + err.Error(),
			ShowLogin: true,
		})
		return
	}

	s.bus.Emit(events.Event{Type: events.EventAuthComplete})
	s.renderPage(w, http.StatusOK, pageData{Message: "Account connected. Your appliances will appear shortly."})
}

// renderPage renders to a buffer first, so template errors don't
// corrupt the response.
func (s *Server) renderPage(w http.ResponseWriter, status int, data pageData) {
	var buf bytes.Buffer
	if err := pageTmpl.Execute(&buf, data); err != nil {
		s.logger.Error("render page", "err", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if _, err := w.Write(buf.Bytes()); err != nil {
		s.logger.Debug("write page response", "err", err)
	}
}
