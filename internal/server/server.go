// Package server serves the rendered report over loopback HTTP so the
// analyst can read it in a browser without the evidence leaving the host.
package server

import (
	"fmt"
	"net"
	"net/http"
	"sync"
)

// Server exposes the report on 127.0.0.1. It never binds a routable
// interface; the evidence stays local.
type Server struct {
	mu          sync.RWMutex
	html        string
	reportJSON  []byte
	archivePath string
	httpServer  *http.Server
}

// New creates a Server holding the rendered HTML and the machine-readable
// report document.
func New(html string, reportJSON []byte) *Server {
	return &Server{html: html, reportJSON: reportJSON}
}

// SetArchive makes the evidence archive downloadable at /evidence.zip.
func (s *Server) SetArchive(path string) {
	s.mu.Lock()
	s.archivePath = path
	s.mu.Unlock()
}

// Start begins listening on the given loopback port (0 = OS-assigned) and
// returns the bound "host:port".
func (s *Server) Start(port int) (string, error) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/report.json", s.handleJSON)
	mux.HandleFunc("/evidence.zip", s.handleArchive)
	mux.HandleFunc("/", s.handleReport)

	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return "", fmt.Errorf("listen: %w", err)
	}

	s.httpServer = &http.Server{Handler: mux}
	go s.httpServer.Serve(ln) //nolint:errcheck

	return ln.Addr().String(), nil
}

// Stop shuts the server down.
func (s *Server) Stop() {
	if s.httpServer != nil {
		s.httpServer.Close()
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprint(w, `{"status":"ok"}`)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	html := s.html
	s.mu.RUnlock()

	if html == "" {
		http.Error(w, "report not ready", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, html)
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	doc := s.reportJSON
	s.mu.RUnlock()

	if len(doc) == 0 {
		http.Error(w, "report not ready", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(doc)
}

func (s *Server) handleArchive(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	path := s.archivePath
	s.mu.RUnlock()

	if path == "" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Disposition", "attachment")
	http.ServeFile(w, r, path)
}
