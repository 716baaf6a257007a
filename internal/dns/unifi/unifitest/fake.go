// Package unifitest provides an in-memory UniFi Network integration API for
// tests.
package unifitest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
)

const apiPrefix = "/proxy/network/integration/v1"

// Site is a site as served by the fake.
type Site struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Policy is a DNS policy as stored and served by the fake.
type Policy struct {
	ID          string  `json:"id"`
	Type        string  `json:"type"`
	Domain      string  `json:"domain"`
	IPv4Address *string `json:"ipv4Address,omitempty"`
	TTLSeconds  int     `json:"ttlSeconds"`
	Enabled     bool    `json:"enabled"`
}

// Server is a minimal UniFi integration API. Listings honour limit and
// offset, so small page sizes exercise pagination.
type Server struct {
	*httptest.Server

	apiKey string

	mu       sync.Mutex
	sites    []Site
	policies map[string][]Policy
	nextID   int
	calls    []string
	failures map[string]int
}

// NewServer starts a fake serving sites and closes it when the test ends.
func NewServer(t *testing.T, apiKey string, sites ...Site) *Server {
	t.Helper()
	f := &Server{
		apiKey:   apiKey,
		sites:    sites,
		policies: map[string][]Policy{},
		failures: map[string]int{},
	}
	f.Server = httptest.NewServer(f)
	t.Cleanup(f.Close)
	return f
}

// Seed appends policies to a site without recording a call.
func (f *Server) Seed(siteID string, policies ...Policy) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.policies[siteID] = append(f.policies[siteID], policies...)
}

// Policies returns a copy of the policies stored for a site.
func (f *Server) Policies(siteID string) []Policy {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Policy(nil), f.policies[siteID]...)
}

// Calls returns "METHOD /path" for every request received, in order.
func (f *Server) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// Mutations returns the received POST, PUT and DELETE calls.
func (f *Server) Mutations() []string {
	var out []string
	for _, c := range f.Calls() {
		if !strings.HasPrefix(c, http.MethodGet+" ") {
			out = append(out, c)
		}
	}
	return out
}

// FailWith makes every request with the given method answer with status.
func (f *Server) FailWith(method string, status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[method] = status
}

func (f *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.calls = append(f.calls, r.Method+" "+r.URL.Path)
	status := f.failures[r.Method]
	f.mu.Unlock()

	if r.Header.Get("X-API-Key") != f.apiKey {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	if status != 0 {
		http.Error(w, `{"error":"injected failure"}`, status)
		return
	}

	path := strings.TrimPrefix(r.URL.Path, apiPrefix)
	if path == r.URL.Path {
		http.NotFound(w, r)
		return
	}
	parts := strings.Split(strings.Trim(path, "/"), "/")

	switch {
	case len(parts) == 1 && parts[0] == "sites" && r.Method == http.MethodGet:
		f.mu.Lock()
		sites := append([]Site(nil), f.sites...)
		f.mu.Unlock()
		writePage(w, r, sites)
	case len(parts) == 4 && parts[0] == "sites" && parts[2] == "dns" && parts[3] == "policies":
		f.handlePolicies(w, r, parts[1])
	case len(parts) == 5 && parts[0] == "sites" && parts[2] == "dns" && parts[3] == "policies":
		f.handlePolicy(w, r, parts[1], parts[4])
	default:
		http.NotFound(w, r)
	}
}

func (f *Server) handlePolicies(w http.ResponseWriter, r *http.Request, siteID string) {
	if !f.hasSite(siteID) {
		http.NotFound(w, r)
		return
	}

	switch r.Method {
	case http.MethodGet:
		writePage(w, r, f.Policies(siteID))
	case http.MethodPost:
		var p Policy
		if err := readJSON(r, &p); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		f.nextID++
		p.ID = fmt.Sprintf("policy-%d", f.nextID)
		f.policies[siteID] = append(f.policies[siteID], p)
		f.mu.Unlock()
		writeJSONStatus(w, http.StatusCreated, p)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (f *Server) handlePolicy(w http.ResponseWriter, r *http.Request, siteID, id string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	idx := -1
	for i, p := range f.policies[siteID] {
		if p.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
		return
	}

	switch r.Method {
	case http.MethodPut:
		var p Policy
		if err := readJSON(r, &p); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		p.ID = id
		f.policies[siteID][idx] = p
		writeJSON(w, p)
	case http.MethodDelete:
		stored := f.policies[siteID]
		f.policies[siteID] = append(stored[:idx:idx], stored[idx+1:]...)
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (f *Server) hasSite(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.sites {
		if s.ID == id {
			return true
		}
	}
	return false
}

func writePage[T any](w http.ResponseWriter, r *http.Request, items []T) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	total := len(items)
	if offset > total {
		offset = total
	}
	end := total
	if limit > 0 && offset+limit < total {
		end = offset + limit
	}
	data := append([]T{}, items[offset:end]...)
	writeJSON(w, map[string]any{
		"offset":     offset,
		"limit":      limit,
		"count":      len(data),
		"totalCount": total,
		"data":       data,
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	writeJSONStatus(w, http.StatusOK, v)
}

func writeJSONStatus(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func readJSON(r *http.Request, v any) error {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}
