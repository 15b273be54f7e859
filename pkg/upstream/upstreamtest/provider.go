// Package upstreamtest provides an in-process fake of the provider API for
// tests: both the thread/run resources and the single-shot endpoint.
package upstreamtest

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
)

// Identifiers handed out by the fake.
const (
	ThreadID = "thread_test"
	RunID    = "run_test"
)

// Call is one request the fake received.
type Call struct {
	Method string
	Path   string
	Query  string
	Header http.Header
	Body   []byte
}

// Route returns "METHOD /path", the form used by Fail.
func (c Call) Route() string {
	return c.Method + " " + c.Path
}

type failure struct {
	status int
	body   string
}

// Provider is a fake provider server.
type Provider struct {
	server *httptest.Server

	mu       sync.Mutex
	calls    []Call
	reply    string
	statuses []string
	failures map[string]failure
}

// NewProvider starts a fake that replies with reply on either protocol.
func NewProvider(reply string) *Provider {
	p := &Provider{
		reply:    reply,
		failures: map[string]failure{},
	}
	p.server = httptest.NewServer(http.HandlerFunc(p.handle))
	return p
}

// URL is the base URL to configure clients with.
func (p *Provider) URL() string {
	return p.server.URL
}

// Close stops the server.
func (p *Provider) Close() {
	p.server.Close()
}

// SetRunStatuses scripts the statuses returned by successive run polls.
// Once exhausted, polls report "completed".
func (p *Provider) SetRunStatuses(statuses ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.statuses = statuses
}

// Fail makes route ("POST /threads", ...) answer with status and body.
func (p *Provider) Fail(route string, status int, body string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failures[route] = failure{status: status, body: body}
}

// Calls returns the requests received so far.
func (p *Provider) Calls() []Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Call, len(p.calls))
	copy(out, p.calls)
	return out
}

// Routes returns the received requests as "METHOD /path".
func (p *Provider) Routes() []string {
	calls := p.Calls()
	out := make([]string, len(calls))
	for i, c := range calls {
		out[i] = c.Route()
	}
	return out
}

func (p *Provider) handle(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	call := Call{
		Method: r.Method,
		Path:   r.URL.Path,
		Query:  r.URL.RawQuery,
		Header: r.Header.Clone(),
		Body:   body,
	}

	p.mu.Lock()
	p.calls = append(p.calls, call)
	f, failing := p.failures[call.Route()]
	p.mu.Unlock()

	if failing {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(f.status)
		io.WriteString(w, f.body)
		return
	}

	threadPrefix := "/threads/" + ThreadID
	switch {
	case call.Route() == "POST /threads":
		writeJSON(w, map[string]any{"id": ThreadID, "object": "thread"})
	case call.Route() == "POST "+threadPrefix+"/messages":
		writeJSON(w, map[string]any{"id": "msg_user", "object": "thread.message"})
	case call.Route() == "POST "+threadPrefix+"/runs":
		writeJSON(w, map[string]any{"id": RunID, "object": "thread.run", "status": "queued"})
	case call.Route() == "GET "+threadPrefix+"/runs/"+RunID:
		writeJSON(w, map[string]any{"id": RunID, "object": "thread.run", "status": p.nextStatus()})
	case call.Route() == "GET "+threadPrefix+"/messages":
		writeJSON(w, map[string]any{"object": "list", "data": []any{
			map[string]any{"role": "assistant", "content": []any{
				map[string]any{"type": "text", "text": map[string]any{"value": p.reply, "annotations": []any{}}},
			}},
			map[string]any{"role": "user", "content": []any{
				map[string]any{"type": "text", "text": map[string]any{"value": "question"}},
			}},
		}})
	case call.Route() == "POST /responses":
		writeJSON(w, map[string]any{"id": "resp_test", "object": "response", "output": []any{
			map[string]any{"type": "message", "role": "assistant", "content": []any{
				map[string]any{"type": "output_text", "text": p.reply},
			}},
		}})
	default:
		w.WriteHeader(http.StatusNotFound)
		io.WriteString(w, `{"error":{"message":"no route `+strings.ReplaceAll(call.Route(), `"`, "")+`"}}`)
	}
}

func (p *Provider) nextStatus() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.statuses) == 0 {
		return "completed"
	}
	s := p.statuses[0]
	p.statuses = p.statuses[1:]
	return s
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
