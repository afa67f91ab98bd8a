/*Package monitor exposes the daemon's state over HTTP.

The bridge reports its runtime and sessions as JSON so the state of the
forwarder is inspectable without a debugger attached to the phone.  Routes
are collected in a RouteTable
and bound onto a chi router so the set is listable as data.
*/
package monitor

import (
	"encoding/json"
	"log"
	"net/http"
	"sort"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"

	"github.com/kaoqibutaitou/aoa-port-forward/accessory"
)

// StatusSource yields the runtime snapshot served by the monitor.  The
// handlers call it on every request and do not check it for nil; the CLI's
// source reports not-running with the configured port while no accessory
// is attached.
type StatusSource interface {
	Status() accessory.Status
}

// RouteTable maps URL patterns to handlers.
type RouteTable map[string]http.HandlerFunc

// Bind attaches every route to r.
func (rt RouteTable) Bind(r chi.Router) {
	for pattern, h := range rt {
		r.Get(pattern, h)
	}
}

// Endpoints lists the bound patterns, sorted.
func (rt RouteTable) Endpoints() []string {
	out := make([]string, 0, len(rt))
	for k := range rt {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Monitor serves the status surface for one bridge process.
type Monitor struct {
	src        StatusSource
	RouteTable RouteTable
}

// New builds the monitor over a status source.  src may change identity
// across reconnects; use a source that resolves the current runtime.
func New(src StatusSource) *Monitor {
	m := &Monitor{src: src}
	m.RouteTable = RouteTable{
		"/status":    m.status,
		"/sessions":  m.sessions,
		"/endpoints": m.endpoints,
	}
	return m
}

// Router returns a chi router with logging middleware and all routes bound.
func (m *Monitor) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	m.RouteTable.Bind(r)
	return r
}

func (m *Monitor) status(w http.ResponseWriter, r *http.Request) {
	reply(w, m.src.Status())
}

func (m *Monitor) sessions(w http.ResponseWriter, r *http.Request) {
	st := m.src.Status()
	ids := st.Sessions
	if ids == nil {
		ids = []uint16{}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	reply(w, ids)
}

func (m *Monitor) endpoints(w http.ResponseWriter, r *http.Request) {
	reply(w, m.RouteTable.Endpoints())
}

func reply(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("encoding monitor response: %v", err)
	}
}
