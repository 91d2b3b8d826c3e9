// Package monitoring turns a running controller into an HTTP server that
// reports its progress.
package monitoring

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"github.com/san-kum/cosim/internal/dynamo"
	"github.com/san-kum/cosim/internal/interval"
	"github.com/san-kum/cosim/internal/protocol"
	"github.com/san-kum/cosim/internal/storage"
)

// Status is the snapshot served by /api/status.
type Status struct {
	Problem    string        `json:"problem"`
	Flag       protocol.Flag `json:"flag"`
	Start      float64       `json:"start"`
	Time       float64       `json:"time"`
	Width      float64       `json:"width"`
	Intervals  int           `json:"intervals"`
	Turns      int           `json:"turns"`
	Received   int           `json:"received"`
	Sent       int           `json:"sent"`
	Iterations int           `json:"iterations"`
	Residual   float64       `json:"residual"`
	Failed     bool          `json:"failed"`
	Uptime     float64       `json:"uptime_sec"`
}

// Monitor observes a controller through its hooks and serves what it saw.
type Monitor struct {
	mu      sync.Mutex
	status  Status
	value   dynamo.Value
	started time.Time

	records  *storage.Collector
	progress *ProgressBar

	server *http.Server
}

func NewMonitor(problem string) *Monitor {
	return &Monitor{
		status:  Status{Problem: problem},
		started: time.Now(),
		records: storage.NewCollector(),
	}
}

// TrackProgress shows how much of [start, end] the run has covered.
func (m *Monitor) TrackProgress(start, end float64) *ProgressBar {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.progress = NewProgressBar(m.status.Problem, start, end)
	return m.progress
}

func (m *Monitor) Func(ctx interval.HookCtx) {
	m.records.Func(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()

	switch ctx.Pos {
	case interval.HookPosMsgRecv:
		m.status.Received++
	case interval.HookPosMsgSend:
		m.status.Sent++
		if msg, ok := ctx.Item.(protocol.Message); ok && msg.Flag == protocol.FlagFailed {
			m.status.Failed = true
			m.status.Flag = protocol.FlagFailed
		}
	case interval.HookPosWidthAdjusted, interval.HookPosIntervalBegin, interval.HookPosIntervalResume:
		if st, ok := ctx.Item.(interval.State); ok {
			m.applyState(st)
		}
	case interval.HookPosIntervalOutcome:
		out, ok := ctx.Item.(interval.Outcome)
		if !ok {
			return
		}
		if st, ok := ctx.Detail.(interval.State); ok {
			m.applyState(st)
		}
		m.status.Turns++
		m.status.Flag = out.Flag
		m.status.Iterations = out.Iterations
		m.status.Residual = out.Residual
		m.value = out.Value.Clone()
		if out.Flag.Success() && m.progress != nil {
			m.progress.Advance(m.status.Time)
		}
	}
}

func (m *Monitor) applyState(st interval.State) {
	m.status.Start = st.Start
	m.status.Time = st.Time
	m.status.Width = st.Width
	m.status.Intervals = st.Intervals
}

func (m *Monitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.status
	s.Uptime = time.Since(m.started).Seconds()
	return s
}

// Router returns the API routes.
func (m *Monitor) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/api/status", m.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/api/value", m.handleValue).Methods(http.MethodGet)
	r.HandleFunc("/api/intervals", m.handleIntervals).Methods(http.MethodGet)
	r.HandleFunc("/api/intervals/{index:[0-9]+}", m.handleInterval).Methods(http.MethodGet)
	r.HandleFunc("/api/progress", m.handleProgress).Methods(http.MethodGet)
	return r
}

// StartServer listens on addr (":0" picks a free port) and serves in the
// background. It returns the bound address.
func (m *Monitor) StartServer(addr string) (net.Addr, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("monitoring: listen %s: %w", addr, err)
	}

	m.server = &http.Server{
		Handler:           m.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	fmt.Fprintf(os.Stderr, "Monitoring run with http://%s\n", listener.Addr())

	go func() {
		if err := m.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fmt.Fprintf(os.Stderr, "monitoring: %v\n", err)
		}
	}()
	return listener.Addr(), nil
}

func (m *Monitor) Shutdown(ctx context.Context) error {
	if m.server == nil {
		return nil
	}
	return m.server.Shutdown(ctx)
}

func (m *Monitor) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, m.Status())
}

func (m *Monitor) handleValue(w http.ResponseWriter, _ *http.Request) {
	m.mu.Lock()
	v := m.value.Clone()
	m.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"value": v})
}

// handleIntervals serves completed intervals; ?since=N skips the first N.
func (m *Monitor) handleIntervals(w http.ResponseWriter, r *http.Request) {
	records := m.records.Records()

	if s := r.URL.Query().Get("since"); s != "" {
		since, err := strconv.Atoi(s)
		if err != nil || since < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid since: " + s})
			return
		}
		if since > len(records) {
			since = len(records)
		}
		records = records[since:]
	}
	writeJSON(w, http.StatusOK, records)
}

func (m *Monitor) handleInterval(w http.ResponseWriter, r *http.Request) {
	index, _ := strconv.Atoi(mux.Vars(r)["index"])
	for _, rec := range m.records.Records() {
		if rec.Interval == index {
			writeJSON(w, http.StatusOK, rec)
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"error": "no such interval"})
}

func (m *Monitor) handleProgress(w http.ResponseWriter, _ *http.Request) {
	m.mu.Lock()
	bar := m.progress
	m.mu.Unlock()
	if bar == nil {
		writeJSON(w, http.StatusOK, []Progress{})
		return
	}
	writeJSON(w, http.StatusOK, []Progress{bar.Snapshot()})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "monitoring: encode response: %v\n", err)
	}
}
