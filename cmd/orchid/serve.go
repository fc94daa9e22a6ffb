package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/orchidlang/orchid/pkg/interp"
	"github.com/orchidlang/orchid/pkg/parser"
	"github.com/orchidlang/orchid/pkg/tracelog"
	"github.com/orchidlang/orchid/pkg/value"
)

// ServeCmd starts an HTTP server exposing a preloaded script's agents
// (Callables with the agent keyword) as A2A AgentCards, calls those agents
// on demand, and exposes Prometheus metrics.
type ServeCmd struct {
	Script  string `arg:"" help:"Path to the .orch script to preload." type:"path"`
	Config  string `help:"Path to orchid.config.json." type:"path"`
	Host    string `help:"Host to bind." default:"0.0.0.0"`
	Port    int    `help:"Port to bind." default:"8080"`
	BaseURL string `help:"Externally visible base URL, used in AgentCard endpoints." default:""`
}

// AgentCard describes one of a loaded script's agents, per the A2A
// discovery protocol.
type AgentCard struct {
	AgentID     string         `json:"agentId"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Version     string         `json:"version,omitempty"`
	Endpoints   AgentEndpoints `json:"endpoints"`
}

// AgentEndpoints are the URLs for interacting with a single agent.
type AgentEndpoints struct {
	Task string `json:"task"`
}

type runRequest struct {
	Agent string                 `json:"agent,omitempty"`
	Args  map[string]interface{} `json:"args,omitempty"`
}

type runResponse struct {
	Result string   `json:"result"`
	Trace  []string `json:"trace,omitempty"`
	Error  string   `json:"error,omitempty"`
}

func (c *ServeCmd) Run() error {
	src, err := readScript(c.Script)
	if err != nil {
		return err
	}
	prog, err := parser.ParseFile(c.Script, src)
	if err != nil {
		return err
	}

	rt, err := buildInterpreter(scriptOpts{Script: c.Script, Config: c.Config})
	if err != nil {
		return err
	}
	defer rt.Close()

	if _, err := rt.Interp.Run(context.Background(), prog); err != nil {
		return fmt.Errorf("failed to load script %s: %w", c.Script, err)
	}

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/v1/agents", c.listAgentsHandler(rt.Interp))
	r.Post("/v1/run", c.runHandler(rt.Interp, rt.Trace))
	r.Handle("/metrics", rt.Metrics.Handler())

	addr := fmt.Sprintf("%s:%d", c.Host, c.Port)
	srv := &http.Server{Addr: addr, Handler: r}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func (c *ServeCmd) listAgentsHandler(it *interp.Interpreter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		endpointBase := c.BaseURL
		cards := []AgentCard{}
		for _, name := range it.Agents() {
			cards = append(cards, AgentCard{
				AgentID:     name,
				Name:        name,
				Description: "Orchid agent " + name,
				Endpoints:   AgentEndpoints{Task: endpointBase + "/v1/run"},
			})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"agents": cards, "total": len(cards)})
	}
}

func (c *ServeCmd) runHandler(it *interp.Interpreter, sink *tracelog.Sink) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req runRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
			return
		}
		if req.Agent == "" {
			http.Error(w, "agent is required", http.StatusBadRequest)
			return
		}

		kwargs := make(map[string]value.Value, len(req.Args))
		for k, v := range req.Args {
			kwargs[k] = rawToValue(v)
		}

		result, err := it.CallAgent(r.Context(), req.Agent, kwargs)
		resp := runResponse{Trace: sink.Recent(64)}
		if err != nil {
			resp.Error = err.Error()
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnprocessableEntity)
			_ = json.NewEncoder(w).Encode(resp)
			return
		}
		resp.Result = result.String()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}
}

func rawToValue(v interface{}) value.Value {
	switch t := v.(type) {
	case nil:
		return value.Null
	case string:
		return value.String(t)
	case float64:
		return value.Number(t)
	case bool:
		return value.Boolean(t)
	case []interface{}:
		items := make([]value.Value, len(t))
		for i, e := range t {
			items[i] = rawToValue(e)
		}
		return value.List(items)
	case map[string]interface{}:
		keys := make([]string, 0, len(t))
		vals := make(map[string]value.Value, len(t))
		for k, e := range t {
			keys = append(keys, k)
			vals[k] = rawToValue(e)
		}
		return value.DictFrom(keys, vals)
	default:
		return value.String(fmt.Sprintf("%v", t))
	}
}
