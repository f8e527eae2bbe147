// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package mcp

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/tombee/alou/internal/log"
	"github.com/tombee/alou/internal/registry"
)

// State is the lifecycle state of one service connection.
type State string

const (
	StateAbsent   State = "absent"
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateStopping State = "stopping"
)

const (
	DefaultConnectTimeout = 30 * time.Second
	DefaultStopTimeout    = 5 * time.Second

	// stderrTailLines bounds the output attached to a start failure.
	stderrTailLines = 50
)

// SupervisorConfig configures a Supervisor.
type SupervisorConfig struct {
	// Dialer spawns servers. Default: StdioDialer.
	Dialer Dialer

	// Records resolves ids for Call on a service that is not running.
	// Without it, such calls fail with NOT_RUNNING.
	Records RecordLookup

	// ConnectTimeout bounds spawn, handshake and the first tool listing.
	ConnectTimeout time.Duration

	// CallTimeout bounds each tool call.
	CallTimeout time.Duration

	// StopTimeout is how long Stop waits before killing the process.
	StopTimeout time.Duration

	// StderrLines is the stderr history kept per service.
	StderrLines int

	Logger *slog.Logger
}

// Status is a point-in-time view of one connection.
type Status struct {
	Name      string    `json:"name"`
	State     State     `json:"state"`
	Tools     int       `json:"tools"`
	StartedAt time.Time `json:"started_at,omitempty"`
	LastError string    `json:"last_error,omitempty"`
}

type conn struct {
	// op serializes Start and Stop for one name.
	op sync.Mutex

	state     State
	client    ClientProvider
	tools     []ToolDefinition
	startedAt time.Time
	lastErr   error

	// quit ends the exit monitor of the current client.
	quit chan struct{}
}

// Supervisor owns the connections to running tool servers. Each service id
// maps to at most one live process.
type Supervisor struct {
	dialer         Dialer
	records        RecordLookup
	connectTimeout time.Duration
	callTimeout    time.Duration
	stopTimeout    time.Duration

	logs   *LogCapture
	events *EventEmitter
	logger *slog.Logger
	tracer trace.Tracer

	mu       sync.Mutex
	conns    map[string]*conn
	shutdown bool
}

// NewSupervisor creates a Supervisor with no running services.
func NewSupervisor(cfg SupervisorConfig) *Supervisor {
	if cfg.Dialer == nil {
		cfg.Dialer = StdioDialer{}
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultCallTimeout
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = DefaultStopTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = log.WithComponent(logger, "supervisor")

	return &Supervisor{
		dialer:         cfg.Dialer,
		records:        cfg.Records,
		connectTimeout: cfg.ConnectTimeout,
		callTimeout:    cfg.CallTimeout,
		stopTimeout:    cfg.StopTimeout,
		logs:           NewLogCapture(cfg.StderrLines),
		events:         NewEventEmitter(logger),
		logger:         logger,
		tracer:         otel.Tracer("github.com/tombee/alou/internal/mcp"),
		conns:          make(map[string]*conn),
	}
}

// Events returns the emitter for lifecycle events.
func (s *Supervisor) Events() *EventEmitter {
	return s.events
}

func (s *Supervisor) slot(name string) (*conn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shutdown {
		return nil, ErrShuttingDown()
	}
	c, ok := s.conns[name]
	if !ok {
		c = &conn{state: StateAbsent}
		s.conns[name] = c
	}
	return c, nil
}

func (s *Supervisor) lookup(name string) *conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conns[name]
}

func (s *Supervisor) setState(c *conn, state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.state = state
}

// Start launches rec and waits until it answers a tool listing. Starting a
// running service is a no-op; one whose process has exited is launched
// again. On failure the service is left absent and the returned *MCPError
// carries the process's stderr.
//
// A started service is watched: when its process exits it moves to absent
// with a CONNECTION_CLOSED LastError.
func (s *Supervisor) Start(ctx context.Context, rec registry.ServiceRecord) error {
	if rec.IsPlaceholder() {
		return ErrNoCommand(rec.ID)
	}
	c, err := s.slot(rec.ID)
	if err != nil {
		return err
	}

	c.op.Lock()
	defer c.op.Unlock()

	s.mu.Lock()
	if c.state == StateRunning {
		client, since := c.client, c.startedAt
		s.mu.Unlock()
		if alive(client) {
			return nil
		}
		s.release(rec.ID, c, client, s.exitError(rec.ID, since))
		s.mu.Lock()
	}
	if s.shutdown {
		s.mu.Unlock()
		return ErrShuttingDown()
	}
	c.state = StateStarting
	s.mu.Unlock()

	ctx, span := s.tracer.Start(ctx, "supervisor.start",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("service.id", rec.ID),
			attribute.String("service.command", rec.Command),
		),
	)
	defer span.End()

	began := time.Now()
	client, tools, err := s.dial(ctx, rec, began)
	if err != nil {
		s.mu.Lock()
		c.state = StateAbsent
		c.lastErr = err
		s.mu.Unlock()

		startsTotal.WithLabelValues("failure").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.events.failed(rec.ID, err)
		return err
	}

	quit := make(chan struct{})
	s.mu.Lock()
	c.state = StateRunning
	c.client = client
	c.tools = tools
	c.startedAt = began
	c.lastErr = nil
	c.quit = quit
	s.mu.Unlock()

	if n, ok := client.(ExitNotifier); ok {
		go s.monitor(rec.ID, client, n, began, quit)
	}

	startsTotal.WithLabelValues("success").Inc()
	startDuration.Observe(time.Since(began).Seconds())
	runningConnections.Inc()
	span.SetAttributes(attribute.Int("service.tools", len(tools)))
	s.events.started(rec.ID, len(tools))
	return nil
}

func (s *Supervisor) dial(ctx context.Context, rec registry.ServiceRecord, began time.Time) (ClientProvider, []ToolDefinition, error) {
	dialCtx, cancel := context.WithTimeout(ctx, s.connectTimeout)
	defer cancel()

	cfg := DialConfigFor(rec)
	cfg.CallTimeout = s.callTimeout
	stderr := s.logs.Writer(rec.ID, "stderr")
	cfg.Stderr = stderr

	client, err := s.dialer.Dial(dialCtx, cfg)
	var tools []ToolDefinition
	if err == nil {
		tools, err = client.ListTools(dialCtx)
		if err != nil {
			s.terminate(client)
		}
	}
	if err == nil {
		return client, tools, nil
	}

	if errors.Is(dialCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil && !isClosedErr(err) {
		err = ErrTimeout("start "+rec.ID, s.connectTimeout, err)
	}
	mcpErr := classifyStartError(cfg, err)
	stderr.Flush()
	if out := s.logs.Tail(rec.ID, began, stderrTailLines); out != "" {
		mcpErr.Output = out
	}
	return nil, nil, mcpErr
}

// terminate closes client, killing the process if it does not exit
// within the stop timeout.
func (s *Supervisor) terminate(client ClientProvider) error {
	done := make(chan error, 1)
	go func() { done <- client.Close() }()

	select {
	case err := <-done:
		return err
	case <-time.After(s.stopTimeout):
	}

	if k, ok := client.(Killer); ok {
		return k.Kill()
	}
	return ErrTimeout("stop "+client.ServerName(), s.stopTimeout, context.DeadlineExceeded)
}

// Stop ends a running service. Stopping an absent service is a no-op.
func (s *Supervisor) Stop(ctx context.Context, name string) error {
	c := s.lookup(name)
	if c == nil {
		return nil
	}

	c.op.Lock()
	defer c.op.Unlock()

	s.mu.Lock()
	if c.state != StateRunning {
		s.mu.Unlock()
		return nil
	}
	c.state = StateStopping
	client := c.client
	c.stopMonitor()
	s.mu.Unlock()

	err := s.terminate(client)

	s.mu.Lock()
	c.state = StateAbsent
	c.client = nil
	c.tools = nil
	s.mu.Unlock()

	runningConnections.Dec()
	s.events.stopped(name)
	if err != nil {
		s.logger.Warn("service did not stop cleanly", slog.String(log.ServerKey, name), log.Error(err))
	}
	return err
}

// Restart stops name if running and starts rec.
func (s *Supervisor) Restart(ctx context.Context, rec registry.ServiceRecord) error {
	if err := s.Stop(ctx, rec.ID); err != nil {
		return err
	}
	return s.Start(ctx, rec)
}

// running returns the live client for name, starting it from the record
// lookup when it is absent.
func (s *Supervisor) running(ctx context.Context, name string) (ClientProvider, error) {
	s.mu.Lock()
	if c, ok := s.conns[name]; ok && c.state == StateRunning && alive(c.client) {
		client := c.client
		s.mu.Unlock()
		return client, nil
	}
	s.mu.Unlock()

	if s.records == nil {
		return nil, ErrServerNotRunning(name)
	}
	rec, ok := s.records.FindByID(name)
	if !ok {
		return nil, ErrServerNotFound(name)
	}
	if err := s.Start(ctx, rec); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.conns[name]; ok && c.state == StateRunning {
		return c.client, nil
	}
	return nil, ErrServerNotRunning(name)
}

// Call invokes tool on service name. A service that is not running is
// started first when a record lookup is configured. A call that finds the
// process gone returns CONNECTION_CLOSED and leaves the service absent.
func (s *Supervisor) Call(ctx context.Context, name, tool string, args map[string]any) (*ToolCallResponse, error) {
	ctx, span := s.tracer.Start(ctx, "supervisor.call",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("service.id", name),
			attribute.String("tool.name", tool),
		),
	)
	defer span.End()

	client, err := s.running(ctx, name)
	if err == nil {
		var resp *ToolCallResponse
		resp, err = client.CallTool(ctx, ToolCallRequest{Name: tool, Arguments: args})
		if err == nil {
			result := "success"
			if resp.IsError {
				result = "tool_error"
			}
			callsTotal.WithLabelValues(result).Inc()
			return resp, nil
		}
		if mcpErr := GetMCPError(err); (mcpErr != nil && mcpErr.Code == ErrorCodeConnectionClosed) || isClosedErr(err) {
			s.exited(name, client, err)
			if mcpErr == nil {
				err = ErrConnectionClosed(name, err)
			}
		}
	}

	callsTotal.WithLabelValues("error").Inc()
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return nil, err
}

// monitor waits for the process behind client to exit.
func (s *Supervisor) monitor(name string, client ClientProvider, n ExitNotifier, since time.Time, quit <-chan struct{}) {
	select {
	case <-n.Done():
		s.exited(name, client, s.exitError(name, since))
	case <-quit:
	}
}

// exitError describes an unexpected exit, with the stderr written since
// the process started.
func (s *Supervisor) exitError(name string, since time.Time) error {
	err := ErrConnectionClosed(name, errProcessExited)
	if out := s.logs.Tail(name, since, stderrTailLines); out != "" {
		err.Output = out
	}
	return err
}

func (c *conn) stopMonitor() {
	if c.quit != nil {
		close(c.quit)
		c.quit = nil
	}
}

// exited moves name to absent if client is still its live connection.
func (s *Supervisor) exited(name string, client ClientProvider, cause error) {
	c := s.lookup(name)
	if c == nil {
		return
	}
	c.op.Lock()
	defer c.op.Unlock()
	s.release(name, c, client, cause)
}

// release clears c if client is still its connection and closes client
// in the background. The caller holds c.op.
func (s *Supervisor) release(name string, c *conn, client ClientProvider, cause error) {
	s.mu.Lock()
	if client == nil || c.client != client {
		s.mu.Unlock()
		return
	}
	c.state = StateAbsent
	c.client = nil
	c.tools = nil
	c.lastErr = cause
	c.stopMonitor()
	s.mu.Unlock()

	runningConnections.Dec()
	s.events.exited(name, cause)
	go func() {
		if err := s.terminate(client); err != nil {
			s.logger.Debug("close after exit", slog.String(log.ServerKey, name), log.Error(err))
		}
	}()
}

// State returns the lifecycle state of name.
func (s *Supervisor) State(name string) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.conns[name]; ok {
		return c.state
	}
	return StateAbsent
}

// Status returns the status of name.
func (s *Supervisor) Status(name string) Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusLocked(name, s.conns[name])
}

func (s *Supervisor) statusLocked(name string, c *conn) Status {
	st := Status{Name: name, State: StateAbsent}
	if c == nil {
		return st
	}
	st.State = c.state
	st.Tools = len(c.tools)
	if c.state == StateRunning {
		st.StartedAt = c.startedAt
	}
	if c.lastErr != nil {
		st.LastError = c.lastErr.Error()
	}
	return st
}

// List returns the status of every service the supervisor has seen,
// sorted by name.
func (s *Supervisor) List() []Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Status, 0, len(s.conns))
	for name, c := range s.conns {
		out = append(out, s.statusLocked(name, c))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Tools returns the tools listed when name started.
func (s *Supervisor) Tools(name string) ([]ToolDefinition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conns[name]
	if !ok || c.state != StateRunning {
		return nil, ErrServerNotRunning(name)
	}
	out := make([]ToolDefinition, len(c.tools))
	copy(out, c.tools)
	return out, nil
}

// Logs returns up to n captured stderr lines for name.
func (s *Supervisor) Logs(name string, n int) []LogEntry {
	return s.logs.Logs(name, n, time.Time{})
}

// Shutdown stops every running service and rejects later starts.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.shutdown = true
	names := make([]string, 0, len(s.conns))
	for name, c := range s.conns {
		if c.state == StateRunning || c.state == StateStarting {
			names = append(names, name)
		}
	}
	s.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, name := range names {
		g.Go(func() error {
			if err := s.Stop(gctx, name); err != nil {
				s.logger.Error("failed to stop service", slog.String(log.ServerKey, name), log.Error(err))
				return err
			}
			return nil
		})
	}
	return g.Wait()
}
