// Package shell serves the browser front end: live preview, transcript log,
// a single trigger and the Idle/Busy status.
package shell

import (
	"context"
	_ "embed"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rbright/glimpse/internal/capture"
	"github.com/rbright/glimpse/internal/fsm"
	"github.com/rbright/glimpse/internal/pipeline"
)

//go:embed index.html
var indexHTML []byte

const (
	DefaultRedraw        = 50 * time.Millisecond
	DefaultPreviewWidth  = 640
	DefaultPreviewHeight = 480

	eventBuffer  = 256
	clientBuffer = 64
	writeTimeout = 5 * time.Second
	lineWait     = time.Second
)

// Controller is the pipeline surface the shell drives.
type Controller interface {
	Trigger(source string) (pipeline.Request, error)
	State() fsm.State
}

// Frames supplies the live preview.
type Frames interface {
	CurrentFrame() (*capture.Snapshot, bool)
}

type Options struct {
	Redraw        time.Duration
	PreviewWidth  int
	PreviewHeight int
	OnQuit        func()
	Logger        *slog.Logger
}

// Shell owns the transcript log and status; both are mutated only by the
// event loop in Run.
type Shell struct {
	ctrl     Controller
	frames   Frames
	opts     Options
	logger   *slog.Logger
	events   chan event
	upgrader websocket.Upgrader
	mux      *http.ServeMux
}

type eventKind int

const (
	evLine eventKind = iota
	evState
	evAccepted
	evJoin
	evLeave
)

type event struct {
	kind   eventKind
	line   pipeline.Line
	state  fsm.State
	client *client
}

func New(ctrl Controller, frames Frames, opts Options) *Shell {
	if opts.Redraw <= 0 {
		opts.Redraw = DefaultRedraw
	}
	if opts.PreviewWidth <= 0 {
		opts.PreviewWidth = DefaultPreviewWidth
	}
	if opts.PreviewHeight <= 0 {
		opts.PreviewHeight = DefaultPreviewHeight
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}

	s := &Shell{
		ctrl:   ctrl,
		frames: frames,
		opts:   opts,
		logger: opts.Logger,
		events: make(chan event, eventBuffer),
		upgrader: websocket.Upgrader{
			CheckOrigin: sameHost,
		},
		mux: http.NewServeMux(),
	}
	s.mux.HandleFunc("GET /{$}", s.serveIndex)
	s.mux.HandleFunc("GET /ws", s.serveWS)
	return s
}

// Handler returns the HTTP handler for the page and its websocket.
func (s *Shell) Handler() http.Handler {
	return s.mux
}

// Accepted implements pipeline.Observer.
func (s *Shell) Accepted(pipeline.Request) {
	s.post(event{kind: evAccepted})
}

// StateChanged implements pipeline.Observer.
func (s *Shell) StateChanged(state fsm.State) {
	s.post(event{kind: evState, state: state})
}

// Appended implements pipeline.Observer.
func (s *Shell) Appended(line pipeline.Line) {
	s.post(event{kind: evLine, line: line})
}

// post hands an event to Run. Transcript lines wait up to lineWait for room
// since the log is append-only; status and membership events are dropped.
func (s *Shell) post(ev event) {
	select {
	case s.events <- ev:
		return
	default:
	}
	if ev.kind == evLine {
		timer := time.NewTimer(lineWait)
		defer timer.Stop()
		select {
		case s.events <- ev:
			return
		case <-timer.C:
		}
	}
	s.logger.Warn("shell event dropped; loop is behind", "kind", int(ev.kind))
}

// Serve runs the HTTP server on listener until ctx is cancelled.
func (s *Shell) Serve(ctx context.Context, listener net.Listener) error {
	srv := &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(listener) }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// Run is the single UI event loop. It returns when ctx is cancelled, after
// stopping the redraw timer and disconnecting every client.
func (s *Shell) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.opts.Redraw)
	defer ticker.Stop()

	var (
		lines   []wireLine
		state   = fsm.StateIdle
		pending bool
		clients = make(map[*client]struct{})
		lastID  string
	)
	if s.ctrl != nil {
		state = s.ctrl.State()
	}

	broadcast := func(msg message) {
		data, err := json.Marshal(msg)
		if err != nil {
			s.logger.Error("encode shell message", "error", err.Error())
			return
		}
		for c := range clients {
			if !c.offer(data) {
				s.logger.Warn("shell client too slow; disconnecting")
				delete(clients, c)
				c.close()
			}
		}
	}

	defer func() {
		for c := range clients {
			c.close()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev := <-s.events:
			switch ev.kind {
			case evLine:
				wl := toWire(ev.line)
				lines = append(lines, wl)
				broadcast(message{Type: "line", Line: &wl})
			case evAccepted:
				pending = true
				st := toStatus(state, pending)
				broadcast(message{Type: "status", Status: &st})
			case evState:
				state = ev.state
				pending = false
				st := toStatus(state, pending)
				broadcast(message{Type: "status", Status: &st})
			case evJoin:
				clients[ev.client] = struct{}{}
				st := toStatus(state, pending)
				hello := message{Type: "hello", Lines: append([]wireLine(nil), lines...), Status: &st}
				if data, err := json.Marshal(hello); err == nil && !ev.client.offer(data) {
					delete(clients, ev.client)
					ev.client.close()
				}
				lastID = ""
			case evLeave:
				if _, ok := clients[ev.client]; ok {
					delete(clients, ev.client)
					ev.client.close()
				}
			}

		case <-ticker.C:
			if len(clients) == 0 || s.frames == nil {
				continue
			}
			snap, ok := s.frames.CurrentFrame()
			if !ok || snap.ID == lastID {
				continue
			}
			preview, err := snap.Preview(s.opts.PreviewWidth, s.opts.PreviewHeight)
			if err != nil {
				s.logger.Debug("preview encode failed", "error", err.Error())
				continue
			}
			lastID = snap.ID
			broadcast(message{Type: "frame", Frame: base64.StdEncoding.EncodeToString(preview)})
		}
	}
}

func (s *Shell) serveIndex(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(indexHTML)
}

func (s *Shell) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err.Error())
		return
	}

	c := newClient(conn)
	go c.writeLoop()
	s.post(event{kind: evJoin, client: c})

	defer s.post(event{kind: evLeave, client: c})
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !isClosed(err) {
				s.logger.Debug("websocket read failed", "error", err.Error())
			}
			return
		}
		var act action
		if err := json.Unmarshal(data, &act); err != nil {
			s.logger.Debug("bad shell action", "error", err.Error())
			continue
		}
		s.handleAction(act)
	}
}

func (s *Shell) handleAction(act action) {
	switch act.Action {
	case "trigger":
		if s.ctrl == nil {
			return
		}
		if _, err := s.ctrl.Trigger("shell"); err != nil && !errors.Is(err, pipeline.ErrBusy) {
			s.logger.Warn("trigger rejected", "error", err.Error())
		}
	case "quit":
		s.logger.Info("quit requested from shell")
		if s.opts.OnQuit != nil {
			s.opts.OnQuit()
		}
	default:
		s.logger.Debug("unknown shell action", "action", act.Action)
	}
}

func sameHost(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	return origin == "http://"+r.Host || origin == "https://"+r.Host
}

func isClosed(err error) bool {
	return websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure)
}
