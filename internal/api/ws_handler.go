package api

import (
	"context"
	"net/http"
	"sync"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/itstheanurag/executioner/internal/admission"
	"github.com/itstheanurag/executioner/internal/executor"
	"github.com/itstheanurag/executioner/internal/languages"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// wsIncoming is one message from the caller, per spec.md §6's interactive
// channel grammar. Fields not relevant to Type are left zero.
type wsIncoming struct {
	Type        string `json:"type"`
	Language    string `json:"language"`
	Code        string `json:"code"`
	ExecutionID string `json:"executionId"`
	Data        string `json:"data"`
}

// wsOutgoing is one message to the caller. Type doubles as the stream
// discriminator for output frames: "output" for stdout, "stderr" for
// stderr, per spec.md §6.
type wsOutgoing struct {
	Type        string `json:"type"`
	ExecutionID string `json:"executionId,omitempty"`
	Data        string `json:"data,omitempty"`
	Status      string `json:"status,omitempty"`
	ExitCode    int    `json:"exitCode,omitempty"`
	Message     string `json:"message,omitempty"`
}

// WSHandler upgrades HTTP connections to WebSocket and runs the interactive
// protocol: at most one concurrent execution per connection.
type WSHandler struct {
	registry    *languages.Registry
	queue       *admission.Queue
	interactive *executor.Interactive
	logger      *zerolog.Logger
}

// NewWSHandler builds a WSHandler.
func NewWSHandler(registry *languages.Registry, queue *admission.Queue, interactive *executor.Interactive, logger *zerolog.Logger) *WSHandler {
	return &WSHandler{registry: registry, queue: queue, interactive: interactive, logger: logger}
}

func (h *WSHandler) Handle(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	var writeMu sync.Mutex
	writeJSON := func(v wsOutgoing) {
		writeMu.Lock()
		defer writeMu.Unlock()
		_ = conn.WriteJSON(v)
	}

	var active struct {
		mu      sync.Mutex
		busy    bool // reserved from Enqueue through onComplete, including time spent queued
		session *executor.Session
		cancel  context.CancelFunc
	}

	for {
		var msg wsIncoming
		if err := conn.ReadJSON(&msg); err != nil {
			active.mu.Lock()
			if active.cancel != nil {
				active.cancel()
			}
			active.mu.Unlock()
			return
		}

		switch msg.Type {
		case "execute-interactive":
			active.mu.Lock()
			if active.busy {
				active.mu.Unlock()
				writeJSON(wsOutgoing{Type: "error", Message: "an execution is already in progress on this channel"})
				continue
			}
			active.busy = true
			active.mu.Unlock()

			if msg.Language == "" || msg.Code == "" {
				active.mu.Lock()
				active.busy = false
				active.mu.Unlock()
				writeJSON(wsOutgoing{Type: "error", Message: "language and code are required"})
				writeJSON(wsOutgoing{Type: "execution-complete", Status: executor.StatusError})
				continue
			}
			if _, err := h.registry.Lookup(msg.Language); err != nil {
				active.mu.Lock()
				active.busy = false
				active.mu.Unlock()
				writeJSON(wsOutgoing{Type: "error", Message: "unknown language: " + msg.Language})
				writeJSON(wsOutgoing{Type: "execution-complete", Status: executor.StatusError})
				continue
			}
			if utf8.RuneCountInString(msg.Code) > maxSourceCodePoints {
				active.mu.Lock()
				active.busy = false
				active.mu.Unlock()
				writeJSON(wsOutgoing{Type: "error", Message: "source exceeds maximum size"})
				writeJSON(wsOutgoing{Type: "execution-complete", Status: executor.StatusError})
				continue
			}

			ctx, cancel := context.WithCancel(context.Background())
			done := make(chan struct{})
			events := &wsEvents{
				write: writeJSON,
				onComplete: func() {
					active.mu.Lock()
					active.busy = false
					active.session = nil
					active.cancel = nil
					active.mu.Unlock()
					cancel()
					close(done)
				},
			}

			active.mu.Lock()
			active.cancel = cancel
			active.mu.Unlock()

			language, code := msg.Language, msg.Code

			// Routed through the Admission Queue so this session counts
			// against the same inFlight cap as batch executions (spec.md
			// §8 property 1 holds across both modes). Enqueue never blocks
			// the read loop: it only appends and attempts a dispatch.
			h.queue.Enqueue(admission.Task{
				ID: language,
				Run: func() {
					session, err := h.interactive.Start(ctx, language, code, events)
					if err != nil {
						active.mu.Lock()
						active.busy = false
						active.cancel = nil
						active.mu.Unlock()
						cancel()
						writeJSON(wsOutgoing{Type: "error", Message: err.Error()})
						writeJSON(wsOutgoing{Type: "execution-complete", Status: executor.StatusError})
						return
					}
					active.mu.Lock()
					active.session = session
					active.mu.Unlock()
					// Run blocks until the session emits
					// execution-complete, which happens after the container
					// has exited or been stopped. The executor's cleanup
					// (stream close, container and work-dir removal) runs
					// after that, so it is not covered by this slot.
					<-done
				},
			})

		case "input":
			active.mu.Lock()
			session := active.session
			active.mu.Unlock()
			if session == nil {
				continue
			}
			session.Input(msg.ExecutionID, msg.Data)

		default:
			writeJSON(wsOutgoing{Type: "error", Message: "unrecognized message type"})
		}
	}
}

// wsEvents adapts executor.Events onto JSON writes, serialized through a
// single write mutex owned by the caller.
type wsEvents struct {
	write       func(wsOutgoing)
	onComplete  func()
	executionID string
}

func (e *wsEvents) Start(executionID string) {
	e.executionID = executionID
	e.write(wsOutgoing{Type: "execution-start", ExecutionID: executionID})
}

func (e *wsEvents) Output(data []byte, stderr bool) {
	kind := "output"
	if stderr {
		kind = "stderr"
	}
	e.write(wsOutgoing{Type: kind, Data: string(data)})
}

func (e *wsEvents) Complete(status string, exitCode int) {
	e.write(wsOutgoing{Type: "execution-complete", Status: status, ExitCode: exitCode, ExecutionID: e.executionID})
	if e.onComplete != nil {
		e.onComplete()
	}
}

func (e *wsEvents) Error(message string) {
	e.write(wsOutgoing{Type: "error", Message: message})
}
