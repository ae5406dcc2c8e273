// Package httpapi exposes a conversation over HTTP: a JSON API for submitting
// and observing, and a small HTML page that renders the current snapshot.
package httpapi

import (
	"encoding/json"
	"errors"
	"html/template"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"time"

	"github.com/comigor/chatwidget-go/internal/conversation"
	"github.com/comigor/chatwidget-go/internal/format"
	"github.com/comigor/chatwidget-go/internal/history"
	"github.com/comigor/chatwidget-go/internal/logger"
)

const maxRequestBody = 1 << 20

// Server wraps the HTTP handlers for one conversation.
type Server struct {
	store     *conversation.Store
	formatter format.Formatter
	logger    *slog.Logger
}

// New creates a new Server instance.
func New(store *conversation.Store, formatter format.Formatter, log *slog.Logger) *Server {
	if log == nil {
		log = logger.L
	}
	return &Server{store: store, formatter: formatter, logger: log}
}

// Register wires the routes onto the supplied mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/messages", s.submit)
	mux.HandleFunc("GET /api/conversation", s.snapshot)
	mux.HandleFunc("GET /{$}", s.page)
}

// Handler returns a mux with every route registered.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.Register(mux)
	return mux
}

// renderedMessage is a stored message plus its display markup.
type renderedMessage struct {
	history.Message
	HTML template.HTML `json:"html"`
}

type snapshotResponse struct {
	ConversationID string            `json:"conversation_id"`
	Messages       []renderedMessage `json:"messages"`
	Pending        bool              `json:"pending"`
	LastError      string            `json:"last_error,omitempty"`
}

type submitResponse struct {
	Outcome string           `json:"outcome"`
	Reply   *renderedMessage `json:"reply,omitempty"`
	Error   string           `json:"error,omitempty"`
}

func (s *Server) render(msg history.Message) renderedMessage {
	// Formatter output is escaped unless raw HTML was explicitly allowed.
	return renderedMessage{Message: msg, HTML: template.HTML(s.formatter.Format(msg.Text))}
}

func (s *Server) buildSnapshot() snapshotResponse {
	snap := s.store.Snapshot()
	out := snapshotResponse{
		ConversationID: snap.ConversationID,
		Messages:       make([]renderedMessage, 0, len(snap.Messages)),
		Pending:        snap.Pending,
		LastError:      snap.LastError,
	}
	for _, m := range snap.Messages {
		out.Messages = append(out.Messages, s.render(m))
	}
	return out
}

func (s *Server) submit(w http.ResponseWriter, r *http.Request) {
	if isFormPost(r) {
		s.submitForm(w, r)
		return
	}

	var payload struct {
		Text string `json:"text"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	start := time.Now()
	res := s.store.Submit(r.Context(), payload.Text)
	s.logger.Info("submit handled", "outcome", res.Outcome.String(), "duration", time.Since(start))

	resp := submitResponse{Outcome: res.Outcome.String(), Error: res.Error}
	switch res.Outcome {
	case conversation.OutcomeReplied:
		rendered := s.render(*res.Reply)
		resp.Reply = &rendered
		writeJSON(w, http.StatusOK, resp)
	case conversation.OutcomeEmptyInput:
		resp.Error = "text is required"
		writeJSON(w, http.StatusBadRequest, resp)
	case conversation.OutcomeAlreadyPending:
		resp.Error = "a request is already in flight"
		writeJSON(w, http.StatusConflict, resp)
	default:
		writeJSON(w, http.StatusBadGateway, resp)
	}
}

// submitForm serves the page's plain form post (no JavaScript): it waits for the
// request to settle and sends the browser back to the rendered page.
func (s *Server) submitForm(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	start := time.Now()
	res := s.store.Submit(r.Context(), r.PostFormValue("text"))
	s.logger.Info("form submit handled", "outcome", res.Outcome.String(), "duration", time.Since(start))
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func isFormPost(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "application/x-www-form-urlencoded"
}

func (s *Server) snapshot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.buildSnapshot())
}

var pageTmpl = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>Chat</title></head>
<body>
<div class="chat-box">
{{- range .Messages}}
<div class="msg {{.Role}}" id="m-{{.ID}}">{{.HTML}}</div>
{{- end}}
{{- if .Pending}}
<div class="msg assistant typing">Typing...</div>
{{- end}}
</div>
<form method="post" action="/api/messages" onsubmit="send(event)">
<input type="text" name="text" placeholder="Ask something..." autocomplete="off"{{if .Pending}} disabled{{end}}>
<button type="submit"{{if .Pending}} disabled{{end}}>Send</button>
</form>
{{- if .LastError}}
<p class="error">Error: {{.LastError}}</p>
{{- end}}
<script>
const rendered = {{len .Messages}};

// poll re-reads the snapshot until done() holds, then reloads the page.
function poll(done) {
  fetch("/api/conversation")
    .then(r => r.json())
    .then(snap => done(snap) ? location.reload() : setTimeout(() => poll(done), 500))
    .catch(() => setTimeout(() => poll(done), 1000));
}

function send(e) {
  e.preventDefault();
  const input = e.target.elements.text;
  const text = input.value;
  input.value = "";
  fetch("/api/messages", {method: "POST", keepalive: true, headers: {"Content-Type": "application/json"}, body: JSON.stringify({text: text})})
    .then(r => { if (r.status === 400 || r.status === 409) location.reload(); });
  poll(snap => snap.pending || snap.messages.length !== rendered);
}

if ({{.Pending}}) {
  poll(snap => !snap.pending);
}
</script>
</body>
</html>
`))

func (s *Server) page(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := pageTmpl.Execute(w, s.buildSnapshot()); err != nil {
		s.logger.Error("render page", "error", err)
	}
}

func decodeJSON(body io.Reader, v any) error {
	dec := json.NewDecoder(io.LimitReader(body, maxRequestBody))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is empty")
		}
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
