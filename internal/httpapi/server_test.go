package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/comigor/chatwidget-go/internal/conversation"
	"github.com/comigor/chatwidget-go/internal/format"
	"github.com/comigor/chatwidget-go/internal/history"
	"github.com/comigor/chatwidget-go/internal/llm"
	"github.com/comigor/chatwidget-go/internal/logger"
)

type stubLLM struct {
	reply string
	err   error
	hold  chan struct{}
	begun chan struct{}
}

func (s *stubLLM) Generate(ctx context.Context, _ []history.Message) (string, error) {
	if s.begun != nil {
		s.begun <- struct{}{}
	}
	if s.hold != nil {
		<-s.hold
	}
	return s.reply, s.err
}

func newTestServer(client llm.Client) (*httptest.Server, *conversation.Store) {
	store := conversation.New(client, conversation.Options{Logger: logger.Discard()})
	srv := New(store, format.Formatter{}, logger.Discard())
	return httptest.NewServer(srv.Handler()), store
}

func postText(t *testing.T, url, text string) (*http.Response, submitResponse) {
	t.Helper()
	body := fmt.Sprintf(`{"text":%q}`, text)
	resp, err := http.Post(url+"/api/messages", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	var out submitResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp, out
}

func TestSubmit_RepliesWithFormattedHTML(t *testing.T) {
	ts, _ := newTestServer(&stubLLM{reply: "**hi** <b>"})
	defer ts.Close()

	resp, out := postText(t, ts.URL, "hello")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "replied", out.Outcome)
	require.NotNil(t, out.Reply)
	require.Equal(t, "**hi** <b>", out.Reply.Text)
	require.Equal(t, "<strong>hi</strong> &lt;b&gt;", string(out.Reply.HTML))
}

func TestSubmit_EmptyInput(t *testing.T) {
	ts, store := newTestServer(&stubLLM{reply: "unused"})
	defer ts.Close()

	resp, out := postText(t, ts.URL, "   ")
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "empty_input", out.Outcome)
	require.Zero(t, store.Len())
}

func TestSubmit_BadJSON(t *testing.T) {
	ts, _ := newTestServer(&stubLLM{})
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/messages", "application/json", strings.NewReader("{"))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSubmit_ModelFailure(t *testing.T) {
	ts, _ := newTestServer(&stubLLM{err: &llm.HTTPStatusError{Code: 500}})
	defer ts.Close()

	resp, out := postText(t, ts.URL, "hello")
	require.Equal(t, http.StatusBadGateway, resp.StatusCode)
	require.Equal(t, "failed", out.Outcome)
	require.Contains(t, out.Error, "status 500")

	snap := getSnapshot(t, ts.URL)
	require.Len(t, snap.Messages, 1)
	require.False(t, snap.Pending)
	require.Equal(t, out.Error, snap.LastError)
}

func TestSubmit_ConflictWhilePending(t *testing.T) {
	stub := &stubLLM{reply: "ok", hold: make(chan struct{}), begun: make(chan struct{}, 1)}
	ts, _ := newTestServer(stub)
	defer ts.Close()

	done := make(chan int)
	go func() {
		resp, err := http.Post(ts.URL+"/api/messages", "application/json", strings.NewReader(`{"text":"first"}`))
		if err != nil {
			done <- 0
			return
		}
		resp.Body.Close()
		done <- resp.StatusCode
	}()
	<-stub.begun

	snap := getSnapshot(t, ts.URL)
	require.True(t, snap.Pending)

	resp, out := postText(t, ts.URL, "second")
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	require.Equal(t, "already_pending", out.Outcome)

	close(stub.hold)
	require.Equal(t, http.StatusOK, <-done)
	require.Len(t, getSnapshot(t, ts.URL).Messages, 2)
}

func getSnapshot(t *testing.T, url string) snapshotResponse {
	t.Helper()
	resp, err := http.Get(url + "/api/conversation")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var snap snapshotResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	return snap
}

func TestPage_RendersMessagesAndError(t *testing.T) {
	stub := &stubLLM{reply: "*yo*"}
	ts, store := newTestServer(stub)
	defer ts.Close()

	store.Submit(context.Background(), "hello <script>")
	stub.err = llm.ErrNetwork
	store.Submit(context.Background(), "again")

	resp, err := http.Get(ts.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	page := string(raw)

	require.Contains(t, page, "<em>yo</em>")
	require.Contains(t, page, "hello &lt;script&gt;")
	require.NotContains(t, page, "<script>\n</div>")
	require.Contains(t, page, "Error: Could not reach the model service.")
	require.NotContains(t, page, "Typing...")
}

func TestPage_ShowsPendingState(t *testing.T) {
	stub := &stubLLM{reply: "ok", hold: make(chan struct{}), begun: make(chan struct{}, 1)}
	ts, _ := newTestServer(stub)
	defer ts.Close()

	done := make(chan int)
	go func() {
		resp, err := http.Post(ts.URL+"/api/messages", "application/json", strings.NewReader(`{"text":"are you there"}`))
		if err != nil {
			done <- 0
			return
		}
		resp.Body.Close()
		done <- resp.StatusCode
	}()
	<-stub.begun

	resp, err := http.Get(ts.URL + "/")
	require.NoError(t, err)
	raw, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	page := string(raw)

	require.Contains(t, page, "are you there")
	require.Contains(t, page, "Typing...")
	require.Contains(t, page, `autocomplete="off" disabled>`)
	require.Contains(t, page, `<button type="submit" disabled>`)

	close(stub.hold)
	require.Equal(t, http.StatusOK, <-done)
}

func TestSubmit_FormPost(t *testing.T) {
	ts, store := newTestServer(&stubLLM{reply: "*yo*"})
	defer ts.Close()

	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}}
	resp, err := client.PostForm(ts.URL+"/api/messages", url.Values{"text": {"hello"}})
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	require.Equal(t, "/", resp.Header.Get("Location"))

	msgs := store.Messages()
	require.Len(t, msgs, 2)
	require.Equal(t, "hello", msgs[0].Text)
	require.Equal(t, "*yo*", msgs[1].Text)

	resp, err = client.PostForm(ts.URL+"/api/messages", url.Values{"text": {"  "}})
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	require.Equal(t, 2, store.Len())
}
