package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"ladybot/internal/assistant"
	"ladybot/internal/history"
	"ladybot/internal/observability"
)

type fakeEngine struct {
	mu        sync.Mutex
	sent      chan string
	listening bool
	exited    chan struct{}
	exitOnce  sync.Once
	listenErr error
	turns     []history.Turn
	// sink mirrors the engine reporting loop state to the hub
	sink interface{ Listening(bool) }
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{sent: make(chan string, 8), exited: make(chan struct{})}
}

func (f *fakeEngine) Send(_ context.Context, text string) error {
	f.sent <- text
	return nil
}

func (f *fakeEngine) StartListening(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listenErr != nil {
		return f.listenErr
	}
	if f.listening {
		return assistant.ErrBusy
	}
	f.listening = true
	if f.sink != nil {
		f.sink.Listening(true)
	}
	return nil
}

func (f *fakeEngine) StopListening() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listening && f.sink != nil {
		f.sink.Listening(false)
	}
	f.listening = false
}

func (f *fakeEngine) IsListening() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listening
}

func (f *fakeEngine) Exit() {
	f.exitOnce.Do(func() { close(f.exited) })
}

func (f *fakeEngine) Transcript() string { return "\n\nUser: hi\n" }

func (f *fakeEngine) History(_ context.Context, limit int) ([]history.Turn, error) {
	if limit < len(f.turns) {
		return f.turns[len(f.turns)-limit:], nil
	}
	return f.turns, nil
}

func newTestServer(t *testing.T) (*httptest.Server, *fakeEngine, *Hub) {
	t.Helper()
	engine := newFakeEngine()
	metrics := observability.NewMetrics("ladybot_test", prometheus.NewRegistry())
	hub := NewHub(metrics)
	engine.sink = hub
	srv := New(context.Background(), engine, hub, metrics, "Ladybot - 2.0 - 2024-05-01")
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts, engine, hub
}

func TestUIRoutes(t *testing.T) {
	ts, _, _ := newTestServer(t)

	client := &http.Client{
		CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
	}
	res, err := client.Get(ts.URL + "/")
	if err != nil {
		t.Fatal(err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusTemporaryRedirect || res.Header.Get("Location") != "/ui/" {
		t.Fatalf("GET / = %d %q", res.StatusCode, res.Header.Get("Location"))
	}

	res, err = http.Get(ts.URL + "/ui/")
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(res.Body)
	res.Body.Close()
	for _, want := range []string{
		"<title>Ladybot - 2.0 - 2024-05-01</title>",
		"Start Speech Recognition",
		"Send Message",
		">Exit<",
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("index missing %q", want)
		}
	}

	res, err = http.Get(ts.URL + "/ui/app.js")
	if err != nil {
		t.Fatal(err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("app.js status = %d", res.StatusCode)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	ts, _, _ := newTestServer(t)

	res, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	var health map[string]any
	json.NewDecoder(res.Body).Decode(&health)
	res.Body.Close()
	if health["status"] != "ok" {
		t.Fatalf("health = %v", health)
	}

	res, err = http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("metrics status = %d", res.StatusCode)
	}
}

func TestPostMessage(t *testing.T) {
	ts, engine, _ := newTestServer(t)

	res, err := http.Post(ts.URL+"/v1/messages", "application/json", strings.NewReader(`{"text":"tell me a joke"}`))
	if err != nil {
		t.Fatal(err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d", res.StatusCode)
	}
	select {
	case got := <-engine.sent:
		if got != "tell me a joke" {
			t.Fatalf("sent %q", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("turn never started")
	}

	res, err = http.Post(ts.URL+"/v1/messages", "application/json", strings.NewReader(`{"text":"  "}`))
	if err != nil {
		t.Fatal(err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("empty prompt status = %d", res.StatusCode)
	}
}

func TestListenEndpoints(t *testing.T) {
	ts, engine, _ := newTestServer(t)

	post := func(path string) int {
		res, err := http.Post(ts.URL+path, "application/json", bytes.NewReader(nil))
		if err != nil {
			t.Fatal(err)
		}
		res.Body.Close()
		return res.StatusCode
	}

	if got := post("/v1/listen"); got != http.StatusAccepted {
		t.Fatalf("listen = %d", got)
	}
	if got := post("/v1/listen"); got != http.StatusConflict {
		t.Fatalf("second listen = %d, want 409", got)
	}
	if got := post("/v1/listen/stop"); got != http.StatusOK || engine.IsListening() {
		t.Fatalf("stop = %d listening=%v", got, engine.IsListening())
	}
	if got := post("/v1/exit"); got != http.StatusAccepted {
		t.Fatalf("exit = %d", got)
	}
	select {
	case <-engine.exited:
	case <-time.After(2 * time.Second):
		t.Fatal("exit not requested")
	}
}

func TestTranscriptAndHistory(t *testing.T) {
	ts, engine, _ := newTestServer(t)
	ex := uuid.New()
	engine.turns = []history.Turn{
		history.NewTurn(ex, history.RoleUser, history.SourceText, "a"),
		history.NewTurn(ex, history.RoleAssistant, history.SourceText, "b"),
	}

	res, err := http.Get(ts.URL + "/v1/transcript")
	if err != nil {
		t.Fatal(err)
	}
	var tr map[string]string
	json.NewDecoder(res.Body).Decode(&tr)
	res.Body.Close()
	if tr["text"] != "\n\nUser: hi\n" {
		t.Fatalf("transcript = %q", tr["text"])
	}

	res, err = http.Get(ts.URL + "/v1/history?limit=1")
	if err != nil {
		t.Fatal(err)
	}
	var hist struct {
		Turns []history.Turn `json:"turns"`
	}
	json.NewDecoder(res.Body).Decode(&hist)
	res.Body.Close()
	if len(hist.Turns) != 1 || hist.Turns[0].Content != "b" {
		t.Fatalf("history = %+v", hist.Turns)
	}

	res, err = http.Get(ts.URL + "/v1/history?limit=zero")
	if err != nil {
		t.Fatal(err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad limit status = %d", res.StatusCode)
	}
}

func dial(t *testing.T, ts *httptest.Server, header http.Header) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	return websocket.DefaultDialer.Dial(url, header)
}

func readMsg(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var m Message
	if err := conn.ReadJSON(&m); err != nil {
		t.Fatalf("read: %v", err)
	}
	return m
}

func TestWebsocketFlow(t *testing.T) {
	ts, engine, hub := newTestServer(t)

	conn, _, err := dial(t, ts, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	snap := readMsg(t, conn)
	if snap.Type != TypeSnapshot || snap.Text != "\n\nUser: hi\n" || snap.Listening == nil || *snap.Listening {
		t.Fatalf("first message = %+v", snap)
	}

	hub.Append("Hel")
	hub.ClearInput()
	if m := readMsg(t, conn); m.Type != TypeAppend || m.Text != "Hel" {
		t.Fatalf("append = %+v", m)
	}
	if m := readMsg(t, conn); m.Type != TypeClearInput {
		t.Fatalf("clear = %+v", m)
	}

	if err := conn.WriteJSON(Message{Type: TypeSend, Text: "hello"}); err != nil {
		t.Fatal(err)
	}
	select {
	case got := <-engine.sent:
		if got != "hello" {
			t.Fatalf("sent %q", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("send not forwarded")
	}

	if err := conn.WriteJSON(Message{Type: "dance"}); err != nil {
		t.Fatal(err)
	}
	if m := readMsg(t, conn); m.Type != TypeError {
		t.Fatalf("unknown type reply = %+v", m)
	}

	hub.Closed()
	if m := readMsg(t, conn); m.Type != TypeClosed {
		t.Fatalf("closed = %+v", m)
	}

	if _, _, err := dial(t, ts, nil); err != nil {
		t.Fatalf("dial after close: %v", err)
	}
}

func TestWebsocketRejectsForeignOrigin(t *testing.T) {
	ts, _, _ := newTestServer(t)

	_, res, err := dial(t, ts, http.Header{"Origin": []string{"http://evil.example"}})
	if err == nil {
		t.Fatal("cross-origin upgrade should fail")
	}
	if res == nil || res.StatusCode != http.StatusForbidden {
		t.Fatalf("response = %v", res)
	}
}

func TestSameOrigin(t *testing.T) {
	r := httptest.NewRequest("GET", "http://127.0.0.1:8765/ws", nil)
	if !sameOrigin(r) {
		t.Fatal("missing Origin should be allowed")
	}
	r.Header.Set("Origin", "http://127.0.0.1:8765")
	if !sameOrigin(r) {
		t.Fatal("same origin rejected")
	}
	r.Header.Set("Origin", "file://")
	if sameOrigin(r) {
		t.Fatal("file origin accepted")
	}
}

func TestWebsocketFollowsListeningState(t *testing.T) {
	ts, engine, _ := newTestServer(t)

	conn, _, err := dial(t, ts, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	readMsg(t, conn) // snapshot

	if err := conn.WriteJSON(Message{Type: TypeListen}); err != nil {
		t.Fatal(err)
	}
	if m := readMsg(t, conn); m.Type != TypeListening || m.Listening == nil || !*m.Listening {
		t.Fatalf("after listen = %+v", m)
	}

	// stopped elsewhere: control socket, hotkey or the loop ending
	engine.StopListening()
	if m := readMsg(t, conn); m.Type != TypeListening || m.Listening == nil || *m.Listening {
		t.Fatalf("after stop = %+v", m)
	}
}

func TestWebsocketListenFailureResetsButton(t *testing.T) {
	ts, engine, _ := newTestServer(t)
	engine.listenErr = errors.New("assistant: speech input not configured")

	conn, _, err := dial(t, ts, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	readMsg(t, conn)

	if err := conn.WriteJSON(Message{Type: TypeListen}); err != nil {
		t.Fatal(err)
	}
	if m := readMsg(t, conn); m.Type != TypeError {
		t.Fatalf("first reply = %+v", m)
	}
	if m := readMsg(t, conn); m.Type != TypeListening || m.Listening == nil || *m.Listening {
		t.Fatalf("second reply = %+v", m)
	}
}
