package http_test

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aretw0/itinera"
	itinerahttp "github.com/aretw0/itinera/pkg/adapters/http"
	"github.com/aretw0/itinera/pkg/domain"
	"github.com/aretw0/itinera/pkg/ports"
	"github.com/aretw0/itinera/pkg/registry"
	"github.com/aretw0/itinera/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func addModel() ports.Model {
	return ports.ModelFunc(func(_ context.Context, req domain.ModelRequest) (domain.Message, error) {
		last := req.Messages[len(req.Messages)-1]
		if last.Role == domain.RoleTool {
			return domain.AssistantMessage("The answer is " + last.Content), nil
		}
		return domain.AssistantMessage("", domain.ToolCall{ID: "c1", Name: "add", Arguments: map[string]any{"a": 2, "b": 3}}), nil
	})
}

func newServer(t *testing.T, model ports.Model, opts ...itinerahttp.Option) (*httptest.Server, *itinera.Engine) {
	t.Helper()
	reg, err := registry.New([]registry.Tool{{
		Name:   "add",
		Params: schema.Schema{"a": schema.Number(), "b": schema.Number()},
		Handler: func(_ context.Context, args map[string]any) (any, error) {
			a, _ := schema.AsFloat(args["a"])
			b, _ := schema.AsFloat(args["b"])
			return a + b, nil
		},
	}})
	require.NoError(t, err)

	eng, err := itinera.New(model, itinera.WithTools(reg))
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close(context.Background()) })

	srv := httptest.NewServer(itinerahttp.NewHandler(eng, opts...))
	t.Cleanup(srv.Close)
	return srv, eng
}

type sseEvent struct {
	name string
	data string
}

func readEvents(t *testing.T, resp *http.Response) []sseEvent {
	t.Helper()
	var (
		events []sseEvent
		cur    sseEvent
	)
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			cur.name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			cur.data = strings.TrimPrefix(line, "data: ")
		case line == "" && cur.name != "":
			events = append(events, cur)
			cur = sseEvent{}
		}
	}
	return events
}

func postTurn(t *testing.T, srv *httptest.Server, threadID, message string) *http.Response {
	t.Helper()
	body := strings.NewReader(`{"message":` + string(mustJSON(t, message)) + `}`)
	resp, err := http.Post(srv.URL+"/threads/"+threadID+"/turns", "application/json", body)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func TestPostTurn_StreamsMessagesThenDone(t *testing.T) {
	srv, _ := newServer(t, addModel())

	resp := postTurn(t, srv, "trip-1", "what is 2+3?")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	events := readEvents(t, resp)
	require.Len(t, events, 4)
	assert.Equal(t, []string{"message", "message", "message", "done"},
		[]string{events[0].name, events[1].name, events[2].name, events[3].name})

	var last domain.Event
	require.NoError(t, json.Unmarshal([]byte(events[2].data), &last))
	assert.Equal(t, "The answer is 5", last.Message.Content)

	// The thread is now readable.
	getResp, err := http.Get(srv.URL + "/threads/trip-1")
	require.NoError(t, err)
	defer getResp.Body.Close()
	var thread struct {
		ThreadID string           `json:"thread_id"`
		Messages []domain.Message `json:"messages"`
	}
	require.NoError(t, json.NewDecoder(getResp.Body).Decode(&thread))
	assert.Equal(t, "trip-1", thread.ThreadID)
	assert.Len(t, thread.Messages, 4)

	listResp, err := http.Get(srv.URL + "/threads")
	require.NoError(t, err)
	defer listResp.Body.Close()
	var list struct {
		Threads []string `json:"threads"`
	}
	require.NoError(t, json.NewDecoder(listResp.Body).Decode(&list))
	assert.Equal(t, []string{"trip-1"}, list.Threads)
}

func TestPostTurn_ModelErrorAfterMessagesIsAnErrorEvent(t *testing.T) {
	var calls atomic.Int32
	model := ports.ModelFunc(func(ctx context.Context, req domain.ModelRequest) (domain.Message, error) {
		if calls.Add(1) == 1 {
			return addModel().Generate(ctx, req)
		}
		return domain.Message{}, errors.New("provider unavailable")
	})
	srv, _ := newServer(t, model)

	resp := postTurn(t, srv, "t", "hi")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	events := readEvents(t, resp)
	require.Len(t, events, 3)
	assert.Equal(t, "error", events[2].name)
	assert.Contains(t, events[2].data, "provider unavailable")
}

func TestPostTurn_ImmediateModelErrorIsBadGateway(t *testing.T) {
	model := ports.ModelFunc(func(context.Context, domain.ModelRequest) (domain.Message, error) {
		return domain.Message{}, errors.New("provider unavailable")
	})
	srv, _ := newServer(t, model)

	resp := postTurn(t, srv, "t", "hi")
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
}

func TestPostTurn_BusyThreadIsConflict(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	var blocked atomic.Bool
	model := ports.ModelFunc(func(context.Context, domain.ModelRequest) (domain.Message, error) {
		if blocked.CompareAndSwap(false, true) {
			close(entered)
			<-release
		}
		return domain.AssistantMessage("done"), nil
	})
	srv, eng := newServer(t, model)

	running := eng.Stream("busy", "first")
	<-entered

	resp := postTurn(t, srv, "busy", "second")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	close(release)
	_, err := running.Collect(context.Background())
	require.NoError(t, err)
}

func TestPostTurn_RejectsBadInput(t *testing.T) {
	srv, _ := newServer(t, addModel())

	resp := postTurn(t, srv, "t", "   ")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	raw, err := http.Post(srv.URL+"/threads/t/turns", "application/json", strings.NewReader("{"))
	require.NoError(t, err)
	defer raw.Body.Close()
	assert.Equal(t, http.StatusBadRequest, raw.StatusCode)
}

func TestCreateThread_ReturnsFreshIDs(t *testing.T) {
	srv, _ := newServer(t, addModel())

	ids := map[string]bool{}
	for i := 0; i < 3; i++ {
		resp, err := http.Post(srv.URL+"/threads", "application/json", nil)
		require.NoError(t, err)
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		var body map[string]string
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		resp.Body.Close()
		ids[body["thread_id"]] = true
	}
	assert.Len(t, ids, 3)
}

func TestHealth_ReportsDegradedSources(t *testing.T) {
	srv, _ := newServer(t, addModel(), itinerahttp.WithSources([]registry.LoadResult{
		{Source: "builtin", Tools: []string{"add"}},
		{Source: "hotels", Err: errors.New("exec: not found")},
	}))

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body struct {
		Status  string `json:"status"`
		Sources []struct {
			Source string `json:"source"`
			Error  string `json:"error"`
		} `json:"sources"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "degraded", body.Status)
	require.Len(t, body.Sources, 2)
	assert.Empty(t, body.Sources[0].Error)
	assert.Equal(t, "exec: not found", body.Sources[1].Error)
}

func TestMetricsAndTools(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("itinera_turns_total 0\n"))
	})
	srv, _ := newServer(t, addModel(), itinerahttp.WithMetrics(metrics))

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	toolsResp, err := http.Get(srv.URL + "/tools")
	require.NoError(t, err)
	defer toolsResp.Body.Close()
	var defs []domain.ToolDefinition
	require.NoError(t, json.NewDecoder(toolsResp.Body).Decode(&defs))
	require.Len(t, defs, 1)
	assert.Equal(t, "add", defs[0].Name)
}

func TestSubscribeEvents_ReceivesTurnsFromOtherRequests(t *testing.T) {
	srv, _ := newServer(t, addModel())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/threads/watched/events", nil)
	require.NoError(t, err)
	sub, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer sub.Body.Close()

	reader := bufio.NewReader(sub.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "event: ping\n", line)

	resp := postTurn(t, srv, "watched", "hi")
	require.Len(t, readEvents(t, resp), 4)

	var kinds []string
	for len(kinds) < 4 {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		if strings.HasPrefix(line, "event: ") && !strings.Contains(line, "ping") {
			kinds = append(kinds, strings.TrimSpace(strings.TrimPrefix(line, "event: ")))
		}
	}
	assert.Equal(t, []string{"message", "message", "message", "done"}, kinds)
}

func TestSubscribeEvents_SeesTurnAfterPosterDisconnects(t *testing.T) {
	release := make(chan struct{})
	model := ports.ModelFunc(func(ctx context.Context, req domain.ModelRequest) (domain.Message, error) {
		last := req.Messages[len(req.Messages)-1]
		if last.Role == domain.RoleTool {
			select {
			case <-release:
			case <-ctx.Done():
				return domain.Message{}, ctx.Err()
			}
			return domain.AssistantMessage("The answer is " + last.Content), nil
		}
		return domain.AssistantMessage("", domain.ToolCall{ID: "c1", Name: "add", Arguments: map[string]any{"a": 2, "b": 3}}), nil
	})
	srv, eng := newServer(t, model)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/threads/left/events", nil)
	require.NoError(t, err)
	sub, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer sub.Body.Close()
	watcher := bufio.NewReader(sub.Body)
	line, err := watcher.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "event: ping\n", line)

	postCtx, postCancel := context.WithCancel(context.Background())
	postReq, err := http.NewRequestWithContext(postCtx, http.MethodPost, srv.URL+"/threads/left/turns",
		strings.NewReader(`{"message":"hi"}`))
	require.NoError(t, err)
	postReq.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(postReq)
	require.NoError(t, err)
	first, err := bufio.NewReader(resp.Body).ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "event: message\n", first)
	postCancel()
	_ = resp.Body.Close()

	close(release)

	var kinds []string
	for {
		line, err := watcher.ReadString('\n')
		require.NoError(t, err, "watcher must see the end of the turn")
		if strings.HasPrefix(line, "event: ") && !strings.Contains(line, "ping") {
			kinds = append(kinds, strings.TrimSpace(strings.TrimPrefix(line, "event: ")))
		}
		if line == "event: done\n" {
			break
		}
	}
	assert.Equal(t, []string{"message", "message", "message", "done"}, kinds)

	history, err := eng.History(context.Background(), "left")
	require.NoError(t, err)
	assert.Len(t, history, 4)
}

func TestStreamManager_CloseEndsWatchers(t *testing.T) {
	streams := itinerahttp.NewStreamManager(slog.New(slog.DiscardHandler))
	srv, _ := newServer(t, addModel(), itinerahttp.WithStreams(streams))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/threads/open/events", nil)
	require.NoError(t, err)
	sub, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer sub.Body.Close()

	reader := bufio.NewReader(sub.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "event: ping\n", line)
	require.Eventually(t, func() bool { return streams.Watchers("open") == 1 }, time.Second, 10*time.Millisecond)

	streams.Close()

	_, err = io.ReadAll(reader)
	require.NoError(t, err, "the events request must finish once the manager closes")
	assert.Zero(t, streams.Watchers("open"))

	ch, unsubscribe := streams.Subscribe("late")
	defer unsubscribe()
	_, ok := <-ch
	assert.False(t, ok, "subscriptions after Close are already closed")
}
