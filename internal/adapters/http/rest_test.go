package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vibemeet/vibemeet/internal/adapters/signal"
	"github.com/vibemeet/vibemeet/internal/app"
	"github.com/vibemeet/vibemeet/internal/config"
	"github.com/vibemeet/vibemeet/internal/domain"
	"github.com/vibemeet/vibemeet/internal/store"
)

func newTestServer(t *testing.T) (*httptest.Server, *app.Protocol) {
	t.Helper()
	proto := app.NewProtocol(store.NewMemory(0), app.NewRegistry(), 50)
	ctl := signal.NewController(proto, signal.Options{})
	cfg := &config.Config{
		Mode:         "release",
		StaticPath:   t.TempDir(),
		Secret:       "test-secret",
		HistoryLimit: 50,
	}
	r := SetupRouter(context.Background(), cfg, proto, ctl)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, proto
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	return resp.StatusCode
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	var body struct {
		Status           string `json:"status"`
		Timestamp        string `json:"timestamp"`
		StorageConnected bool   `json:"storageConnected"`
	}
	code := getJSON(t, srv.URL+"/api/health", &body)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body.Status)
	assert.NotEmpty(t, body.Timestamp)
	// Memory-only mode has no durable backend to report as connected.
	assert.False(t, body.StorageConnected)
}

func TestMessagesRoundTrip(t *testing.T) {
	srv, proto := newTestServer(t)
	ctx := context.Background()

	proto.Registry().Bind("c1", nopSender{}, nil)
	_, err := proto.Join(ctx, "c1", "r1", "u1", "alice")
	require.NoError(t, err)
	_, err = proto.Send(ctx, "c1", &domain.Message{RoomID: "r1", Author: "alice", UserID: "u1", Text: "hello"})
	require.NoError(t, err)

	var body struct {
		Messages []domain.Message `json:"messages"`
	}
	code := getJSON(t, srv.URL+"/api/rooms/r1/messages?limit=10", &body)
	assert.Equal(t, http.StatusOK, code)
	require.NotEmpty(t, body.Messages)
	last := body.Messages[len(body.Messages)-1]
	assert.Equal(t, "hello", last.Text)
	assert.Equal(t, "alice", last.Author)
}

func TestMessagesEmptyRoom(t *testing.T) {
	srv, _ := newTestServer(t)

	var body struct {
		Messages []domain.Message `json:"messages"`
	}
	code := getJSON(t, srv.URL+"/api/rooms/empty/messages", &body)
	assert.Equal(t, http.StatusOK, code)
	assert.NotNil(t, body.Messages)
	assert.Empty(t, body.Messages)
}

func TestParticipantsEndpoint(t *testing.T) {
	srv, proto := newTestServer(t)
	ctx := context.Background()

	proto.Registry().Bind("c1", nopSender{}, nil)
	_, err := proto.Join(ctx, "c1", "r1", "u1", "alice")
	require.NoError(t, err)

	var body struct {
		Participants []domain.Participant `json:"participants"`
	}
	code := getJSON(t, srv.URL+"/api/rooms/r1/participants", &body)
	assert.Equal(t, http.StatusOK, code)
	require.Len(t, body.Participants, 1)
	assert.Equal(t, domain.UserID("u1"), body.Participants[0].UserID)
}

type nopSender struct{}

func (nopSender) TrySend(app.Frame) error { return nil }
