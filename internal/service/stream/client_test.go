package stream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"BrentShift/internal/changepoint"
	"BrentShift/internal/domain/models"
)

func frameServer(t *testing.T, query chan<- url.Values, frames ...models.StreamFrame) *httptest.Server {
	t.Helper()
	up := websocket.Upgrader{}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != StreamPath {
			http.NotFound(w, r)
			return
		}
		if query != nil {
			query <- r.URL.Query()
		}
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for _, f := range frames {
			if err := conn.WriteJSON(f); err != nil {
				return
			}
		}
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		// wait for the client to go away
		_, _, _ = conn.ReadMessage()
	}))
	t.Cleanup(ts.Close)
	return ts
}

func TestURL(t *testing.T) {
	c := New("https://cp.example.com/")
	chains := 4
	u, err := c.URL(models.StreamRequest{Column: "price", Every: 50, NumChains: &chains})
	require.NoError(t, err)
	assert.Equal(t, "wss://cp.example.com/api/change-points/stream?column=price&every=50&num_chains=4", u)

	// explicit zeros are sent, absent values are not
	warmup, seed, diag := 0, uint64(0), false
	u, err = c.URL(models.StreamRequest{WarmupSweeps: &warmup, BaseSeed: &seed, Diagnostics: &diag})
	require.NoError(t, err)
	assert.Equal(t, "wss://cp.example.com/api/change-points/stream?base_seed=0&diagnostics=false&warmup_sweeps=0", u)

	_, err = New("ftp://x").URL(models.StreamRequest{})
	assert.Error(t, err)
}

func TestReadUntilResult(t *testing.T) {
	query := make(chan url.Values, 1)
	ts := frameServer(t, query,
		models.StreamFrame{Type: models.FrameProgress, Progress: &changepoint.ProgressEvent{Chain: 0, Sweep: 100, Total: 400}},
		models.StreamFrame{Type: models.FrameProgress, Progress: &changepoint.ProgressEvent{Chain: 1, Sweep: 100, Total: 400}},
		models.StreamFrame{Type: models.FrameResult, Result: &models.ChangePointRecord{ID: "cp-9"}},
	)

	c := New(ts.URL, WithPingInterval(50*time.Millisecond))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.Connect(ctx, models.StreamRequest{Column: "daily_return", Every: 100}))
	defer c.Close()

	q := <-query
	assert.Equal(t, "100", q.Get("every"))
	assert.Equal(t, "daily_return", q.Get("column"))

	frames, errs := c.Read(ctx)
	var got []models.StreamFrame
	for f := range frames {
		got = append(got, f)
	}
	for err := range errs {
		t.Fatalf("unexpected error %v", err)
	}
	require.Len(t, got, 3)
	assert.Equal(t, models.FrameResult, got[2].Type)
	assert.Equal(t, "cp-9", got[2].Result.ID)
}

func TestReadNotConnected(t *testing.T) {
	frames, errs := New("http://localhost").Read(context.Background())
	_, ok := <-frames
	assert.False(t, ok)
	assert.ErrorIs(t, <-errs, ErrNotConnected)
}

func TestConnectReportsStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer ts.Close()

	err := New(ts.URL).Connect(context.Background(), models.StreamRequest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 400")
}
