package web

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"livetrader-go/internal/execution"
	"livetrader-go/internal/status"
)

func TestStatusEndpoint(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(NewRouter(hub))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/status")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	hub.Update(status.Snapshot{Seq: 3, Account: execution.Account{ID: "paper", Cash: 1000}, Err: "broker down"})

	resp, err = http.Get(srv.URL + "/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.EqualValues(t, 3, body["seq"])
	assert.Equal(t, "broker down", body["error"])
	assert.Equal(t, "paper", body["account"].(map[string]any)["id"])
}

func TestHealthAndMetrics(t *testing.T) {
	srv := httptest.NewServer(NewRouter(NewHub()))
	defer srv.Close()

	for _, path := range []string{"/healthz", "/metrics"} {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
	}
	resp, err := http.Post(srv.URL+"/status", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestEventsStreamsSnapshots(t *testing.T) {
	hub := NewHub()
	hub.Update(status.Snapshot{Seq: 1})
	srv := httptest.NewServer(NewRouter(hub))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	next := func() status.Snapshot {
		for {
			line, err := reader.ReadString('\n')
			require.NoError(t, err)
			if data, ok := strings.CutPrefix(strings.TrimSpace(line), "data: "); ok {
				var s status.Snapshot
				require.NoError(t, json.Unmarshal([]byte(data), &s))
				return s
			}
		}
	}

	assert.EqualValues(t, 1, next().Seq, "latest snapshot is replayed on connect")
	require.Eventually(t, func() bool { return hub.Subscribers() == 1 }, time.Second, 10*time.Millisecond)
	hub.Update(status.Snapshot{Seq: 2})
	assert.EqualValues(t, 2, next().Seq)
}

func TestConsumeDrainsPublisher(t *testing.T) {
	pub := status.NewPublisher(4)
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		hub.Consume(ctx, pub.C())
	}()

	pub.Publish(status.Snapshot{})
	pub.Publish(status.Snapshot{})
	require.Eventually(t, func() bool {
		s, ok := hub.Latest()
		return ok && s.Seq == 2
	}, time.Second, 5*time.Millisecond)
	cancel()
	<-done
}

func TestSubscribeQueuesLatestBeforeLaterFrames(t *testing.T) {
	hub := NewHub()
	ch := hub.subscribe()
	assert.Empty(t, ch, "nothing to replay before the first snapshot")
	hub.unsubscribe(ch)

	hub.Update(status.Snapshot{Seq: 1})
	ch = hub.subscribe()
	defer hub.unsubscribe(ch)
	hub.Update(status.Snapshot{Seq: 2})
	hub.Update(status.Snapshot{Seq: 3})

	var seqs []uint64
	for len(ch) > 0 {
		var s status.Snapshot
		require.NoError(t, json.Unmarshal(<-ch, &s))
		seqs = append(seqs, s.Seq)
	}
	assert.Equal(t, []uint64{1, 2, 3}, seqs)
}
