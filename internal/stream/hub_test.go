package stream

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enterprise/fraud-engine/internal/models"
)

func startHub(t *testing.T) (*Hub, string) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub()
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestHub_BroadcastsDecision(t *testing.T) {
	hub, url := startHub(t)
	first := dial(t, url)
	second := dial(t, url)
	require.Eventually(t, func() bool { return hub.ClientCount() == 2 }, time.Second, 5*time.Millisecond)

	tx := &models.Transaction{TransactionID: "T1", SenderCustomerID: "C1", AmountValue: 2500}
	d := &models.Decision{
		Result: models.FraudResult{RiskScore: 0.1, FraudSeverity: models.SeverityLow, FlagColor: models.FlagGreen},
		Method: models.MethodMLModel,
	}
	hub.HandleDecision(context.Background(), tx, d)

	for _, conn := range []*websocket.Conn{first, second} {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)

		var frame struct {
			Event string                   `json:"event"`
			Data  models.DetectionResponse `json:"data"`
		}
		require.NoError(t, json.Unmarshal(data, &frame))
		assert.Equal(t, EventRealTime, frame.Event)
		assert.Equal(t, "T1", frame.Data.Transaction.TransactionID)
		assert.Equal(t, models.MethodMLModel, frame.Data.Metadata.DetectionMethod)
	}
}

func TestHub_UnregistersOnDisconnect(t *testing.T) {
	hub, url := startHub(t)
	conn := dial(t, url)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return hub.ClientCount() == 0 }, time.Second, 5*time.Millisecond)
}

func TestHub_BroadcastWithoutSubscribers(t *testing.T) {
	hub := NewHub()
	assert.NoError(t, hub.Broadcast(EventRealTime, map[string]string{"ok": "yes"}))
}

func TestHub_BroadcastRejectsUnencodable(t *testing.T) {
	hub := NewHub()
	assert.Error(t, hub.Broadcast(EventRealTime, make(chan int)))
}
