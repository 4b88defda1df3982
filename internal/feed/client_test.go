package feed

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconnectLoop_RetriesAfterFailedAttempt(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		http.Error(w, "no upgrade", http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewClient("ws"+strings.TrimPrefix(srv.URL, "http"), []string{"EURUSD"}, nil)
	defer c.Close()
	c.reconnectDelay = 5 * time.Millisecond

	go c.reconnectLoop()
	c.triggerReconnect()

	// a single failed dial must not kill the loop
	require.Eventually(t, func() bool { return attempts.Load() >= 3 },
		2*time.Second, 10*time.Millisecond)
}

func TestHandleMessage_CachesSnapshotAndSignalsData(t *testing.T) {
	c := NewClient("ws://localhost", []string{"EURUSD"}, nil)
	defer c.Close()

	dataEvents := 0
	c.SetDataHandler(func() { dataEvents++ })

	c.handleMessage([]byte(`{"type":"indicators","instrument":"EURUSD","volatility_ratio":1.2,"trend_strength":40,"ma_alignment":0.8,"timestamp":1700000000000}`))
	c.handleMessage([]byte(`{"type":"price","instrument":"EURUSD","price":1.0850,"timestamp":1700000001000}`))
	c.handleMessage([]byte(`{"type":"heartbeat"}`))
	c.handleMessage([]byte(`not json`))

	snap := c.Latest("EURUSD")
	assert.Equal(t, "EURUSD", snap.Instrument)
	assert.Equal(t, 1.2, snap.VolatilityRatio)
	assert.Equal(t, 40.0, snap.TrendStrength)

	// only indicator and price messages count as fresh data
	assert.Equal(t, 2, dataEvents)
}
