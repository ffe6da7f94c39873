package metrics

import (
	"context"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitializeIsSingleton(t *testing.T) {
	assert.Same(t, Initialize(), Get())
}

func TestCounters(t *testing.T) {
	m := Get()

	before := testutil.ToFloat64(m.SubscriptionEventsTotal.WithLabelValues("chat_messages", "stale"))
	SubscriptionEvent("chat_messages", "stale")
	after := testutil.ToFloat64(m.SubscriptionEventsTotal.WithLabelValues("chat_messages", "stale"))
	assert.Equal(t, before+1, after)

	before = testutil.ToFloat64(m.OptimisticMutationsTotal.WithLabelValues("hard", "rolled_back"))
	Mutation("hard", "rolled_back")
	assert.Equal(t, before+1, testutil.ToFloat64(m.OptimisticMutationsTotal.WithLabelValues("hard", "rolled_back")))
}

func TestServeExposesMetrics(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, addr) }()

	ScanVerdict("blocked")

	var body string
	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/metrics")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		b, _ := io.ReadAll(resp.Body)
		body = string(b)
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	assert.True(t, strings.Contains(body, "daredrop_scan_verdicts_total"))

	cancel()
	assert.NoError(t, <-done)
}
