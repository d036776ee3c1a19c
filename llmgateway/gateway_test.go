package llmgateway

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	reply string
	err   error
	calls int
}

func (f *fakeProvider) Call(ctx context.Context, req Request) (string, error) {
	f.calls++
	return f.reply, f.err
}

func TestGatewayDispatchesToBoundTier(t *testing.T) {
	g := NewGateway()
	fp := &fakeProvider{reply: "<reasoning>ok</reasoning>[{\"action\":\"wait\"}]"}
	g.Bind(TierFast, fp, "model-fast", 0)

	resp, err := g.Call(context.Background(), TierFast, Request{UserPrompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Reasoning)
	assert.Equal(t, 1, fp.calls)
}

func TestGatewayRejectsUnboundTier(t *testing.T) {
	g := NewGateway()
	_, err := g.Call(context.Background(), TierReasoning, Request{})
	assert.Error(t, err)
}

func TestQuotaBlocksAtSoftLimit(t *testing.T) {
	g := NewGateway()
	fp := &fakeProvider{reply: "ok"}
	fixed := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	g.now = func() time.Time { return fixed }
	g.Bind(TierFast, fp, "model-fast", 2)

	_, err := g.Call(context.Background(), TierFast, Request{})
	require.NoError(t, err)
	_, err = g.Call(context.Background(), TierFast, Request{})
	require.NoError(t, err)

	assert.Equal(t, QuotaBlock, g.CheckQuota(TierFast))
	_, err = g.Call(context.Background(), TierFast, Request{})
	assert.Error(t, err, "third call must be blocked by the soft limit")
	assert.Equal(t, 2, fp.calls)
}

func TestQuotaWindowRollsOff(t *testing.T) {
	g := NewGateway()
	fp := &fakeProvider{reply: "ok"}
	start := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	g.now = func() time.Time { return start }
	g.Bind(TierFast, fp, "model-fast", 1)

	_, err := g.Call(context.Background(), TierFast, Request{})
	require.NoError(t, err)
	assert.Equal(t, QuotaBlock, g.CheckQuota(TierFast))

	g.now = func() time.Time { return start.Add(25 * time.Hour) }
	assert.Equal(t, QuotaOK, g.CheckQuota(TierFast), "calls older than 24h must roll off the window")
}

func TestQuotaWarnBeforeBlock(t *testing.T) {
	g := NewGateway()
	fp := &fakeProvider{reply: "ok"}
	fixed := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	g.now = func() time.Time { return fixed }
	g.Bind(TierFast, fp, "model-fast", 10)

	for i := 0; i < 8; i++ {
		_, err := g.Call(context.Background(), TierFast, Request{})
		require.NoError(t, err)
	}
	assert.Equal(t, QuotaWarn, g.CheckQuota(TierFast))
}

func TestLocalFuncProviderNeverMakesHTTPCall(t *testing.T) {
	c := NewLocalFuncClient("model_1")
	raw, err := c.Call(context.Background(), Request{})
	require.NoError(t, err)
	assert.Equal(t, "", raw)
}
