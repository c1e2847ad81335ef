package metered

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mantlenetworkio/mantle-fp/op-service/testutils"
)

type recordedTimes map[string]time.Duration

func (r recordedTimes) RecordL1RequestTime(method string, duration time.Duration) {
	r[method] = duration
}

func TestMeteredL1Fetcher(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	ref := testutils.RandomBlockRef(rng)
	inner := &testutils.MockL1Source{}
	inner.ExpectL1BlockRefByNumber(ref.Number, ref, nil)

	times := recordedTimes{}
	fetcher := NewMeteredL1Fetcher(inner, times)
	now := time.Unix(100, 0)
	fetcher.now = func() time.Time {
		now = now.Add(time.Second)
		return now
	}

	got, err := fetcher.L1BlockRefByNumber(context.Background(), ref.Number)
	require.NoError(t, err)
	require.Equal(t, ref, got)
	require.Equal(t, time.Second, times["L1BlockRefByNumber"])
	inner.AssertExpectations(t)
}
