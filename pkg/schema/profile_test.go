package schema

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helioslabs/ledgerscope/pkg/querier"
)

type fakeQuerier struct {
	calls  int
	result *querier.ResultSet
	err    error
}

func (f *fakeQuerier) Query(_ context.Context, _ string) (*querier.ResultSet, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func TestLiveProfileInfo(t *testing.T) {
	fake := &fakeQuerier{
		result: &querier.ResultSet{
			Columns: []string{"row_count", "min_date", "max_date"},
			Rows: []querier.Row{{
				"row_count": int64(5000),
				"min_date":  "2024-01-01",
				"max_date":  time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC),
			}},
			Count: 1,
		},
	}

	profile, err := NewLiveProfile(LiveProfileConfig{Querier: fake})
	require.NoError(t, err)

	info, err := profile.Info(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(5000), info.RowCount)
	assert.Equal(t, "2024-01-01", info.MinDate)
	assert.Equal(t, "2024-03-31", info.MaxDate)
}

func TestLiveProfileServesFromCache(t *testing.T) {
	fake := &fakeQuerier{
		result: &querier.ResultSet{
			Columns: []string{"row_count", "min_date", "max_date"},
			Rows: []querier.Row{{
				"row_count": int64(100),
				"min_date":  "2024-01-01",
				"max_date":  "2024-03-31",
			}},
			Count: 1,
		},
	}

	profile, err := NewLiveProfile(LiveProfileConfig{Querier: fake, TTL: time.Hour})
	require.NoError(t, err)

	for range 3 {
		_, err := profile.Info(context.Background())
		require.NoError(t, err)
	}
	assert.Equal(t, 1, fake.calls, "repeated lookups within the TTL hit the cache")
}

func TestLiveProfileQueryError(t *testing.T) {
	fake := &fakeQuerier{err: fmt.Errorf("connection refused")}

	profile, err := NewLiveProfile(LiveProfileConfig{Querier: fake})
	require.NoError(t, err)

	_, err = profile.Info(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to profile table")
}

func TestLiveProfileRequiresQuerier(t *testing.T) {
	_, err := NewLiveProfile(LiveProfileConfig{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "querier is required")
}
