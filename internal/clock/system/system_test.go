package system

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestClockNow(t *testing.T) {
	t.Parallel()

	before := time.Now().UTC().Add(-time.Second)
	got := New().Now()
	require.Equal(t, time.UTC, got.Location())
	require.True(t, got.After(before))
	require.Zero(t, got.Nanosecond()%int(time.Millisecond))

	data, err := json.Marshal(got)
	require.NoError(t, err)
	var back time.Time
	require.NoError(t, json.Unmarshal(data, &back))
	require.True(t, back.Equal(got))
}
