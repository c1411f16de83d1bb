package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlexTimeString(t *testing.T) {
	var ts FlexTime
	require.NoError(t, json.Unmarshal([]byte(`"2024-03-15T10:30:00Z"`), &ts))
	assert.Equal(t, time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC), ts.Time)
}

func TestFlexTimeDateOnly(t *testing.T) {
	var ts FlexTime
	require.NoError(t, json.Unmarshal([]byte(`"2024-03-15"`), &ts))
	assert.Equal(t, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), ts.Time)
}

func TestFlexTimeEpochSeconds(t *testing.T) {
	var ts FlexTime
	require.NoError(t, json.Unmarshal([]byte(`1710498600`), &ts))
	assert.Equal(t, time.Unix(1710498600, 0).UTC(), ts.Time)
}

func TestFlexTimeEpochMillis(t *testing.T) {
	var ts FlexTime
	require.NoError(t, json.Unmarshal([]byte(`1710498600000`), &ts))
	assert.Equal(t, time.UnixMilli(1710498600000).UTC(), ts.Time)
}

func TestFlexTimeWrappedObject(t *testing.T) {
	var ts FlexTime
	require.NoError(t, json.Unmarshal([]byte(`{"seconds":1710498600,"nanos":500000000}`), &ts))
	assert.Equal(t, time.Unix(1710498600, 500000000).UTC(), ts.Time)

	var alt FlexTime
	require.NoError(t, json.Unmarshal([]byte(`{"_seconds":1710498600,"_nanoseconds":0}`), &alt))
	assert.Equal(t, time.Unix(1710498600, 0).UTC(), alt.Time)
}

func TestFlexTimeUnparseableNormalizesToZero(t *testing.T) {
	cases := []string{`null`, `"not a date"`, `"31/12/2024"`, `{}`, `-5`, `0`}
	for _, raw := range cases {
		var ts FlexTime
		require.NoError(t, json.Unmarshal([]byte(raw), &ts), raw)
		assert.True(t, ts.IsZero(), raw)
	}
}

func TestFlexTimeMarshal(t *testing.T) {
	ts := FlexTime{Time: time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)}
	out, err := json.Marshal(ts)
	require.NoError(t, err)
	assert.Equal(t, `"2024-03-15T10:30:00Z"`, string(out))

	zero, err := json.Marshal(FlexTime{})
	require.NoError(t, err)
	assert.Equal(t, "null", string(zero))
}
