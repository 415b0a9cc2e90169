package realtime

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEnvelope_WireShape(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC)
	data, err := json.Marshal(NewEnvelope(DomainRooms, now))
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "data_update", raw["event"])
	assert.Equal(t, "2025-06-01T12:30:00Z", raw["timestamp"])

	inner, ok := raw["data"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "rooms", inner["type"])
}

func TestParseEnvelope(t *testing.T) {
	env, ok := ParseEnvelope([]byte(`{"event":"data_update","data":{"type":"guests"},"timestamp":"2025-06-01T12:30:00Z"}`))
	require.True(t, ok)
	assert.Equal(t, DomainGuests, env.Data.Type)

	_, ok = ParseEnvelope([]byte(`{"event":"something_else","data":{"type":"guests"}}`))
	assert.False(t, ok, "non data_update events are discarded")

	_, ok = ParseEnvelope([]byte(`{not json`))
	assert.False(t, ok, "malformed payloads are discarded, never surfaced")
}

func TestParseHandshake(t *testing.T) {
	hs, ok := ParseHandshake([]byte(`{"type":"auth","userId":"u1","branchId":"b1","timestamp":"2025-06-01T12:30:00Z"}`))
	require.True(t, ok)
	assert.Equal(t, "u1", hs.UserID)
	assert.Equal(t, "b1", hs.BranchID)

	hs, ok = ParseHandshake([]byte(`{"type":"auth"}`))
	require.True(t, ok, "identity and branch are optional")
	assert.Empty(t, hs.UserID)
	assert.Empty(t, hs.BranchID)

	_, ok = ParseHandshake([]byte(`{"type":"chat","text":"hello"}`))
	assert.False(t, ok)

	_, ok = ParseHandshake([]byte(`garbage`))
	assert.False(t, ok)
}

func TestDomain_Valid(t *testing.T) {
	for _, d := range Domains {
		assert.True(t, d.Valid(), "%s should be valid", d)
	}
	assert.False(t, Domain("billing-v2").Valid())
	assert.False(t, Domain("").Valid())
}
