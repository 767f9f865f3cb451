package events

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEnvelopeFillsIdentityFields(t *testing.T) {
	env, err := NewEnvelope(PriceCreated, 3, "corr-1", map[string]string{"id": "p1"})
	require.NoError(t, err)

	assert.NotEmpty(t, env.EventID)
	assert.Equal(t, PriceCreated, env.EventType)
	assert.Equal(t, SchemaVersion, env.SchemaVersion)
	assert.Equal(t, int64(3), env.EntityVersion)
	assert.Equal(t, "corr-1", env.CorrelationID)
	assert.False(t, env.Timestamp.IsZero())

	var payload map[string]string
	require.NoError(t, json.Unmarshal(env.Payload, &payload))
	assert.Equal(t, "p1", payload["id"])
}

func TestEnvelopeEventIDsAreUnique(t *testing.T) {
	a, err := NewEnvelope(OfferingCreated, 1, "", nil)
	require.NoError(t, err)
	b, err := NewEnvelope(OfferingCreated, 1, "", nil)
	require.NoError(t, err)
	assert.NotEqual(t, a.EventID, b.EventID)
}

func TestNewEnvelopeRejectsUnmarshallablePayload(t *testing.T) {
	_, err := NewEnvelope(OfferingCreated, 1, "", func() {})
	assert.Error(t, err)
}
