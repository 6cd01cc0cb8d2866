package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRefUnmarshalBareID(t *testing.T) {
	var r Ref
	require.NoError(t, json.Unmarshal([]byte(`"apt-17"`), &r))
	assert.Equal(t, "apt-17", r.ID)
	assert.Nil(t, r.Snapshot)
}

func TestRefUnmarshalObject(t *testing.T) {
	var r Ref
	payload := []byte(`{"_id":"apt-17","snapshot":{"label":"Building A / 17"}}`)
	require.NoError(t, json.Unmarshal(payload, &r))
	assert.Equal(t, "apt-17", r.ID)
	assert.Equal(t, "Building A / 17", r.Snapshot["label"])
}

func TestRefUnmarshalNull(t *testing.T) {
	var r Ref
	require.NoError(t, json.Unmarshal([]byte(`null`), &r))
	assert.True(t, r.IsZero())
}

func TestRefMarshalBareWithoutSnapshot(t *testing.T) {
	out, err := json.Marshal(Ref{ID: "svc-3"})
	require.NoError(t, err)
	assert.JSONEq(t, `"svc-3"`, string(out))
}

func TestRefMarshalObjectWithSnapshot(t *testing.T) {
	r := Ref{ID: "svc-3"}.WithSnapshot(map[string]string{"label": "Window cleaning"})
	out, err := json.Marshal(r)
	require.NoError(t, err)
	assert.JSONEq(t, `{"_id":"svc-3","snapshot":{"label":"Window cleaning"}}`, string(out))
}

func TestRefNormalizedDropsSnapshot(t *testing.T) {
	r := Ref{ID: "c-9", Snapshot: map[string]string{"label": "x"}}
	n := r.Normalized()
	assert.Equal(t, "c-9", n.ID)
	assert.Nil(t, n.Snapshot)
}

func TestRefRoundTripInsideAggregate(t *testing.T) {
	job := JobAggregate{
		ID:           "j1",
		ApartmentRef: Ref{ID: "apt-1"},
	}
	raw, err := json.Marshal(job)
	require.NoError(t, err)

	var decoded JobAggregate
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "apt-1", decoded.ApartmentRef.ID)
}
