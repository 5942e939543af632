package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONBValue(t *testing.T) {
	v, err := JSONB{"id": 1, "brand": "Dell"}.Value()
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":1,"brand":"Dell"}`, string(v.([]byte)))

	v, err = JSONB(nil).Value()
	require.NoError(t, err)
	assert.Nil(t, v, "nil snapshot stores as SQL NULL")
}

func TestJSONBScan(t *testing.T) {
	var j JSONB
	require.NoError(t, j.Scan([]byte(`{"status":"retired","device_id":3}`)))
	assert.Equal(t, "retired", j["status"])
	assert.EqualValues(t, 3, j["device_id"])

	var empty JSONB
	require.NoError(t, empty.Scan(nil))
	assert.Nil(t, empty)
}
