package service

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func jsonField(t *testing.T, raw []byte, field string) string {
	t.Helper()
	var m map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &m))
	v, ok := m[field]
	require.True(t, ok, "field %q missing", field)
	return string(v)
}
