package masking

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMasker_SensitiveKeys(t *testing.T) {
	m := New()
	out := m.MaskMap(map[string]any{
		"actor":    "alice",
		"password": "hunter2",
		"API_KEY":  "abc123",
	})
	assert.Equal(t, "alice", out["actor"])
	assert.Equal(t, "***MASKED***", out["password"])
	assert.Equal(t, "***MASKED***", out["API_KEY"])
}

func TestMasker_ValuePatterns(t *testing.T) {
	m := New()

	t.Run("bearer tokens", func(t *testing.T) {
		masked := m.MaskString("Authorization: Bearer abc.def.ghi rest")
		assert.NotContains(t, masked, "abc.def.ghi")
	})

	t.Run("key=value secrets", func(t *testing.T) {
		masked := m.MaskString("failed with api_key=sk-12345 at gate 2")
		assert.NotContains(t, masked, "sk-12345")
	})

	t.Run("plain text untouched", func(t *testing.T) {
		s := "schema gate: field \"trace_id\" missing"
		assert.Equal(t, s, m.MaskString(s))
	})
}

func TestMasker_NestedStructures(t *testing.T) {
	m := New()
	out := m.MaskMap(map[string]any{
		"context": map[string]any{
			"token": "tok-1",
			"list":  []any{"password=abc", "ok"},
		},
	})
	inner := out["context"].(map[string]any)
	assert.Equal(t, "***MASKED***", inner["token"])
	list := inner["list"].([]any)
	assert.NotContains(t, list[0], "abc")
	assert.Equal(t, "ok", list[1])
}

func TestMasker_DoesNotMutateInput(t *testing.T) {
	m := New()
	in := map[string]any{"password": "hunter2"}
	_ = m.MaskMap(in)
	assert.Equal(t, "hunter2", in["password"])
}

func TestMasker_NilMap(t *testing.T) {
	m := New()
	assert.Nil(t, m.MaskMap(nil))
}
