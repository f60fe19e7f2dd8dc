package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContext_CloneIsIndependent(t *testing.T) {
	original := Context{"a": 1, "b": "x"}
	clone := original.Clone()
	clone["a"] = 2
	clone["c"] = true

	assert.Equal(t, 1, original.GetInt("a"))
	assert.False(t, original.Has("c"))
	assert.Equal(t, 2, clone.GetInt("a"))
}

func TestContext_WithDoesNotMutateReceiver(t *testing.T) {
	base := Context{"x": 1}
	next := base.With("x", 2).With("y", 3)

	assert.Equal(t, 1, base.GetInt("x"))
	assert.False(t, base.Has("y"))
	assert.Equal(t, 2, next.GetInt("x"))
	assert.Equal(t, 3, next.GetInt("y"))
}

func TestContext_MergeOtherWins(t *testing.T) {
	base := Context{"a": 1, "b": 2}
	merged := base.Merge(Context{"b": 20, "c": 30})

	assert.Equal(t, Context{"a": 1, "b": 20, "c": 30}, merged)
	assert.Equal(t, 2, base.GetInt("b"))
}

func TestContext_GetIntNumericCoercion(t *testing.T) {
	c := Context{
		"int":     7,
		"int64":   int64(8),
		"float64": 9.9,
		"string":  "10",
	}

	assert.Equal(t, 7, c.GetInt("int"))
	assert.Equal(t, 8, c.GetInt("int64"))
	// JSON round-trips land numbers as float64; truncation is intentional.
	assert.Equal(t, 9, c.GetInt("float64"))
	assert.Equal(t, 0, c.GetInt("string"))
	assert.Equal(t, 0, c.GetInt("missing"))
}

func TestContext_GetFloat(t *testing.T) {
	c := Context{"f": 1.5, "i": 3}
	assert.Equal(t, 1.5, c.GetFloat("f"))
	assert.Equal(t, 3.0, c.GetFloat("i"))
	assert.Equal(t, 0.0, c.GetFloat("missing"))
}

func TestContext_GetMapAcceptsNestedContext(t *testing.T) {
	c := Context{
		"plain":  map[string]any{"k": "v"},
		"nested": Context{"k2": "v2"},
	}

	assert.Equal(t, "v", c.GetMap("plain")["k"])
	assert.Equal(t, "v2", c.GetMap("nested")["k2"])
	assert.Nil(t, c.GetMap("missing"))
}

func TestContext_GetStringAndBool(t *testing.T) {
	c := Context{"s": "hello", "b": true, "n": 1}
	assert.Equal(t, "hello", c.GetString("s"))
	assert.Equal(t, "", c.GetString("n"))
	assert.True(t, c.GetBool("b"))
	assert.False(t, c.GetBool("n"))
}
