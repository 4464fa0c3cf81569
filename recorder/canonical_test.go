package recorder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalValue_SortsMapKeys(t *testing.T) {
	a, err := CanonicalValue(Map{"b": Int(2), "a": Int(1)})
	require.NoError(t, err)
	assert.Equal(t, `{"a":1,"b":2}`, string(a))
}

func TestCanonicalValue_NFCNormalization(t *testing.T) {
	// "é" precomposed vs. "e" + combining acute accent.
	composed := String("café")
	decomposed := String("café")

	a, err := CanonicalValue(composed)
	require.NoError(t, err)
	b, err := CanonicalValue(decomposed)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestValuesEqual(t *testing.T) {
	assert.True(t, ValuesEqual(
		Map{"x": List{Int(1), Float(2)}},
		Map{"x": List{Int(1), Float(2)}},
	))
	assert.False(t, ValuesEqual(Int(1), Float(1)), "int and float are distinct values")
	assert.False(t, ValuesEqual(List{Int(1)}, List{Int(2)}))
}

func TestArgsFingerprint_Deterministic(t *testing.T) {
	args := []Value{Int(1), String("x")}
	kwargs := Map{"k": Bool(true)}

	f1, err := ArgsFingerprint(args, kwargs)
	require.NoError(t, err)
	f2, err := ArgsFingerprint(args, kwargs)
	require.NoError(t, err)
	assert.Equal(t, f1, f2)
	assert.Len(t, f1, 64, "hex-encoded SHA-256")
}

func TestArgsFingerprint_SensitiveToArguments(t *testing.T) {
	base, err := ArgsFingerprint([]Value{Int(1)}, nil)
	require.NoError(t, err)

	other, err := ArgsFingerprint([]Value{Int(2)}, nil)
	require.NoError(t, err)
	assert.NotEqual(t, base, other)

	// Positional and keyword placement are distinguished.
	kw, err := ArgsFingerprint(nil, Map{"0": Int(1)})
	require.NoError(t, err)
	assert.NotEqual(t, base, kw)
}

func TestArgsFingerprint_NilAndEmptyKwargsAgree(t *testing.T) {
	a, err := ArgsFingerprint([]Value{Int(1)}, nil)
	require.NoError(t, err)
	b, err := ArgsFingerprint([]Value{Int(1)}, Map{})
	require.NoError(t, err)
	assert.Equal(t, a, b)
}
