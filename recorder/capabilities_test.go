package recorder

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type lenOnly struct{}

func (lenOnly) Len() int { return 0 }

type closer struct{}

func (closer) Close() error { return nil }

func TestDetectCapabilities(t *testing.T) {
	caps := DetectCapabilities(func() {})
	assert.True(t, caps.Has(CanCall))
	assert.True(t, caps.Has(CanBool))
	assert.False(t, caps.Has(CanLen))

	caps = DetectCapabilities([]int{1, 2})
	assert.True(t, caps.Has(CanLen))
	assert.True(t, caps.Has(CanIndex))
	assert.True(t, caps.Has(CanIterate))
	assert.False(t, caps.Has(CanCall))

	caps = DetectCapabilities(map[string]int{})
	assert.True(t, caps.Has(CanLen))
	assert.True(t, caps.Has(CanIndex))

	// A plain struct supports nothing, not even truthiness.
	caps = DetectCapabilities(struct{ X int }{})
	assert.Equal(t, Capabilities(0), caps)

	// Method-driven capabilities.
	assert.True(t, DetectCapabilities(lenOnly{}).Has(CanLen))
	assert.True(t, DetectCapabilities(closer{}).Has(CanEnterExit))

	assert.True(t, DetectCapabilities(nil).Has(CanBool))
}

func TestCapabilities_NamesRoundTrip(t *testing.T) {
	caps := Capabilities(CanCall | CanLen | CanEnterExit)
	names := caps.Names()
	assert.Equal(t, []string{"__call__", "__enter__", "__len__"}, names)
	assert.Equal(t, caps, CapabilitiesFromNames(names))

	// Unknown names are ignored.
	assert.Equal(t, Capabilities(CanCall), CapabilitiesFromNames([]string{"__call__", "__future__"}))

	assert.Empty(t, Capabilities(0).Names())
	assert.Equal(t, "none", Capabilities(0).String())
}

func TestTruthy(t *testing.T) {
	assert.False(t, truthy(nil))
	assert.False(t, truthy(0))
	assert.True(t, truthy(-1))
	assert.False(t, truthy(""))
	assert.True(t, truthy("x"))
	assert.False(t, truthy([]int{}))
	assert.True(t, truthy([]int{1}))
	var p *int
	assert.False(t, truthy(p))
}
