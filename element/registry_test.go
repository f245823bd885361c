package element

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPlugin(initFn func(p *Plugin) error) PluginDesc {
	return PluginDesc{
		Name:        "testplugin",
		Description: "Test plugin",
		Version:     "0.1",
		License:     "MIT",
		Init:        initFn,
	}
}

func TestRegistryMake(t *testing.T) {
	r := NewRegistry()
	err := r.RegisterPlugin(testPlugin(func(p *Plugin) error {
		return p.RegisterElement("testrelay", RankNone, testClass(), func(name string) (*Element, error) {
			return New(testClass(), Params{Name: name})
		})
	}))
	require.Nil(t, err)

	e, err := r.Make("testrelay", "relay0")
	require.Nil(t, err)
	assert.Equal(t, "relay0", e.Name())

	f, ok := r.Factory("testrelay")
	require.True(t, ok)
	assert.Equal(t, "testplugin", f.Plugin)
	assert.Equal(t, "Relays everything", f.Class.Metadata().Description)
	assert.Len(t, r.Factories(), 1)

	_, err = r.Make("missing", "")
	assert.True(t, errors.Is(err, ErrNoSuchFactory))
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	r := NewRegistry()
	initFn := func(p *Plugin) error { return nil }
	assert.Nil(t, r.RegisterPlugin(testPlugin(initFn)))
	assert.True(t, errors.Is(r.RegisterPlugin(testPlugin(initFn)), ErrPluginExists))
	assert.True(t, errors.Is(r.RegisterPlugin(PluginDesc{Name: "x"}), ErrInvalidPlugin))
}

func TestRegistryFailedInitRollsBack(t *testing.T) {
	r := NewRegistry()
	err := r.RegisterPlugin(testPlugin(func(p *Plugin) error {
		if err := p.RegisterElement("a", RankNone, testClass(), nil); err != nil {
			return err
		}
		return errors.New("boom")
	}))
	assert.NotNil(t, err)
	_, ok := r.Plugin("testplugin")
	assert.False(t, ok)
	_, ok = r.Factory("a")
	assert.False(t, ok)
}

func TestClassInitRunsOnce(t *testing.T) {
	calls := 0
	initFn := func(c *Class) { calls++ }
	a := RegisterClass("TestOnce", initFn)
	b := RegisterClass("TestOnce", initFn)
	assert.Same(t, a, b)
	assert.Equal(t, 1, calls)
}
