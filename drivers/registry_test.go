package drivers

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type stubDriver struct {
	name   string
	config string
}

func (d *stubDriver) Name() string { return d.name }

func (d *stubDriver) Platforms() ([]Platform, error) { return nil, nil }

func registerStub(t *testing.T, name string) {
	Register(name, func(config string) (Driver, error) {
		return &stubDriver{name: name, config: config}, nil
	})
	t.Cleanup(func() {
		delete(registeredConstructors, name)
	})
}

func TestNewWithConfig(t *testing.T) {
	saved := registeredConstructors
	registeredConstructors = make(map[string]Constructor)
	t.Cleanup(func() { registeredConstructors = saved })

	_, err := NewWithConfig("")
	require.Error(t, err, "no drivers registered yet")

	registerStub(t, "alpha")
	registerStub(t, "beta")

	// Empty config selects the first registered driver.
	d, err := NewWithConfig("")
	require.NoError(t, err)
	require.Equal(t, "alpha", d.Name())

	// A bare name selects that driver with an empty configuration.
	d, err = NewWithConfig("beta")
	require.NoError(t, err)
	require.Equal(t, "beta", d.Name())
	require.Empty(t, d.(*stubDriver).config)

	// "<name>:<config>" passes the configuration through.
	d, err = NewWithConfig("beta:opt=1")
	require.NoError(t, err)
	require.Equal(t, "beta", d.Name())
	require.Equal(t, "opt=1", d.(*stubDriver).config)

	_, err = NewWithConfig("gamma")
	require.Error(t, err, "unknown driver name must fail")
}

func TestNewReadsEnvironment(t *testing.T) {
	saved := registeredConstructors
	registeredConstructors = make(map[string]Constructor)
	t.Cleanup(func() { registeredConstructors = saved })

	registerStub(t, "alpha")
	registerStub(t, "beta")

	t.Setenv(ForceglDriver, "beta:from-env")
	d, err := New()
	require.NoError(t, err)
	require.Equal(t, "beta", d.Name())
	require.Equal(t, "from-env", d.(*stubDriver).config)
}

func TestClassMatches(t *testing.T) {
	require.True(t, ClassAll.Matches(ClassCPU))
	require.True(t, ClassAll.Matches(ClassGPU))
	require.True(t, ClassGPU.Matches(ClassGPU))
	require.False(t, ClassGPU.Matches(ClassCPU))
	require.False(t, ClassCPU.Matches(ClassAccelerator))
}
