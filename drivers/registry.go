package drivers

import (
	"os"
	"strings"

	"github.com/pkg/errors"
)

// Constructor takes a driver-specific config string (optionally empty) and
// returns a Driver.
type Constructor func(config string) (Driver, error)

var (
	registeredConstructors = make(map[string]Constructor)
	firstRegistered        string
)

// Register a driver under the given name, with a constructor that receives
// the configuration string passed along by New or NewWithConfig.
//
// To be safe, call Register during initialization of a package.
func Register(name string, constructor Constructor) {
	if len(registeredConstructors) == 0 {
		firstRegistered = name
	}
	registeredConstructors[name] = constructor
}

// DefaultConfig is the driver configuration to use if specified.
//
// See NewWithConfig for the format of the configuration string.
var DefaultConfig string

// ForceglDriver is the environment variable with the default driver
// configuration to use.
//
// The format of config is "<driver_name>:<driver_configuration>".
// The "<driver_name>" is the name of a registered driver (e.g.: "headless")
// and "<driver_configuration>" is driver specific.
const ForceglDriver = "FORCEGL_DRIVER"

// New returns a new default Driver.
//
// The default is:
//
// 1. The environment FORCEGL_DRIVER is used as a configuration if defined.
// 2. Next the variable DefaultConfig is used as a configuration if defined.
// 3. The first registered driver is used with an empty configuration.
func New() (Driver, error) {
	config, found := os.LookupEnv(ForceglDriver)
	if found {
		return NewWithConfig(config)
	}
	if DefaultConfig != "" {
		return NewWithConfig(DefaultConfig)
	}
	return NewWithConfig("")
}

// NewWithConfig takes a configuration string formatted as
// "<driver_name>:<driver_configuration>" and builds the named driver.
// An empty name selects the first registered driver.
func NewWithConfig(config string) (Driver, error) {
	if len(registeredConstructors) == 0 {
		return nil, errors.New(`no registered compute drivers -- maybe import the headless one with import _ "github.com/forcegl/forcegl/drivers/headless"`)
	}
	driverName := firstRegistered
	driverConfig := config
	if idx := strings.Index(config, ":"); idx != -1 {
		driverName = config[:idx]
		driverConfig = config[idx+1:]
	} else if config != "" {
		driverName = config
		driverConfig = ""
	}
	constructor, found := registeredConstructors[driverName]
	if !found {
		return nil, errors.Errorf("can't find compute driver %q for configuration %q given", driverName, config)
	}
	return constructor(driverConfig)
}
