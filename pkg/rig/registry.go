package rig

import (
	"fmt"

	"github.com/pingcap/tirig/pkg/config"
)

// Scenario pairs a named handler with the state token it runs at.
// Tokens only need to be unique within one machine.
type Scenario struct {
	Name    string
	State   State
	Handler Handler
}

// SuiteCreator builds the ordered scenario list for one suite.
type SuiteCreator func(cfg *config.Config) []Scenario

var (
	suites     = map[string]SuiteCreator{}
	suiteNames []string
)

// RegisterSuite registers a scenario suite. Not thread-safe
func RegisterSuite(name string, creator SuiteCreator) {
	if _, ok := suites[name]; ok {
		panic(fmt.Sprintf("suite %s is already registered", name))
	}
	suites[name] = creator
	suiteNames = append(suiteNames, name)
}

// GetSuite gets the registered suite creator.
func GetSuite(name string) SuiteCreator {
	return suites[name]
}

// Suites returns registered suite names in registration order.
func Suites() []string {
	return append([]string(nil), suiteNames...)
}
