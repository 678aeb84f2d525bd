// Package testing prepares the floorflow binaries for go test.
package testing

import (
	"os"
	"sort"
	"sync"
	stdtesting "testing"
)

// Env lists the variables applied before the binaries' tests run. Values the
// caller already exported are kept.
var Env = map[string]string{
	"FLOORFLOW_TEST_MODE": "1",
	"AUDIT_MODE":          "sync",
	"ORDER_SYNC_ENABLED":  "false",
	"LOG_LEVEL":           "error",
}

var once sync.Once

// Apply exports Env once per process and returns the names it set.
func Apply() []string {
	var applied []string
	once.Do(func() {
		for name, value := range Env {
			if _, ok := os.LookupEnv(name); ok && name != "FLOORFLOW_TEST_MODE" {
				continue
			}
			_ = os.Setenv(name, value)
			applied = append(applied, name)
		}
		sort.Strings(applied)
	})
	return applied
}

func init() {
	Apply()
}

// TestMain runs m with startup of the servers disabled.
func TestMain(m *stdtesting.M) {
	Apply()
	os.Exit(m.Run())
}
