package cli

import (
	"maps"
	"os"
	"slices"
	"strings"
)

// BuildEnvironment constructs the environment for the server process: the
// caller's environment with extra applied on top. Overridden variables are
// replaced rather than duplicated.
func BuildEnvironment(extra map[string]string) []string {
	env := os.Environ()
	if len(extra) == 0 {
		return env
	}

	env = slices.DeleteFunc(env, func(kv string) bool {
		key, _, _ := strings.Cut(kv, "=")
		_, overridden := extra[key]

		return overridden
	})

	for _, key := range slices.Sorted(maps.Keys(extra)) {
		env = append(env, key+"="+extra[key])
	}

	return env
}
