package launch

import (
	"github.com/bioagent/molft/internal/config"
)

// BuildEnvironment assembles the variables exported to the child process.
//
// The launcher environment (cache paths, API keys, visible devices) is
// exported only for variables that are set. Task-level variables are applied
// afterwards and win on conflict.
//
// Parameters:
//   - env: launcher environment
//   - taskEnv: per-task variables from the preset
//
// Returns:
//   - A new map; neither input is modified
func BuildEnvironment(env config.EnvConfig, taskEnv map[string]string) map[string]string {
	out := env.Exports()
	for k, v := range taskEnv {
		out[k] = v
	}
	return out
}
