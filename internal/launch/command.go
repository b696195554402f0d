// Package launch builds and runs the external trainer and evaluator
// processes.
//
// The package turns a task preset into a Command (program, flags, exported
// environment, working directory) and executes it through a Runner, either
// directly on the host or inside a Docker container. It never interprets the
// child's behaviour: output is streamed through and the exit status is
// reported as-is.
package launch

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/bioagent/molft/internal/config"
)

// Command is a fully assembled external invocation.
type Command struct {
	// Program is the executable, e.g. "deepspeed" or "python".
	Program string

	// Args are the arguments after Program.
	Args []string

	// Env holds the variables molft exports on top of the inherited
	// environment.
	Env map[string]string

	// WorkDir is the directory the program runs in.
	WorkDir string

	// Labels carry run metadata (run id, task id). Container runners attach
	// them to the container; the native runner ignores them.
	Labels map[string]string
}

// Argv returns Program followed by Args.
func (c *Command) Argv() []string {
	return append([]string{c.Program}, c.Args...)
}

// EnvKeys returns the exported variable names sorted.
func (c *Command) EnvKeys() []string {
	keys := make([]string, 0, len(c.Env))
	for k := range c.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Environ merges the exported variables into base (typically os.Environ()).
// Exported values replace inherited ones with the same name.
func (c *Command) Environ(base []string) []string {
	out := make([]string, 0, len(base)+len(c.Env))
	for _, kv := range base {
		key := kv
		if i := strings.IndexByte(kv, '='); i >= 0 {
			key = kv[:i]
		}
		if _, overridden := c.Env[key]; overridden {
			continue
		}
		out = append(out, kv)
	}
	for _, k := range c.EnvKeys() {
		out = append(out, k+"="+c.Env[k])
	}
	return out
}

// EnvList returns only the exported variables as KEY=value pairs, sorted.
func (c *Command) EnvList() []string {
	out := make([]string, 0, len(c.Env))
	for _, k := range c.EnvKeys() {
		out = append(out, k+"="+c.Env[k])
	}
	return out
}

// String renders the command line with shell quoting.
func (c *Command) String() string {
	argv := c.Argv()
	quoted := make([]string, len(argv))
	for i, a := range argv {
		quoted[i] = ShellQuote(a)
	}
	return strings.Join(quoted, " ")
}

// MaskedEnv returns the exported variables with secret values replaced.
func (c *Command) MaskedEnv() map[string]string {
	return MaskSecrets(c.Env)
}

// MaskSecrets returns a copy of env with credential values replaced by a
// fixed placeholder.
func MaskSecrets(env map[string]string) map[string]string {
	out := make(map[string]string, len(env))
	for k, v := range env {
		if config.IsSecretKey(k) && v != "" {
			out[k] = maskValue(v)
		} else {
			out[k] = v
		}
	}
	return out
}

func maskValue(v string) string {
	if len(v) <= 8 {
		return "****"
	}
	return v[:4] + "****"
}

var shellSafe = regexp.MustCompile(`^[A-Za-z0-9_@%+=:,./-]+$`)

// ShellQuote quotes s for POSIX shells when needed.
func ShellQuote(s string) string {
	if s == "" {
		return "''"
	}
	if shellSafe.MatchString(s) {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}

// Describe returns a one-line summary used in logs.
func (c *Command) Describe() string {
	return fmt.Sprintf("%s (%d args, %d exported vars, dir %s)", c.Program, len(c.Args), len(c.Env), c.WorkDir)
}
