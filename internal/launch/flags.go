package launch

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/bioagent/molft/internal/config"
	"github.com/bioagent/molft/internal/logger"
)

type flagEntry struct {
	name     string
	value    string
	hasValue bool
}

// FlagList is an ordered list of "--name value" command-line flags.
//
// Order is insertion order; setting an existing flag replaces its value in
// place so that generated commands stay stable when overrides are applied.
type FlagList struct {
	entries []flagEntry
}

func (l *FlagList) index(name string) int {
	for i, e := range l.entries {
		if e.name == name {
			return i
		}
	}
	return -1
}

func (l *FlagList) put(e flagEntry) {
	if i := l.index(e.name); i >= 0 {
		l.entries[i] = e
		return
	}
	l.entries = append(l.entries, e)
}

// Set sets a flag with a string value.
func (l *FlagList) Set(name, value string) {
	l.put(flagEntry{name: name, value: value, hasValue: true})
}

// SetIfNotEmpty sets a flag only when value is non-empty.
func (l *FlagList) SetIfNotEmpty(name, value string) {
	if value != "" {
		l.Set(name, value)
	}
}

// SetInt sets an integer flag.
func (l *FlagList) SetInt(name string, value int) {
	l.Set(name, strconv.Itoa(value))
}

// SetIntIfPositive sets an integer flag only when value > 0.
func (l *FlagList) SetIntIfPositive(name string, value int) {
	if value > 0 {
		l.SetInt(name, value)
	}
}

// SetFloat sets a float flag using the shortest exact representation
// (2e-05, 0.03, 0).
func (l *FlagList) SetFloat(name string, value float64) {
	l.Set(name, strconv.FormatFloat(value, 'g', -1, 64))
}

// SetBool sets a boolean flag as "True"/"False", the spelling the
// trainer's argument parser expects.
func (l *FlagList) SetBool(name string, value bool) {
	if value {
		l.Set(name, "True")
	} else {
		l.Set(name, "False")
	}
}

// Switch sets a flag that takes no value.
func (l *FlagList) Switch(name string) {
	l.put(flagEntry{name: name})
}

// Get returns a flag's value and whether it is present.
func (l *FlagList) Get(name string) (string, bool) {
	if i := l.index(name); i >= 0 {
		return l.entries[i].value, true
	}
	return "", false
}

// Names returns flag names in order.
func (l *FlagList) Names() []string {
	names := make([]string, len(l.entries))
	for i, e := range l.entries {
		names[i] = e.name
	}
	return names
}

// Len returns the number of flags.
func (l *FlagList) Len() int {
	return len(l.entries)
}

// Args renders the list as command-line arguments.
func (l *FlagList) Args() []string {
	args := make([]string, 0, 2*len(l.entries))
	for _, e := range l.entries {
		args = append(args, "--"+e.name)
		if e.hasValue {
			args = append(args, e.value)
		}
	}
	return args
}

// ApplyOverrides applies "key=value" overrides.
//
// Keys may be written in snake_case, kebab-case or camelCase and may carry a
// leading "--"; they are normalised to the trainer's snake_case flag names.
// An empty value produces a switch flag without a value. Existing flags are
// replaced in place, new ones are appended.
//
// Parameters:
//   - params: overrides in key=value form
//
// Returns:
//   - Error naming the first malformed override
//
// Example:
//
//	l.ApplyOverrides([]string{"learningRate=1e-4", "--seed=7"})
//	// --learning_rate 1e-4 ... --seed 7
func (l *FlagList) ApplyOverrides(params []string) error {
	for _, param := range params {
		if err := config.ValidateParamFormat(strings.TrimPrefix(strings.TrimSpace(param), "--")); err != nil {
			return fmt.Errorf("invalid override %q: %w", param, err)
		}

		parts := strings.SplitN(strings.TrimSpace(param), "=", 2)
		name := NormalizeFlagName(parts[0])
		value := strings.TrimSpace(parts[1])

		if value == "" {
			l.Switch(name)
		} else {
			l.Set(name, value)
		}
		logger.Debug("Override: %s -> --%s %s", param, name, value)
	}
	return nil
}

// NormalizeFlagName converts a parameter key to the trainer's flag format.
//
// Conversion rules:
//  1. Leading dashes are dropped (--seed -> seed)
//  2. kebab-case -> snake_case (max-length -> max_length)
//  3. camelCase -> snake_case (learningRate -> learning_rate)
//  4. The result is lower-case
func NormalizeFlagName(key string) string {
	key = strings.TrimLeft(strings.TrimSpace(key), "-")

	var result strings.Builder
	for i, ch := range key {
		switch {
		case ch == '-':
			result.WriteRune('_')
		case ch >= 'A' && ch <= 'Z':
			if i > 0 && key[i-1] != '-' && key[i-1] != '_' && !(key[i-1] >= 'A' && key[i-1] <= 'Z') {
				result.WriteRune('_')
			}
			result.WriteRune(ch)
		default:
			result.WriteRune(ch)
		}
	}

	return strings.ToLower(result.String())
}
