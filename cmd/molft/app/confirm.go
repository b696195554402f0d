package app

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/chzyer/readline"
)

// errNotConfirmed aborts a launch the user declined.
var errNotConfirmed = errors.New("aborted")

// confirm asks a yes/no question on the terminal. Anything but y/yes is a
// no; Ctrl+C and EOF are treated as no.
func confirm(question string) (bool, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          question + " [y/N] ",
		InterruptPrompt: "^C",
		EOFPrompt:       "",
	})
	if err != nil {
		return false, fmt.Errorf("failed to initialize readline: %w", err)
	}
	defer rl.Close()

	line, err := rl.Readline()
	if err != nil {
		if err == readline.ErrInterrupt || err == io.EOF {
			return false, nil
		}
		return false, err
	}
	return parseYes(line), nil
}

func parseYes(answer string) bool {
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}

// confirmOverwrite guards a non-empty output directory. Without a terminal
// the launch is refused unless --yes was given.
func confirmOverwrite(dir string, yes bool) error {
	if yes {
		return nil
	}
	if !isTerminal(os.Stdin) {
		return fmt.Errorf("output directory %s is not empty (pass --yes to continue)", dir)
	}
	ok, err := confirm(fmt.Sprintf("Output directory %s is not empty. Continue and possibly overwrite checkpoints?", dir))
	if err != nil {
		return err
	}
	if !ok {
		return errNotConfirmed
	}
	return nil
}
