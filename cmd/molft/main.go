// Command molft launches fine-tuning and evaluation of the molecule
// language model.
package main

import (
	"context"
	"errors"
	"os"

	"github.com/bioagent/molft/cmd/molft/app"
	"github.com/bioagent/molft/internal/launch"
)

func main() {
	if err := app.Execute(context.Background(), os.Args[1:], os.Stdout, os.Stderr); err != nil {
		var exitErr *launch.ExitError
		if errors.As(err, &exitErr) && exitErr.Code > 0 {
			os.Exit(exitErr.Code)
		}
		os.Exit(1)
	}
}
