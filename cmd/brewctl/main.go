package main

import (
	"context"
	"errors"
	"fmt"
	"os"
)

// errSilent fails the command after it already reported why.
var errSilent = errors.New("")

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		if !errors.Is(err, context.Canceled) && !errors.Is(err, errSilent) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}
