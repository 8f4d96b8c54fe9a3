// Package main provides the entry point for the fsindex CLI.
package main

import (
	"fmt"
	"os"

	"github.com/Aman-CERP/fsindex/cmd/fsindex/cmd"
	fserrors "github.com/Aman-CERP/fsindex/internal/errors"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprint(os.Stderr, fserrors.FormatForCLI(err))
		os.Exit(1)
	}
}
