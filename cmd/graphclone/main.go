// Command graphclone seeds, clones and inspects entity graphs declared by a
// plan file.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
)

func main() {
	if err := execute(context.Background(), os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("error: %v", err))
		os.Exit(1)
	}
}
