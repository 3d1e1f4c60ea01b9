// shoal is the CLI client for the shoald daemon: it creates, attaches
// to, lists, detaches, and kills named persistent shell sessions.
package main

import (
	"fmt"
	"os"

	"github.com/ianremillard/shoal/cmd/shoal/cmd"
)

func main() {
	if err := cmd.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
