package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra/doc"

	"github.com/arthur-debert/wrapup/cmd/wrapup"
	"github.com/arthur-debert/wrapup/internal/version"
)

func main() {
	header := &doc.GenManHeader{
		Title:   "WRAPUP",
		Section: "1",
		Source:  "wrapup " + version.Version,
		Manual:  "wrapup manual",
	}

	if err := doc.GenMan(wrapup.NewRootCmd(), header, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error generating man page: %v\n", err)
		os.Exit(1)
	}
}
