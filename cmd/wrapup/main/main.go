package main

import (
	"os"

	"github.com/arthur-debert/wrapup/cmd/wrapup"
)

func main() {
	os.Exit(wrapup.Execute(wrapup.NewRootCmd()))
}
