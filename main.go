// The main package for the trendscraper executable.
package main

import (
	"github.com/JakeFAU/trendscraper/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
