// The main package for the munireg executable.
package main

import (
	"github.com/regwatch/munireg/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
