// The main package for the gdm-pipeline executable.
package main

import "github.com/gdmlabs/defense-metrics-pipeline/cmd"

func main() {
	cmd.Execute()
}
