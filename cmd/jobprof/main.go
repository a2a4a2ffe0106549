package main

import (
	"jobprof.sh/cmd/jobprof/cmd"
)

func main() {
	cmd.Execute()
}
