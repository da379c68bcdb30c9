package main

import "github.com/ethpandaops/trace-processor/cmd"

func main() {
	cmd.Execute()
}
