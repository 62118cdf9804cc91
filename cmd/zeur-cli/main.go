package main

import "zeur-core/cmd/zeur-cli/cmd"

func main() {
	cmd.Execute()
}
