package main

import "github.com/convene-events/server/cmd/server/cmd"

func main() {
	cmd.Execute()
}
