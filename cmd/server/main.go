package main

import "github.com/snaproll/server/cmd/server/cmd"

func main() {
	cmd.Execute()
}
