package main

import "github.com/mautops/shipchange-gin/cmd"

func main() {
	cmd.Execute()
}
