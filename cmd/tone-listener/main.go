package main

import "github.com/oshokin/tone-alert/cmd/tone-listener/cmd"

func main() {
	cmd.Execute()
}
