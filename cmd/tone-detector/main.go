package main

import "github.com/oshokin/tone-alert/cmd/tone-detector/cmd"

func main() {
	cmd.Execute()
}
