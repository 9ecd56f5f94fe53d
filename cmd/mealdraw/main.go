package main

import "github.com/jmcleod/mealdraw/cmd/mealdraw/cmd"

func main() {
	cmd.Execute()
}
