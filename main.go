package main

import "github.com/notargets/tetrapart/cmd"

func main() {
	cmd.Execute()
}
