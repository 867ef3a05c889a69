package main

import "github.com/notargets/gotidal/cmd"

func main() {
	cmd.Execute()
}
