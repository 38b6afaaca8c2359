package main

import "github.com/loopviz/loopviz/internal/cli"

func main() {
	cli.Execute()
}
