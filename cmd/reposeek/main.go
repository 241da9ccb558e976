package main

import "github.com/reposeek/reposeek/internal/cli"

func main() {
	cli.Execute()
}
