package main

import "github.com/snapguard-project/snapguard/internal/cli"

func main() {
	cli.Execute()
}
