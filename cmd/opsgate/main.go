package main

import "github.com/opsgate/opsgate/internal/cli"

func main() {
	cli.Execute()
}
