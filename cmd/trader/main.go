package main

import "github.com/rustyeddy/tradecore/internal/cli"

func main() {
	cli.Execute()
}
