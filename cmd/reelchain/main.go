package main

import "github.com/forPelevin/reelchain/internal/cli"

func main() {
	cli.Main()
}
