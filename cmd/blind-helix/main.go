package main

import "github.com/helix-datasets/blind-helix/internal/cli"

func main() {
	cli.Execute()
}
