package main

import (
	"gigawatch/internal/cli"
)

func main() {
	cli.Execute()
}
