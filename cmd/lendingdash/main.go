package main

import "lending-snapshots/internal/cli"

func main() {
	cli.Execute()
}
