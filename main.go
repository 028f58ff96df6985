package main

import "openworker/internal/cli"

func main() {
	cli.Execute()
}
