package main

import "github.com/dmaganga/majisync/internal/cli"

func main() {
	cli.Execute()
}
