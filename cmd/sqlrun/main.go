package main

import "github.com/ieshan/sqlrun/internal/cli"

var execute = cli.Execute

func main() {
	execute()
}
