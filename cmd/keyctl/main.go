package main

import (
	"github.com/turtacn/keyvault/cmd/cli"
)

// main is the entry point for the keyctl command-line tool.
// main 是 keyctl 命令行工具的入口点。
func main() {
	cli.Execute()
}
