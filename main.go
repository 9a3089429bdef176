package main

import "github.com/egarcia74/warp-sql-server-mcp/cmd"

func main() {
	cmd.Execute()
}
