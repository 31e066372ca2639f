// Command mcp exposes the Countdowns API as MCP tools over stdio.
//
// Environment:
//
//	COUNTDOWNS_API_URL       API base URL (default: http://localhost:8080)
//	COUNTDOWNS_API_USERNAME  Basic auth user
//	COUNTDOWNS_API_PASSWORD  Basic auth password
package main

import (
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/server"
	"github.com/tazhate/countdowns/internal/client"
	"github.com/tazhate/countdowns/internal/mcpserver"
)

func main() {
	apiURL := os.Getenv("COUNTDOWNS_API_URL")
	if apiURL == "" {
		apiURL = "http://localhost:8080"
	}
	api := client.New(apiURL, os.Getenv("COUNTDOWNS_API_USERNAME"), os.Getenv("COUNTDOWNS_API_PASSWORD"))

	s := mcpserver.NewServer(api)
	if err := server.ServeStdio(s.MCPServer()); err != nil {
		fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
		os.Exit(1)
	}
}
