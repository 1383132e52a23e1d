// livecode compiles and runs Go snippets in an embedded interpreter,
// from the command line, over MCP or over a gRPC bridge.
package main

import "github.com/ppiankov/livecode/internal/cli"

func main() {
	cli.Execute()
}
