// Package main is the entrypoint for the chat relay server.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aelexs/chat-relay/internal/server"
)

func main() {
	if err := server.Run(context.Background(), nil); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}
