package main

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/aabboodi/edgehub/internal/dash"
)

func main() {
	addr := pflag.String("addr", "http://127.0.0.1:8080", "hub HTTP base URL")
	pflag.Parse()

	if err := dash.Run(*addr); err != nil {
		fmt.Fprintf(os.Stderr, "edgehub-top: %v\n", err)
		os.Exit(1)
	}
}
