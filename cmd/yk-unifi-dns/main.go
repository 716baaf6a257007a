package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/yuriy-kovalchuk/yk-unifi-dns/cmd/yk-unifi-dns/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		code := 1
		var exitErr *commands.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.Code
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(code)
	}
}
