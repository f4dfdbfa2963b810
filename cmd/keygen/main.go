// AngelaMos | 2026
// main.go

package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/edunlpx/identity/internal/auth"
)

func main() {
	privatePath := flag.String(
		"private",
		"keys/private.pem",
		"output path for the ES256 private key",
	)
	publicPath := flag.String(
		"public",
		"keys/public.pem",
		"output path for the ES256 public key",
	)
	flag.Parse()

	if err := auth.GenerateKeyPair(*privatePath, *publicPath); err != nil {
		fmt.Fprintf(os.Stderr, "keygen: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("wrote %s and %s\n", *privatePath, *publicPath)
}
