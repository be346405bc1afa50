package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/boxrun/boxd/internal/transport"
)

func main() {
	dir := flag.String("dir", "./secrets/keys", "directory to write public_key.pem and private_key.pem into")
	flag.Parse()

	if err := os.MkdirAll(*dir, 0o700); err != nil {
		fmt.Fprintf(os.Stderr, "error creating trust directory: %v\n", err)
		os.Exit(1)
	}

	if err := transport.GenerateKeyPair(*dir); err != nil {
		fmt.Fprintf(os.Stderr, "error generating key pair: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("wrote %s/private_key.pem and %s/public_key.pem\n", *dir, *dir)
}
