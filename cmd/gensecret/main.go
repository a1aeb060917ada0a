// Command gensecret prints a random hex key to use as SECRET_KEY of the local identity provider.
package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/spf13/pflag"
)

const (
	defaultKeyBytes = 32

	// Size of HS256 hash output
	minKeyBytes = 32
)

func main() {
	secret, err := generate(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "error while generating secret key: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(secret)
}

func generate(args []string) (string, error) {
	fs := pflag.NewFlagSet("gensecret", pflag.ContinueOnError)
	size := fs.IntP("bytes", "b", defaultKeyBytes, "Key length in bytes")
	if err := fs.Parse(args); err != nil {
		return "", err
	}
	if *size < minKeyBytes {
		return "", fmt.Errorf("key must be at least %d bytes, got %d", minKeyBytes, *size)
	}

	b := make([]byte, *size)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}

	return hex.EncodeToString(b), nil
}
