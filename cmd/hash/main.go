// Package main is a utility for generating bcrypt hashes of account passwords.
// Workboard stores only bcrypt hashes, so this tool is used when seeding an
// identity row by hand in a development database without going through the
// signup and activation flow.
//
//	go run ./cmd/hash -cost 12 'correct horse battery staple'
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/workboard/workboard/internal/auth"
)

func main() {
	cost := flag.Int("cost", auth.DefaultBcryptCost, "bcrypt work factor (4-31)")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: hash [-cost N] PASSWORD")
		os.Exit(2)
	}

	password := flag.Arg(0)
	hash, err := auth.HashPassword(password, *cost)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if !auth.VerifyPassword(password, hash) {
		fmt.Fprintln(os.Stderr, "error: generated hash does not verify")
		os.Exit(1)
	}
	fmt.Println(hash)
}
