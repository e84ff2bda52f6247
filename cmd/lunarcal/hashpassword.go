package main

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/term"

	"lunarcal/internal/auth"
)

// runHashPassword prompts for a password twice without echo and prints an
// Argon2id hash for basic_auth.password_hash.
func runHashPassword() error {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return errors.New("hash-password needs an interactive terminal")
	}

	fmt.Fprint(os.Stderr, "Enter password:   ")
	pw, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return fmt.Errorf("reading password: %w", err)
	}
	fmt.Fprint(os.Stderr, "Confirm password: ")
	confirm, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return fmt.Errorf("reading confirmation: %w", err)
	}
	if string(pw) != string(confirm) {
		return errors.New("passwords do not match")
	}

	hash, err := auth.HashPassword(string(pw))
	if err != nil {
		return err
	}
	fmt.Printf("password_hash: %q\n", hash)
	return nil
}
