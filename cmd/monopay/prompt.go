package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/sipeed/monopay/pkg/config"
)

// readSecret reads a line without echo when stdin is a terminal.
func readSecret(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(b)), nil
	}
	return readLine()
}

var stdinReader = bufio.NewReader(os.Stdin)

func readLine() (string, error) {
	line, err := stdinReader.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func confirm(prompt string) bool {
	fmt.Fprintf(os.Stderr, "%s [y/N]: ", prompt)
	line, err := readLine()
	if err != nil {
		return false
	}
	return strings.EqualFold(line, "y") || strings.EqualFold(line, "yes")
}

func storePassphrase(cfg *config.Config) ([]byte, error) {
	if env := cfg.Storage.PassphraseEnv; env != "" {
		if v := os.Getenv(env); v != "" {
			return []byte(v), nil
		}
	}
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return nil, fmt.Errorf("vault passphrase required: set %s", cfg.Storage.PassphraseEnv)
	}
	p, err := readSecret("Vault passphrase: ")
	if err != nil {
		return nil, err
	}
	if p == "" {
		return nil, errors.New("empty vault passphrase")
	}
	return []byte(p), nil
}
