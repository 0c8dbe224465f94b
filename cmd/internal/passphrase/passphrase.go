package passphrase

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"
)

// Source lazily resolves a keystore passphrase from an environment variable or
// by prompting on the terminal. The first result is cached.
type Source struct {
	envVar  string
	label   string
	confirm bool

	// prompt reads a line without echo; replaced in tests.
	prompt func(label string) (string, error)

	once  sync.Once
	value string
	err   error
}

// Option customises a Source.
type Option func(*Source)

// WithConfirmation asks for the passphrase twice. Used when a new keystore is
// written.
func WithConfirmation() Option {
	return func(s *Source) { s.confirm = true }
}

// NewSource checks envVar before prompting for the keystore described by
// label, e.g. "operator keystore".
func NewSource(envVar, label string, opts ...Option) *Source {
	s := &Source{
		envVar: strings.TrimSpace(envVar),
		label:  strings.TrimSpace(label),
		prompt: readTerminal,
	}
	if s.label == "" {
		s.label = "keystore"
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the cached passphrase or resolves it on first use. A set
// environment variable wins; whitespace-only values are rejected.
func (s *Source) Get() (string, error) {
	s.once.Do(func() {
		s.value, s.err = s.resolve()
	})
	return s.value, s.err
}

func (s *Source) resolve() (string, error) {
	if s.envVar != "" {
		if value, ok := os.LookupEnv(s.envVar); ok {
			if strings.TrimSpace(value) == "" {
				return "", fmt.Errorf("%s is set but empty", s.envVar)
			}
			return value, nil
		}
	}

	first, err := s.prompt(fmt.Sprintf("Enter %s passphrase: ", s.label))
	if err != nil {
		if s.envVar != "" {
			return "", fmt.Errorf("%s passphrase required; set %s or run interactively: %w", s.label, s.envVar, err)
		}
		return "", err
	}
	if strings.TrimSpace(first) == "" {
		return "", fmt.Errorf("%s passphrase cannot be empty", s.label)
	}
	if s.confirm {
		second, err := s.prompt(fmt.Sprintf("Repeat %s passphrase: ", s.label))
		if err != nil {
			return "", err
		}
		if first != second {
			return "", errors.New("passphrases do not match")
		}
	}
	return first, nil
}

func readTerminal(label string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("no terminal available")
	}
	fmt.Fprint(os.Stderr, label)
	bytes, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read passphrase: %w", err)
	}
	return string(bytes), nil
}
