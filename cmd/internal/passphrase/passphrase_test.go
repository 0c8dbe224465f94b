package passphrase

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func scripted(answers ...string) func(string) (string, error) {
	return func(string) (string, error) {
		if len(answers) == 0 {
			return "", errors.New("no more input")
		}
		next := answers[0]
		answers = answers[1:]
		return next, nil
	}
}

func TestEnvironmentWins(t *testing.T) {
	t.Setenv("OTO_TEST_PASS", "from-env")
	s := NewSource("OTO_TEST_PASS", "test keystore")
	s.prompt = func(string) (string, error) {
		t.Fatalf("prompt should not be used")
		return "", nil
	}
	got, err := s.Get()
	require.NoError(t, err)
	require.Equal(t, "from-env", got)
}

func TestEmptyEnvironmentRejected(t *testing.T) {
	t.Setenv("OTO_TEST_PASS", "  ")
	_, err := NewSource("OTO_TEST_PASS", "").Get()
	require.ErrorContains(t, err, "set but empty")
}

func TestPromptCachedAndConfirmed(t *testing.T) {
	s := NewSource("", "wallet", WithConfirmation())
	s.prompt = scripted("hunter2", "hunter2")
	got, err := s.Get()
	require.NoError(t, err)
	require.Equal(t, "hunter2", got)

	again, err := s.Get()
	require.NoError(t, err)
	require.Equal(t, got, again)
}

func TestConfirmationMismatch(t *testing.T) {
	s := NewSource("", "wallet", WithConfirmation())
	s.prompt = scripted("one", "two")
	_, err := s.Get()
	require.ErrorContains(t, err, "do not match")
}

func TestPromptFailureMentionsEnv(t *testing.T) {
	s := NewSource("OTO_UNSET_PASS_FOR_TEST", "operator keystore")
	s.prompt = scripted()
	_, err := s.Get()
	require.ErrorContains(t, err, "OTO_UNSET_PASS_FOR_TEST")
}
