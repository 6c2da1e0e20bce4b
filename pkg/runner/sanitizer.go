package runner

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/nvrdftd/evolve-ai-infra/pkg/domain"
)

// EnvMaxInputSize overrides InputPolicy.MaxBytes of the default policy.
const EnvMaxInputSize = "EVOLVE_MAX_INPUT_SIZE"

// DefaultMaxInputSize fits a pasted alert payload.
const DefaultMaxInputSize = 16 << 10

var (
	ErrInputTooLarge = errors.New("input exceeds maximum allowed size")
	ErrInvalidUTF8   = errors.New("input contains invalid UTF-8 sequences")
)

// InputPolicy is applied to every message before a run starts.
type InputPolicy struct {
	// MaxBytes rejects longer input. Oversized messages are never truncated.
	MaxBytes int
}

// DefaultPolicy reads its limit from EnvMaxInputSize, falling back to DefaultMaxInputSize.
func DefaultPolicy() InputPolicy {
	p := InputPolicy{MaxBytes: DefaultMaxInputSize}
	if n, err := strconv.Atoi(os.Getenv(EnvMaxInputSize)); err == nil && n > 0 {
		p.MaxBytes = n
	}
	return p
}

// Clean validates input and drops control characters other than newline, tab
// and carriage return, so escape sequences never reach prompts, logs or terminals.
// Input left blank after cleaning fails with domain.ErrEmptyInput.
func (p InputPolicy) Clean(input string) (string, error) {
	if p.MaxBytes > 0 && len(input) > p.MaxBytes {
		return "", fmt.Errorf("%w: size=%d limit=%d", ErrInputTooLarge, len(input), p.MaxBytes)
	}
	if !utf8.ValidString(input) {
		return "", ErrInvalidUTF8
	}
	if strings.IndexFunc(input, unsafeControl) >= 0 {
		input = strings.Map(func(r rune) rune {
			if unsafeControl(r) {
				return -1
			}
			return r
		}, input)
	}
	if strings.TrimSpace(input) == "" {
		return "", domain.ErrEmptyInput
	}
	return input, nil
}

// SanitizeInput applies DefaultPolicy.
func SanitizeInput(input string) (string, error) {
	return DefaultPolicy().Clean(input)
}

// Rejected reports whether err comes from an input policy, as opposed to a
// failure to start the run.
func Rejected(err error) bool {
	return errors.Is(err, ErrInputTooLarge) || errors.Is(err, ErrInvalidUTF8) || errors.Is(err, domain.ErrEmptyInput)
}

func unsafeControl(r rune) bool {
	return unicode.IsControl(r) && r != '\n' && r != '\t' && r != '\r'
}
