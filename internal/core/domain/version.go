package domain

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/Masterminds/semver/v3"
)

// Version is the plugin version written into the descriptor. It is a
// free-form string; semantic versions additionally expose a release channel.
type Version struct {
	value string
}

// NewVersion validates a version string; its text is preserved exactly. The
// version ends up in archive file names and zip entries, so it must start
// with a letter or digit and use only letters, digits, '.', '_', '+' and '-'.
func NewVersion(value string) (Version, error) {
	if value == "" {
		return Version{}, fmt.Errorf("version cannot be empty")
	}
	if !isVersionStart(rune(value[0])) {
		return Version{}, fmt.Errorf("version %q must start with a letter or digit", value)
	}
	for _, r := range value {
		if !isVersionStart(r) && !strings.ContainsRune("._+-", r) {
			return Version{}, fmt.Errorf("version %q contains invalid character %q", value, r)
		}
	}
	return Version{value: value}, nil
}

func isVersionStart(r rune) bool {
	return r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r))
}

// String returns the version exactly as given
func (v Version) String() string {
	return v.value
}

// IsZero reports whether v is the zero value
func (v Version) IsZero() bool {
	return v.value == ""
}

// Semver parses the version as a semantic version
func (v Version) Semver() (*semver.Version, bool) {
	sv, err := semver.NewVersion(v.value)
	if err != nil {
		return nil, false
	}
	return sv, true
}

// Channel derives a release channel from the pre-release label:
// "1.1.0-beta.2" -> "beta", "2.0.0-RC1" -> "rc". Stable or non-semantic
// versions return "".
func (v Version) Channel() string {
	sv, ok := v.Semver()
	if !ok || sv.Prerelease() == "" {
		return ""
	}
	label := strings.SplitN(sv.Prerelease(), ".", 2)[0]
	label = strings.TrimRightFunc(strings.ToLower(label), unicode.IsDigit)
	return strings.Trim(label, "-")
}
