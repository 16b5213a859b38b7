package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestNewVersion(t *testing.T) {
	valid := []string{"1.0.0", "2023.2.5", "1.0-SNAPSHOT", "v2", "1.0.0+build.7"}
	for _, v := range valid {
		t.Run(v, func(t *testing.T) {
			version, err := NewVersion(v)
			require.NoError(t, err)
			assert.Equal(t, v, version.String())
		})
	}

	invalid := []string{
		"", "1.0 .0", "1.0\n", "\t1",
		"1.0/../../escaped", "..", "../1.0", `1.0\..\x`, "1.0:beta", ".1", "-1", "1.0é",
	}
	for _, v := range invalid {
		_, err := NewVersion(v)
		assert.Error(t, err, "NewVersion(%q)", v)
	}
}

func TestVersion_Channel(t *testing.T) {
	tests := []struct {
		version string
		channel string
	}{
		{"1.0.0", ""},
		{"1.1.0-beta.2", "beta"},
		{"2.0.0-RC1", "rc"},
		{"2023.2-eap", "eap"},
		{"1.0.0-1", ""},
		{"not-a-version", ""},
	}

	for _, tt := range tests {
		t.Run(tt.version, func(t *testing.T) {
			v, err := NewVersion(tt.version)
			require.NoError(t, err)
			assert.Equal(t, tt.channel, v.Channel())
		})
	}
}

// Versions are free-form: whatever is accepted is preserved byte for byte.
func TestVersion_PreservesText(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		raw := rapid.StringMatching(`[0-9A-Za-z][0-9A-Za-z.+\-_]{0,20}`).Draw(t, "version")
		v, err := NewVersion(raw)
		if err != nil {
			t.Fatalf("NewVersion(%q) = %v", raw, err)
		}
		if v.String() != raw {
			t.Fatalf("String() = %q, want %q", v.String(), raw)
		}
	})
}
