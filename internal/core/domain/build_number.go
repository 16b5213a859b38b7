package domain

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// wildcardComponent stands in for "*" and "SNAPSHOT": it is greater than any
// concrete component, so "299.*" sorts after every 299.x build.
const wildcardComponent = math.MaxInt32

// BuildNumber is a host build number such as "232", "IC-232.10072.27" or "299.*"
type BuildNumber struct {
	raw        string
	product    string
	components []int
	wildcard   bool
}

// ParseBuildNumber parses a build number. A wildcard is only allowed as the
// last component and never as the first one.
func ParseBuildNumber(value string) (BuildNumber, error) {
	raw := strings.TrimSpace(value)
	if raw == "" {
		return BuildNumber{}, fmt.Errorf("build number cannot be empty")
	}

	body := raw
	product := ""
	if i := strings.Index(body, "-"); i >= 0 {
		product, body = body[:i], body[i+1:]
		if !isUpperLetters(product) {
			return BuildNumber{}, fmt.Errorf("invalid product code in build number %q", raw)
		}
	}

	parts := strings.Split(body, ".")
	bn := BuildNumber{raw: raw, product: product}
	for i, part := range parts {
		if part == "*" || part == "SNAPSHOT" {
			if i == 0 || i != len(parts)-1 {
				return BuildNumber{}, fmt.Errorf("wildcard must be the last component of build number %q", raw)
			}
			bn.wildcard = true
			bn.components = append(bn.components, wildcardComponent)
			continue
		}
		if !isDigits(part) {
			return BuildNumber{}, fmt.Errorf("invalid component %q in build number %q", part, raw)
		}
		n, err := strconv.Atoi(part)
		if err != nil || n >= wildcardComponent {
			return BuildNumber{}, fmt.Errorf("component %q out of range in build number %q", part, raw)
		}
		bn.components = append(bn.components, n)
	}

	return bn, nil
}

// MustParseBuildNumber is ParseBuildNumber for constants; it panics on error
func MustParseBuildNumber(value string) BuildNumber {
	bn, err := ParseBuildNumber(value)
	if err != nil {
		panic(err)
	}
	return bn
}

// String returns the build number as it was written
func (b BuildNumber) String() string {
	return b.raw
}

// IsZero reports whether b is the zero value
func (b BuildNumber) IsZero() bool {
	return len(b.components) == 0
}

// Product returns the product code prefix ("IC", "IU"), if any
func (b BuildNumber) Product() string {
	return b.product
}

// Major returns the branch number (the first component)
func (b BuildNumber) Major() int {
	if len(b.components) == 0 {
		return 0
	}
	return b.components[0]
}

// IsWildcard reports whether the last component is "*" or "SNAPSHOT"
func (b BuildNumber) IsWildcard() bool {
	return b.wildcard
}

// Compare orders build numbers component by component, ignoring the product
// code. When one is a prefix of the other, the longer one is greater.
func (b BuildNumber) Compare(other BuildNumber) int {
	n := len(b.components)
	if len(other.components) < n {
		n = len(other.components)
	}
	for i := 0; i < n; i++ {
		switch {
		case b.components[i] < other.components[i]:
			return -1
		case b.components[i] > other.components[i]:
			return 1
		}
	}
	switch {
	case len(b.components) < len(other.components):
		return -1
	case len(b.components) > len(other.components):
		return 1
	default:
		return 0
	}
}

// BuildRange is the inclusive compatibility range a plugin declares
type BuildRange struct {
	Since BuildNumber
	// Until is optional; the zero value means open-ended
	Until BuildNumber
}

// NewBuildRange parses since/until bounds. An empty until means no upper bound.
func NewBuildRange(since, until string) (BuildRange, error) {
	s, err := ParseBuildNumber(since)
	if err != nil {
		return BuildRange{}, fmt.Errorf("invalid since-build: %w", err)
	}
	if s.wildcard {
		return BuildRange{}, fmt.Errorf("since-build %q cannot be a wildcard", since)
	}

	r := BuildRange{Since: s}
	if strings.TrimSpace(until) == "" {
		return r, nil
	}

	u, err := ParseBuildNumber(until)
	if err != nil {
		return BuildRange{}, fmt.Errorf("invalid until-build: %w", err)
	}
	if s.Compare(u) > 0 {
		return BuildRange{}, fmt.Errorf("since-build %s is greater than until-build %s", s, u)
	}
	r.Until = u
	return r, nil
}

// SinceBuild returns the lower bound as written
func (r BuildRange) SinceBuild() string {
	return r.Since.String()
}

// UntilBuild returns the upper bound as written, or "" when open-ended
func (r BuildRange) UntilBuild() string {
	return r.Until.String()
}

// Contains reports whether a host with the given build accepts the plugin
func (r BuildRange) Contains(host BuildNumber) bool {
	if host.Compare(r.Since) < 0 {
		return false
	}
	if r.Until.IsZero() {
		return true
	}
	return host.Compare(r.Until) <= 0
}

// String renders the range as "since-until"
func (r BuildRange) String() string {
	if r.Until.IsZero() {
		return r.Since.String() + "+"
	}
	return r.Since.String() + "-" + r.Until.String()
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func isUpperLetters(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < 'A' || c > 'Z' {
			return false
		}
	}
	return true
}
