package semver

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

type (
	// V is structured semantic version representation
	V struct {
		Major, Minor, Patch uint
		PreRelease          string
		BuildMetadata       []string
	}
)

// ErrInvalid - returned by Parse for strings which are not MAJOR.MINOR.PATCH[-PRE][+BUILD].
var ErrInvalid = errors.New("semver: invalid version")

func (v V) String() string {
	buf := strings.Builder{}
	buf.WriteString(strconv.FormatUint(uint64(v.Major), 10))
	buf.WriteByte('.')
	buf.WriteString(strconv.FormatUint(uint64(v.Minor), 10))
	buf.WriteByte('.')
	buf.WriteString(strconv.FormatUint(uint64(v.Patch), 10))
	if v.PreRelease != "" {
		buf.WriteByte('-')
		buf.WriteString(v.PreRelease)
	}
	if len(v.BuildMetadata) > 0 {
		buf.WriteByte('+')
		buf.WriteString(strings.Join(v.BuildMetadata, "."))
	}

	return buf.String()
}

// Equal - reports whether both versions have the same precedence.
// Build metadata is ignored, as semantic versioning demands.
func (v V) Equal(other V) bool {
	return v.Major == other.Major &&
		v.Minor == other.Minor &&
		v.Patch == other.Patch &&
		v.PreRelease == other.PreRelease
}

// Parse - builds V from its string form, an optional leading "v" is accepted.
func Parse(s string) (V, error) {
	raw := strings.TrimPrefix(strings.TrimSpace(s), "v")
	if raw == "" {
		return V{}, fmt.Errorf("%w: empty string", ErrInvalid)
	}

	v := V{}
	if i := strings.IndexByte(raw, '+'); i >= 0 {
		meta := raw[i+1:]
		raw = raw[:i]
		if meta == "" {
			return V{}, fmt.Errorf("%w: empty build metadata in %q", ErrInvalid, s)
		}
		v.BuildMetadata = strings.Split(meta, ".")
	}
	if i := strings.IndexByte(raw, '-'); i >= 0 {
		v.PreRelease = raw[i+1:]
		raw = raw[:i]
		if v.PreRelease == "" {
			return V{}, fmt.Errorf("%w: empty pre-release in %q", ErrInvalid, s)
		}
	}

	parts := strings.Split(raw, ".")
	if len(parts) != 3 {
		return V{}, fmt.Errorf("%w: %q must have 3 numeric parts", ErrInvalid, s)
	}
	nums := [3]uint{}
	for i, p := range parts {
		n, err := strconv.ParseUint(p, 10, 32)
		if err != nil {
			return V{}, fmt.Errorf("%w: %q: %v", ErrInvalid, s, err)
		}
		nums[i] = uint(n)
	}
	v.Major, v.Minor, v.Patch = nums[0], nums[1], nums[2]

	return v, nil
}
