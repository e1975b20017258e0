package owner

import (
	"cmp"
	"fmt"
	"strconv"
	"sync"

	"github.com/Masterminds/semver/v3"
	"github.com/gobwas/glob"

	"github.com/roach88/atplug/internal/descriptor"
)

// Property names read by the key parsers.
const (
	KeyVersion  = "version"
	KeyPattern  = "pattern"
	KeyPriority = "priority"
)

func requireID(d descriptor.Descriptor) (string, error) {
	id, ok := d.Property(KeyID)
	if !ok {
		return "", fmt.Errorf("missing %q property", KeyID)
	}
	return id, nil
}

// VersionKey identifies a plug by id and semantic version.
type VersionKey struct {
	ID      string
	Version string
}

// ParseVersionKey reads the "id" and "version" properties. The version must
// be a valid semantic version and is stored in canonical form.
func ParseVersionKey(d descriptor.Descriptor) (VersionKey, error) {
	id, err := requireID(d)
	if err != nil {
		return VersionKey{}, err
	}
	raw, ok := d.Property(KeyVersion)
	if !ok {
		return VersionKey{}, fmt.Errorf("missing %q property", KeyVersion)
	}
	v, err := semver.NewVersion(raw)
	if err != nil {
		return VersionKey{}, fmt.Errorf("invalid %q property %q: %w", KeyVersion, raw, err)
	}
	return VersionKey{ID: id, Version: v.String()}, nil
}

// Satisfies returns a predicate accepting keys whose version is within the
// constraint, for example ">= 1.2, < 2".
func Satisfies(constraint string) (func(VersionKey) bool, error) {
	c, err := semver.NewConstraint(constraint)
	if err != nil {
		return nil, fmt.Errorf("invalid version constraint %q: %w", constraint, err)
	}
	return func(k VersionKey) bool {
		v, err := semver.NewVersion(k.Version)
		return err == nil && c.Check(v)
	}, nil
}

// NewestFirst orders version keys from the highest version to the lowest.
func NewestFirst(a, b VersionKey) int {
	va, errA := semver.NewVersion(a.Version)
	vb, errB := semver.NewVersion(b.Version)
	if errA != nil || errB != nil {
		return cmp.Compare(b.Version, a.Version)
	}
	return vb.Compare(va)
}

// GlobKey identifies a plug by id and the glob pattern of names it handles,
// such as "*.{yaml,yml}".
type GlobKey struct {
	ID      string
	Pattern string
}

var globs sync.Map // pattern -> glob.Glob

func compileGlob(pattern string) (glob.Glob, error) {
	if g, ok := globs.Load(pattern); ok {
		return g.(glob.Glob), nil
	}
	g, err := glob.Compile(pattern, '/')
	if err != nil {
		return nil, err
	}
	globs.Store(pattern, g)
	return g, nil
}

// ParseGlobKey reads the "id" and "pattern" properties. The pattern must
// compile.
func ParseGlobKey(d descriptor.Descriptor) (GlobKey, error) {
	id, err := requireID(d)
	if err != nil {
		return GlobKey{}, err
	}
	pattern, ok := d.Property(KeyPattern)
	if !ok {
		return GlobKey{}, fmt.Errorf("missing %q property", KeyPattern)
	}
	if _, err := compileGlob(pattern); err != nil {
		return GlobKey{}, fmt.Errorf("invalid %q property %q: %w", KeyPattern, pattern, err)
	}
	return GlobKey{ID: id, Pattern: pattern}, nil
}

// Match reports whether name matches the key's pattern.
func (k GlobKey) Match(name string) bool {
	g, err := compileGlob(k.Pattern)
	return err == nil && g.Match(name)
}

// Matching returns a predicate accepting keys whose pattern matches name.
func Matching(name string) func(GlobKey) bool {
	return func(k GlobKey) bool { return k.Match(name) }
}

// PriorityKey identifies a plug by id and an integer priority.
type PriorityKey struct {
	ID       string
	Priority int
}

// ParsePriorityKey reads the "id" and "priority" properties. A missing
// priority is zero.
func ParsePriorityKey(d descriptor.Descriptor) (PriorityKey, error) {
	id, err := requireID(d)
	if err != nil {
		return PriorityKey{}, err
	}
	k := PriorityKey{ID: id}
	if raw, ok := d.Property(KeyPriority); ok {
		p, err := strconv.Atoi(raw)
		if err != nil {
			return PriorityKey{}, fmt.Errorf("invalid %q property %q: %w", KeyPriority, raw, err)
		}
		k.Priority = p
	}
	return k, nil
}

// HighestPriority orders priority keys from the highest priority down.
func HighestPriority(a, b PriorityKey) int {
	return cmp.Compare(b.Priority, a.Priority)
}
