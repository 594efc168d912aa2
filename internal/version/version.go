package version

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
)

// ErrParse is matched by every error returned from Parse and ParseTag
var ErrParse = errors.New("unrecognised version marker")

// ParseError reports a name that matches neither marker grammar
type ParseError struct {
	Name string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid version marker %q (expected vX.Y.Z.txt or vXYZ.txt)", e.Name)
}

func (e *ParseError) Is(target error) bool {
	return target == ErrParse
}

// Version is the installed or available application version
type Version struct {
	Major  int
	Minor  int
	Patch  int
	Suffix string
}

// Sentinel stands in for "no local version found". It sorts below every real release.
var Sentinel = Version{}

// Ordering is the result of Compare
type Ordering int

const (
	Less    Ordering = -1
	Equal   Ordering = 0
	Greater Ordering = 1
)

func (o Ordering) String() string {
	switch o {
	case Less:
		return "LESS"
	case Greater:
		return "GREATER"
	default:
		return "EQUAL"
	}
}

// Both grammars accept an optional _suffix which is carried but never compared.
var (
	dottedPattern = regexp.MustCompile(`(?i)^v(\d+)\.(\d+)\.(\d+)(?:_(.*))?$`)
	packedPattern = regexp.MustCompile(`(?i)^v(\d)(\d)(\d)(?:_(.*))?$`)
	markerExt     = regexp.MustCompile(`(?i)\.txt$`)
)

// String returns the dotted triple without the leading v
func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// IsSentinel reports whether v is the "no version" placeholder
func (v Version) IsSentinel() bool {
	return v.Major == 0 && v.Minor == 0 && v.Patch == 0
}

// MarkerName returns the dotted marker filename for v (e.g. v2.8.1.txt)
func (v Version) MarkerName() string {
	return "v" + v.String() + ".txt"
}

// PackedMarkerName returns the digit-packed marker filename (e.g. v281.txt).
// ok is false when a component has more than one digit.
func (v Version) PackedMarkerName() (name string, ok bool) {
	if v.Major > 9 || v.Minor > 9 || v.Patch > 9 {
		return "", false
	}
	return fmt.Sprintf("v%d%d%d.txt", v.Major, v.Minor, v.Patch), true
}

// Parse extracts a version from a marker filename such as v2.8.1.txt,
// V3.12.1_beta.txt or v281.txt.
func Parse(name string) (Version, error) {
	if !markerExt.MatchString(name) {
		return Version{}, &ParseError{Name: name}
	}
	return parse(name, markerExt.ReplaceAllString(name, ""))
}

// ParseTag extracts a version from a registry tag such as v1.2.3 or v123
func ParseTag(tag string) (Version, error) {
	return parse(tag, tag)
}

func parse(name, stem string) (Version, error) {
	m := dottedPattern.FindStringSubmatch(stem)
	if m == nil {
		m = packedPattern.FindStringSubmatch(stem)
	}
	if m == nil {
		return Version{}, &ParseError{Name: name}
	}

	var parts [3]int
	for i := range parts {
		n, err := strconv.Atoi(m[i+1])
		if err != nil {
			// Only reachable on overflow; \d+ guarantees digits.
			return Version{}, &ParseError{Name: name}
		}
		parts[i] = n
	}

	return Version{Major: parts[0], Minor: parts[1], Patch: parts[2], Suffix: m[4]}, nil
}

// Compare orders a and b by (major, minor, patch). Suffixes are ignored.
func Compare(a, b Version) Ordering {
	for _, d := range [3]int{a.Major - b.Major, a.Minor - b.Minor, a.Patch - b.Patch} {
		if d < 0 {
			return Less
		}
		if d > 0 {
			return Greater
		}
	}
	return Equal
}

// IsAheadOfRemote reports the anomalous case of an installation newer than
// anything the selected source offers.
func IsAheadOfRemote(installed, available Version) bool {
	return Compare(installed, available) == Greater
}

// Marker is a version marker file found on disk
type Marker struct {
	Name    string
	Version Version
}

// Scan lists the version markers directly inside dir (non-recursive).
// Files that look like markers but fail to parse are skipped.
func Scan(dir string) ([]Marker, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var markers []Marker
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		v, err := Parse(entry.Name())
		if err != nil {
			continue
		}
		markers = append(markers, Marker{Name: entry.Name(), Version: v})
	}
	return markers, nil
}

// Find returns the highest version marker in dir. When dir holds no marker
// it returns Sentinel with an empty name and a nil error.
func Find(dir string) (Version, string, error) {
	markers, err := Scan(dir)
	if err != nil {
		return Sentinel, "", err
	}

	best := -1
	for i, m := range markers {
		if best < 0 || Compare(m.Version, markers[best].Version) == Greater {
			best = i
		}
	}
	if best < 0 {
		return Sentinel, "", nil
	}
	return markers[best].Version, markers[best].Name, nil
}

// Write creates the dotted marker for v inside dir and returns its path
func Write(dir string, v Version) (string, error) {
	path := filepath.Join(dir, v.MarkerName())
	if err := os.WriteFile(path, []byte(v.String()+"\n"), 0644); err != nil {
		return "", fmt.Errorf("failed to write version marker: %w", err)
	}
	return path, nil
}
