// Package formula parses upstream package metadata and picks the bottle
// archive matching the running platform.
package formula

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"regexp"
	"runtime"
)

// Formula is the upstream-provided metadata record describing a package,
// decoded from the per-formula JSON endpoint.
type Formula struct {
	Name              string          `json:"name"`
	FullName          string          `json:"full_name,omitempty"`
	Tap               string          `json:"tap,omitempty"`
	Desc              string          `json:"desc,omitempty"`
	Homepage          string          `json:"homepage,omitempty"`
	License           string          `json:"license,omitempty"`
	Caveats           string          `json:"caveats,omitempty"`
	Versions          Versions        `json:"versions"`
	Revision          int             `json:"revision,omitempty"`
	Dependencies      []string        `json:"dependencies,omitempty"`
	BuildDependencies []string        `json:"build_dependencies,omitempty"`
	UsesFromMacos     []UsesFromMacos `json:"uses_from_macos,omitempty"`
	KegOnly           bool            `json:"keg_only,omitempty"`
	KegOnlyReason     *KegOnlyReason  `json:"keg_only_reason,omitempty"`
	Bottle            *Bottle         `json:"bottle,omitempty"`
	Urls              *Urls           `json:"urls,omitempty"`
}

// Versions carries the stable version string the upstream publishes.
type Versions struct {
	Stable string `json:"stable"`
}

// KegOnlyReason explains why a formula is not linked into the prefix by default.
type KegOnlyReason struct {
	Explanation string `json:"explanation,omitempty"`
}

// UsesFromMacos is a dependency that only applies on non-macOS platforms.
// The upstream encodes it as either a bare string or a single-key object
// naming platform constraints; both are accepted.
type UsesFromMacos struct {
	Name string
}

// UnmarshalJSON accepts either a bare string or {"<name>": ...}.
func (u *UsesFromMacos) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		u.Name = name
		return nil
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("uses_from_macos entry: %w", err)
	}
	for k := range obj {
		u.Name = k
		break
	}
	return nil
}

// Bottle holds the binary archive specification for stable releases.
type Bottle struct {
	Stable *BottleSpec `json:"stable,omitempty"`
}

// BottleSpec is the per-platform set of bottle files for one release.
type BottleSpec struct {
	Rebuild int                   `json:"rebuild,omitempty"`
	RootURL string                `json:"root_url,omitempty"`
	Files   map[string]BottleFile `json:"files"`
}

// BottleFile is one platform's bottle archive.
type BottleFile struct {
	URL    string `json:"url"`
	SHA256 string `json:"sha256"`
}

// Urls carries the source tarball locations used by the out-of-scope
// from-source builder; retained so formula JSON round-trips cleanly.
type Urls struct {
	Stable *SourceURL `json:"stable,omitempty"`
	Head   *HeadURL   `json:"head,omitempty"`
}

// SourceURL is a stable source tarball reference.
type SourceURL struct {
	URL string `json:"url"`
}

// HeadURL is a HEAD-build VCS reference.
type HeadURL struct {
	URL    string `json:"url"`
	Branch string `json:"branch,omitempty"`
}

// IndexEntry is one record of the whole-index (`formula.json`) response.
type IndexEntry struct {
	Name       string   `json:"name"`
	FullName   string   `json:"full_name"`
	Desc       string   `json:"desc,omitempty"`
	Homepage   string   `json:"homepage,omitempty"`
	Versions   Versions `json:"versions"`
	Aliases    []string `json:"aliases,omitempty"`
	Deprecated bool     `json:"deprecated,omitempty"`
	Disabled   bool     `json:"disabled,omitempty"`
}

var nameRe = regexp.MustCompile(`^[a-z0-9][a-z0-9_.@-]*$`)

// ValidateName checks that name is a syntactically valid formula name.
func ValidateName(name string) error {
	if !nameRe.MatchString(name) {
		return fmt.Errorf("invalid formula name: %q", name)
	}
	return nil
}

// Parse decodes a formula JSON document.
func Parse(data []byte) (*Formula, error) {
	var f Formula
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse formula: %w", err)
	}
	if f.Name == "" {
		return nil, fmt.Errorf("parse formula: missing name")
	}
	if f.Versions.Stable == "" {
		return nil, fmt.Errorf("parse formula: missing stable version")
	}
	for _, file := range f.bottleFiles() {
		if _, err := hex.DecodeString(file.SHA256); len(file.SHA256) != 64 || err != nil {
			return nil, fmt.Errorf("parse formula %s: bottle sha256 %q is not 64 hex characters", f.Name, file.SHA256)
		}
	}
	return &f, nil
}

func (f *Formula) bottleFiles() map[string]BottleFile {
	if f.Bottle == nil || f.Bottle.Stable == nil {
		return nil
	}
	return f.Bottle.Stable.Files
}

// EffectiveVersion is the stable version, suffixed with "_<revision>" when
// the formula carries a nonzero revision.
func (f *Formula) EffectiveVersion() string {
	if f.Revision == 0 {
		return f.Versions.Stable
	}
	return fmt.Sprintf("%s_%d", f.Versions.Stable, f.Revision)
}

// EffectiveDependencies is Dependencies plus UsesFromMacos, the latter
// only on non-macOS platforms.
func (f *Formula) EffectiveDependencies() []string {
	deps := make([]string, 0, len(f.Dependencies)+len(f.UsesFromMacos))
	deps = append(deps, f.Dependencies...)
	if runtime.GOOS != "darwin" {
		for _, u := range f.UsesFromMacos {
			deps = append(deps, u.Name)
		}
	}
	return deps
}

// GetFullName returns the tap-qualified name, or the bare name for the
// default core tap.
func (f *Formula) GetFullName() string {
	if f.Tap != "" && f.Tap != "homebrew/core" {
		return f.Tap + "/" + f.Name
	}
	if f.FullName != "" {
		return f.FullName
	}
	return f.Name
}
