package installer

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/zb-pm/zb/internal/logger"
	"github.com/zb-pm/zb/internal/tap"
)

// BundleEntryKind distinguishes the two directives a Brewfile recognizes.
type BundleEntryKind int

const (
	BundleTap BundleEntryKind = iota
	BundleBrew
)

// BundleEntry is one parsed Brewfile line, in file order.
type BundleEntry struct {
	Kind BundleEntryKind
	Name string
	Args []string
}

// ParseBundle reads a Brewfile per spec.md §6: line-oriented text with
// `tap "<user/repo>"`, `brew "<name>"[, args...]`, and `#` comments.
// Blank lines and unrecognized directives are ignored.
func ParseBundle(r io.Reader) ([]BundleEntry, error) {
	var entries []BundleEntry
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		switch {
		case strings.HasPrefix(line, "tap "):
			name, ok := firstQuoted(line)
			if !ok {
				continue
			}
			entries = append(entries, BundleEntry{Kind: BundleTap, Name: name})

		case strings.HasPrefix(line, "brew "):
			name, rest, ok := firstQuotedWithRest(line)
			if !ok {
				continue
			}
			entries = append(entries, BundleEntry{Kind: BundleBrew, Name: name, Args: parseArgs(rest)})
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read brewfile: %w", err)
	}
	return entries, nil
}

// firstQuoted returns the contents of the first "..." pair on line.
func firstQuoted(line string) (string, bool) {
	start := strings.Index(line, `"`)
	if start == -1 {
		return "", false
	}
	end := strings.Index(line[start+1:], `"`)
	if end == -1 {
		return "", false
	}
	return line[start+1 : start+1+end], true
}

// firstQuotedWithRest returns the first quoted string plus whatever
// follows its closing quote, for trailing `, args...` tokens.
func firstQuotedWithRest(line string) (name, rest string, ok bool) {
	start := strings.Index(line, `"`)
	if start == -1 {
		return "", "", false
	}
	end := strings.Index(line[start+1:], `"`)
	if end == -1 {
		return "", "", false
	}
	closeIdx := start + 1 + end
	return line[start+1 : closeIdx], line[closeIdx+1:], true
}

// parseArgs pulls any further quoted tokens out of a trailing `, "a",
// "b"` tail; bare (unquoted) tokens such as link/args: hash keys are
// ignored since the installer only acts on formula names today.
func parseArgs(rest string) []string {
	var args []string
	for {
		name, tail, ok := firstQuotedWithRest(rest)
		if !ok {
			break
		}
		args = append(args, name)
		rest = tail
	}
	return args
}

// BundleResult reports what a Bundle run did.
type BundleResult struct {
	Tapped    []string
	Installed []string
	Skipped   []string
	Failed    map[string]error
}

// Bundle reads the Brewfile at path and applies it in file order: taps
// are added before the brews that might come from them, already-tapped
// taps and already-installed formulae are skipped, and a single
// formula's failure does not abort the rest of the manifest.
func (i *Installer) Bundle(path string, link bool, progress chan<- ProgressEvent) (*BundleResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open brewfile: %w", err)
	}
	defer f.Close()

	entries, err := ParseBundle(f)
	if err != nil {
		return nil, err
	}

	result := &BundleResult{Failed: make(map[string]error)}

	for _, e := range entries {
		switch e.Kind {
		case BundleTap:
			if tapped, tErr := i.db.IsTapped(e.Name); tErr == nil && tapped {
				result.Skipped = append(result.Skipped, e.Name)
				continue
			}
			if err := i.AddTap(e.Name, "", &tap.TapOptions{Quiet: true}); err != nil {
				logger.Warn("bundle: failed to tap %s: %v", e.Name, err)
				result.Failed[e.Name] = err
				continue
			}
			result.Tapped = append(result.Tapped, e.Name)

		case BundleBrew:
			if installed, iErr := i.db.IsInstalled(e.Name); iErr == nil && installed {
				result.Skipped = append(result.Skipped, e.Name)
				continue
			}
			if _, err := i.InstallByName(e.Name, link, progress); err != nil {
				logger.Warn("bundle: failed to install %s: %v", e.Name, err)
				result.Failed[e.Name] = err
				continue
			}
			result.Installed = append(result.Installed, e.Name)
		}
	}

	return result, nil
}
