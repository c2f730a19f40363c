package formula

import (
	"fmt"
	"runtime"
)

// SelectedBottle is the archive chosen for the running platform.
type SelectedBottle struct {
	Name    string
	URL     string
	SHA256  string
	Version string
}

// UnsupportedBottleError means no bottle file matches the current platform.
type UnsupportedBottleError struct {
	Name     string
	Platform string
}

func (e *UnsupportedBottleError) Error() string {
	return fmt.Sprintf("no bottle available for %s on platform %s", e.Name, e.Platform)
}

// PlatformTag returns this process's native bottle platform tag.
func PlatformTag() string {
	switch runtime.GOOS {
	case "darwin":
		if runtime.GOARCH == "arm64" {
			return "arm64_sonoma"
		}
		return "sonoma"
	case "linux":
		if runtime.GOARCH == "arm64" {
			return "arm64_linux"
		}
		return "x86_64_linux"
	default:
		return runtime.GOOS + "_" + runtime.GOARCH
	}
}

// SelectBottle picks the bottle file matching platform, trying the exact
// tag, then "all", then (on Linux only) any linux-suffixed tag.
func SelectBottle(f *Formula, platform string) (*SelectedBottle, error) {
	files := f.bottleFiles()
	if len(files) == 0 {
		return nil, &UnsupportedBottleError{Name: f.Name, Platform: platform}
	}

	if file, ok := files[platform]; ok {
		return &SelectedBottle{Name: f.Name, URL: file.URL, SHA256: file.SHA256, Version: f.EffectiveVersion()}, nil
	}
	if file, ok := files["all"]; ok {
		return &SelectedBottle{Name: f.Name, URL: file.URL, SHA256: file.SHA256, Version: f.EffectiveVersion()}, nil
	}
	if runtime.GOOS == "linux" {
		for tag, file := range files {
			if isLinuxTag(tag) {
				return &SelectedBottle{Name: f.Name, URL: file.URL, SHA256: file.SHA256, Version: f.EffectiveVersion()}, nil
			}
		}
	}
	return nil, &UnsupportedBottleError{Name: f.Name, Platform: platform}
}

func isLinuxTag(tag string) bool {
	return len(tag) >= len("linux") && tag[len(tag)-len("linux"):] == "linux"
}
