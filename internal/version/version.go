package version

import (
	"fmt"
	"runtime/debug"
	"sync"
)

// Build metadata injected through -ldflags "-X".
var (
	// Version is the semantic version of the tone-alert release.
	Version = "dev"
	// Commit is the short git SHA, or "none" when not injected.
	Commit = "none"
	// BuildTime is the UTC build timestamp, or "unknown" when not injected.
	BuildTime = "unknown"
)

const (
	unsetCommit    = "none"
	unsetBuildTime = "unknown"
	shortCommitLen = 7
)

// Info is the resolved build metadata of the running binary.
type Info struct {
	Version   string
	Commit    string
	BuildTime string
	GoVersion string
	Modified  bool
}

var (
	resolveOnce sync.Once
	resolved    Info
)

// Get returns the build metadata, filling whatever ldflags left unset from
// the VCS stamps the Go toolchain embeds.
func Get() Info {
	resolveOnce.Do(func() {
		bi, _ := debug.ReadBuildInfo()
		resolved = resolve(bi)
	})

	return resolved
}

func resolve(bi *debug.BuildInfo) Info {
	info := Info{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
	}

	if bi == nil {
		return info
	}

	info.GoVersion = bi.GoVersion

	if info.Version == "dev" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		info.Version = bi.Main.Version
	}

	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if info.Commit == unsetCommit && s.Value != "" {
				info.Commit = s.Value[:min(len(s.Value), shortCommitLen)]
			}
		case "vcs.time":
			if info.BuildTime == unsetBuildTime && s.Value != "" {
				info.BuildTime = s.Value
			}
		case "vcs.modified":
			info.Modified = s.Value == "true"
		}
	}

	return info
}

// Short returns only the semantic version string.
func Short() string {
	return Get().Version
}

// Full returns a human-readable version string with commit and build time.
func Full() string {
	return Get().String()
}

func (i Info) String() string {
	commit := i.Commit
	if i.Modified {
		commit += "-dirty"
	}

	s := fmt.Sprintf("version: %s, commit: %s, built at: %s", i.Version, commit, i.BuildTime)
	if i.GoVersion != "" {
		s += ", go: " + i.GoVersion
	}

	return s
}
