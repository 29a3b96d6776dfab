// Package version reports the build of the tdal CLI and checks version constraints against it.
package version

import (
	"fmt"
	"runtime"

	goversion "github.com/hashicorp/go-version"

	"github.com/satishbabariya/tdal/schema"
)

// Set at build time with -ldflags.
var (
	Version   = "0.3.0"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

// Info holds version information.
type Info struct {
	Version   string `json:"version" yaml:"version"`
	Engine    string `json:"engine" yaml:"engine"`
	BuildDate string `json:"buildDate" yaml:"buildDate"`
	GitCommit string `json:"gitCommit" yaml:"gitCommit"`
	GoVersion string `json:"goVersion" yaml:"goVersion"`
	Platform  string `json:"platform" yaml:"platform"`
}

// Get returns version information.
func Get() Info {
	return Info{
		Version:   Version,
		Engine:    schema.EngineVersion,
		BuildDate: BuildDate,
		GitCommit: GitCommit,
		GoVersion: runtime.Version(),
		Platform:  fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}
}

func (i Info) String() string {
	return fmt.Sprintf("tdal version %s (%s %s)", i.Version, i.Platform, i.GoVersion)
}

// FullString returns a detailed multi-line description.
func (i Info) FullString() string {
	return fmt.Sprintf(`tdal version %s
Engine:     %s
Build Date: %s
Git Commit: %s
Platform:   %s
Go Version: %s`, i.Version, i.Engine, i.BuildDate, i.GitCommit, i.Platform, i.GoVersion)
}

// Satisfies reports whether v meets constraint, e.g. ">= 0.2, < 1.0".
func Satisfies(v, constraint string) (bool, error) {
	parsed, err := goversion.NewVersion(v)
	if err != nil {
		return false, fmt.Errorf("invalid version %q: %w", v, err)
	}
	c, err := goversion.NewConstraint(constraint)
	if err != nil {
		return false, fmt.Errorf("invalid constraint %q: %w", constraint, err)
	}
	return c.Check(parsed), nil
}

// Newer reports whether latest is a newer release than current.
func Newer(current, latest string) (bool, error) {
	c, err := goversion.NewVersion(current)
	if err != nil {
		return false, fmt.Errorf("invalid version %q: %w", current, err)
	}
	l, err := goversion.NewVersion(latest)
	if err != nil {
		return false, fmt.Errorf("invalid version %q: %w", latest, err)
	}
	return c.LessThan(l), nil
}
