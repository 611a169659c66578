package version

import (
	"runtime/debug"
	"strings"
)

const (
	unknownVersionFallbackConstant  = "unknown"
	buildInfoDevelVersionValue      = "devel"
	develVersionMarkerConstant      = "(devel)"
	vcsRevisionSettingKeyConstant   = "vcs.revision"
	vcsModifiedSettingKeyConstant   = "vcs.modified"
	vcsModifiedTrueValueConstant    = "true"
	revisionPrefixConstant          = "devel-"
	dirtySuffixConstant             = "-dirty"
	shortRevisionLengthConstant     = 12
)

// LinkedVersion is overridden at build time with -ldflags "-X github.com/tyemirov/autoflow/internal/version.LinkedVersion=v1.0.0".
var LinkedVersion string

// BuildInfoProvider exposes runtime build metadata.
type BuildInfoProvider interface {
	Read() (*debug.BuildInfo, bool)
}

// Detector resolves application version strings.
type Detector struct {
	buildInfoProvider BuildInfoProvider
	linkedVersion     string
}

// Dependencies describes the collaborators required for version detection.
type Dependencies struct {
	BuildInfoProvider BuildInfoProvider
	LinkedVersion     string
}

// NewDetector constructs a Detector with the supplied dependencies or runtime defaults.
func NewDetector(dependencies Dependencies) *Detector {
	provider := dependencies.BuildInfoProvider
	if provider == nil {
		provider = runtimeBuildInfoProvider{}
	}
	linkedVersion := strings.TrimSpace(dependencies.LinkedVersion)
	if len(linkedVersion) == 0 {
		linkedVersion = strings.TrimSpace(LinkedVersion)
	}
	return &Detector{buildInfoProvider: provider, linkedVersion: linkedVersion}
}

// Detect resolves the application version using runtime defaults.
func Detect() string {
	return NewDetector(Dependencies{}).Version()
}

// Version returns the linked version, then the module version, then the VCS revision recorded by the toolchain.
func (detector *Detector) Version() string {
	if detector == nil {
		return unknownVersionFallbackConstant
	}
	if len(detector.linkedVersion) > 0 {
		return detector.linkedVersion
	}
	if detector.buildInfoProvider == nil {
		return unknownVersionFallbackConstant
	}

	buildInfo, available := detector.buildInfoProvider.Read()
	if !available || buildInfo == nil {
		return unknownVersionFallbackConstant
	}

	if moduleVersion := moduleVersion(buildInfo); len(moduleVersion) > 0 {
		return moduleVersion
	}
	if revisionVersion := revisionVersion(buildInfo); len(revisionVersion) > 0 {
		return revisionVersion
	}
	return unknownVersionFallbackConstant
}

func moduleVersion(buildInfo *debug.BuildInfo) string {
	trimmedVersion := strings.TrimSpace(buildInfo.Main.Version)
	if len(trimmedVersion) == 0 {
		return ""
	}
	if strings.EqualFold(trimmedVersion, buildInfoDevelVersionValue) || trimmedVersion == develVersionMarkerConstant {
		return ""
	}
	return trimmedVersion
}

func revisionVersion(buildInfo *debug.BuildInfo) string {
	revision := ""
	modified := false
	for _, setting := range buildInfo.Settings {
		switch setting.Key {
		case vcsRevisionSettingKeyConstant:
			revision = strings.TrimSpace(setting.Value)
		case vcsModifiedSettingKeyConstant:
			modified = setting.Value == vcsModifiedTrueValueConstant
		}
	}
	if len(revision) == 0 {
		return ""
	}
	if len(revision) > shortRevisionLengthConstant {
		revision = revision[:shortRevisionLengthConstant]
	}
	if modified {
		return revisionPrefixConstant + revision + dirtySuffixConstant
	}
	return revisionPrefixConstant + revision
}

type runtimeBuildInfoProvider struct{}

func (runtimeBuildInfoProvider) Read() (*debug.BuildInfo, bool) {
	return debug.ReadBuildInfo()
}
