package model

// Severity represents how much a finding affects the fidelity or privacy of
// a snapshot.
type Severity int

const (
	// SeverityInfo marks findings that do not change what the snapshot
	// shows, such as stripped scripts.
	SeverityInfo Severity = iota

	// SeverityLow marks minor issues, such as EXIF metadata carried into
	// the snapshot.
	SeverityLow

	// SeverityMedium marks missing content: a subresource that could not be
	// fetched is left as an external reference.
	SeverityMedium

	// SeverityHigh marks findings that make the snapshot incomplete as a
	// whole or leak sensitive data, such as GPS coordinates.
	SeverityHigh
)

// String returns a human-readable representation of the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "INFO"
	case SeverityLow:
		return "LOW"
	case SeverityMedium:
		return "MEDIUM"
	case SeverityHigh:
		return "HIGH"
	default:
		return "UNKNOWN"
	}
}

// Finding types raised while building a snapshot.
const (
	FindingFetchFailed       = "fetch_failed"
	FindingUnsupported       = "unsupported_category"
	FindingUnresolvable      = "unresolvable_reference"
	FindingCycle             = "reference_cycle"
	FindingDepthLimit        = "depth_limit"
	FindingCancelled         = "cancelled"
	FindingEXIF              = "exif_metadata"
	FindingEXIFGPS           = "exif_gps"
	FindingCorruptStylesheet = "corrupt_stylesheet"
	FindingSecret            = "embedded_secret"
)

// FindingInfo contains metadata about a finding type.
type FindingInfo struct {
	Severity       Severity
	Impact         string
	Recommendation string
}

// findingInfoMapping is the single source of truth for finding severities.
var findingInfoMapping = map[string]FindingInfo{
	FindingCancelled: {
		Severity:       SeverityHigh,
		Impact:         "The snapshot was cut short by a timeout or cancellation; resources not fetched by then are left external.",
		Recommendation: "Raise the timeout or reduce the depth.",
	},
	FindingEXIFGPS: {
		Severity:       SeverityHigh,
		Impact:         "An inlined image carries GPS coordinates; anyone holding the snapshot can read them.",
		Recommendation: "Strip EXIF metadata before sharing the snapshot.",
	},
	FindingSecret: {
		Severity:       SeverityHigh,
		Impact:         "An inlined resource contains key material or an access token; the snapshot carries it to everyone it is shared with.",
		Recommendation: "Do not share the snapshot, and report the exposed secret to the site owner.",
	},
	FindingFetchFailed: {
		Severity:       SeverityMedium,
		Impact:         "A subresource could not be fetched and keeps its original, external reference.",
		Recommendation: "Check the URL and the network path, then archive again.",
	},
	FindingDepthLimit: {
		Severity:       SeverityMedium,
		Impact:         "Nesting deeper than the maximum depth was not expanded.",
		Recommendation: "Raise --depth if the deeper resources matter.",
	},
	FindingEXIF: {
		Severity:       SeverityLow,
		Impact:         "An inlined image carries EXIF metadata such as camera model or timestamps.",
		Recommendation: "Strip EXIF metadata before sharing the snapshot.",
	},
	FindingCorruptStylesheet: {
		Severity:       SeverityLow,
		Impact:         "A stylesheet could not be scanned; its own references are left as they were.",
		Recommendation: "No action needed unless the page renders incorrectly.",
	},
	FindingUnsupported: {
		Severity:       SeverityInfo,
		Impact:         "The resource kind is not archived; scripts are removed from snapshots.",
		Recommendation: "No action needed.",
	},
	FindingUnresolvable: {
		Severity:       SeverityInfo,
		Impact:         "A reference could not be resolved to an absolute URL and was left untouched.",
		Recommendation: "No action needed.",
	},
	FindingCycle: {
		Severity:       SeverityInfo,
		Impact:         "A resource references one of its ancestors; the reference is left external to avoid an endless loop.",
		Recommendation: "No action needed.",
	},
}

// GetSeverity returns the severity level for a finding type.
// Returns SeverityInfo if the finding type is not in the mapping.
func GetSeverity(findingType string) Severity {
	return GetFindingInfo(findingType).Severity
}

// GetFindingInfo returns the full finding information for a finding type.
func GetFindingInfo(findingType string) FindingInfo {
	if info, ok := findingInfoMapping[findingType]; ok {
		return info
	}
	return FindingInfo{
		Severity:       SeverityInfo,
		Impact:         "Unknown finding type. Review manually.",
		Recommendation: "Investigate the finding.",
	}
}
