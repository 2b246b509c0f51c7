package model

import "testing"

// TestSeverityString tests the String method of Severity.
func TestSeverityString(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		severity Severity
		expected string
	}{
		{SeverityInfo, "INFO"},
		{SeverityLow, "LOW"},
		{SeverityMedium, "MEDIUM"},
		{SeverityHigh, "HIGH"},
		{Severity(999), "UNKNOWN"},
	}

	for _, tc := range testCases {
		t.Run(tc.expected, func(t *testing.T) {
			t.Parallel()
			if tc.severity.String() != tc.expected {
				t.Errorf("got %q, expected %q", tc.severity.String(), tc.expected)
			}
		})
	}
}

// TestGetSeverity tests the GetSeverity function.
func TestGetSeverity(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		findingType string
		expected    Severity
	}{
		{FindingCancelled, SeverityHigh},
		{FindingEXIFGPS, SeverityHigh},
		{FindingSecret, SeverityHigh},
		{FindingFetchFailed, SeverityMedium},
		{FindingDepthLimit, SeverityMedium},
		{FindingEXIF, SeverityLow},
		{FindingCorruptStylesheet, SeverityLow},
		{FindingUnsupported, SeverityInfo},
		{FindingCycle, SeverityInfo},
		{"unknown_type", SeverityInfo},
	}

	for _, tc := range testCases {
		t.Run(tc.findingType, func(t *testing.T) {
			t.Parallel()
			result := GetSeverity(tc.findingType)
			if result != tc.expected {
				t.Errorf("GetSeverity(%q) = %v, expected %v", tc.findingType, result, tc.expected)
			}
		})
	}
}

// TestFindingInfoMappingCompleteness tests that all finding types have proper info.
func TestFindingInfoMappingCompleteness(t *testing.T) {
	t.Parallel()

	for findingType := range findingInfoMapping {
		t.Run(findingType, func(t *testing.T) {
			t.Parallel()

			info := GetFindingInfo(findingType)
			if info.Impact == "" {
				t.Errorf("finding type %q has empty Impact", findingType)
			}
			if info.Recommendation == "" {
				t.Errorf("finding type %q has empty Recommendation", findingType)
			}
		})
	}

	t.Run("every non-inlined status maps to a known finding", func(t *testing.T) {
		t.Parallel()

		for status := range statusNames {
			ft := status.FindingType()
			if ft == "" {
				continue
			}
			if _, ok := findingInfoMapping[ft]; !ok {
				t.Errorf("status %s maps to unknown finding %q", status, ft)
			}
		}
	})
}
