package model

import (
	"encoding/hex"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/sha3"
)

// Status is the outcome for one subresource.
type Status int

const (
	// StatusInlined means the resource was fetched (or read from a live
	// frame) and its reference now holds a data: URL.
	StatusInlined Status = iota

	// StatusFailed means fetching or parsing failed.
	StatusFailed

	// StatusUnsupported means the category has no resource constructor.
	StatusUnsupported

	// StatusUnresolvable means the reference has no absolute target.
	StatusUnresolvable

	// StatusCycle means the target is the URL of an ancestor resource.
	StatusCycle

	// StatusDepthLimit means the resource sits below the maximum depth.
	StatusDepthLimit

	// StatusCancelled means the run was cancelled before the fetch finished.
	StatusCancelled
)

var statusNames = map[Status]string{
	StatusInlined:      "inlined",
	StatusFailed:       "failed",
	StatusUnsupported:  "unsupported",
	StatusUnresolvable: "unresolvable",
	StatusCycle:        "cycle",
	StatusDepthLimit:   "depth-limit",
	StatusCancelled:    "cancelled",
}

// String returns the status name.
func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "unknown"
}

// MarshalText encodes the status by name so stored snapshots stay readable.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a status name.
func (s *Status) UnmarshalText(text []byte) error {
	for status, name := range statusNames {
		if name == string(text) {
			*s = status
			return nil
		}
	}
	return fmt.Errorf("unknown status %q", text)
}

// FindingType returns the finding raised for the status, or "" when the
// status needs none.
func (s Status) FindingType() string {
	switch s {
	case StatusFailed:
		return FindingFetchFailed
	case StatusUnsupported:
		return FindingUnsupported
	case StatusUnresolvable:
		return FindingUnresolvable
	case StatusCycle:
		return FindingCycle
	case StatusDepthLimit:
		return FindingDepthLimit
	default:
		return ""
	}
}

// ResourceRecord describes what happened to one subresource.
type ResourceRecord struct {
	// Reference is the absolute target of the link, or the literal
	// reference when it could not be resolved.
	Reference string `json:"reference"`

	// URL is the final, post-redirect URL of the fetched resource.
	URL string `json:"url,omitempty"`

	// Category is the link category ("image", "style", ...).
	Category string `json:"category"`

	// Depth is 1 for links of the root document.
	Depth int `json:"depth"`

	Status Status `json:"status"`

	ContentType string `json:"content_type,omitempty"`

	// Size is the byte size of the resource before base64 encoding.
	Size int `json:"size,omitempty"`

	// Digest is the hex SHA3-256 of the resource content.
	Digest string `json:"digest,omitempty"`

	// FromFrame is set when a document was read from a live frame instead
	// of being fetched.
	FromFrame bool `json:"from_frame,omitempty"`

	Error string `json:"error,omitempty"`
}

// Finding represents a single finding in a snapshot.
type Finding struct {
	// Type is the finding type identifier; see findingInfoMapping.
	Type string `json:"type"`

	Severity Severity `json:"severity"`

	SeverityText string `json:"severity_text"`

	// Title is a short description of the finding.
	Title string `json:"title"`

	Description string `json:"description,omitempty"`

	Impact string `json:"impact,omitempty"`

	Recommendation string `json:"recommendation,omitempty"`

	// Value is the URL or value the finding is about.
	Value string `json:"value,omitempty"`

	// Location is where the finding was discovered.
	Location string `json:"location,omitempty"`
}

// Snapshot is the record of one archiving run.
type Snapshot struct {
	// URL is the document URL of the root.
	URL string `json:"url"`

	// DateArchived is when the run started.
	DateArchived time.Time `json:"date_archived"`

	// Duration is how long the run took.
	Duration time.Duration `json:"duration"`

	// OutputSize is the byte length of the produced markup.
	OutputSize int `json:"output_size"`

	// Digest is the hex SHA3-256 of the produced markup.
	Digest string `json:"digest,omitempty"`

	// TimedOut is set when the run was cut short by its deadline or by
	// cancellation.
	TimedOut bool `json:"timed_out"`

	Resources []ResourceRecord `json:"resources,omitempty"`

	Findings []Finding `json:"findings,omitempty"`

	// Error contains the error message if the run failed.
	Error string `json:"error,omitempty"`

	mu sync.Mutex
}

// NewSnapshot creates an empty Snapshot for url started at t.
func NewSnapshot(url string, t time.Time) *Snapshot {
	return &Snapshot{URL: url, DateArchived: t}
}

// Record adds the outcome of one subresource. Outcomes other than
// StatusInlined also raise the matching finding.
func (s *Snapshot) Record(r ResourceRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Resources = append(s.Resources, r)
	if ft := r.Status.FindingType(); ft != "" {
		desc := fmt.Sprintf("%s resource at depth %d was not inlined", r.Category, r.Depth)
		if r.Error != "" {
			desc += ": " + r.Error
		}
		s.addFinding(ft, statusTitle(r.Status), desc, r.Reference, "")
	}
}

// AddFinding adds a finding of the given type.
func (s *Snapshot) AddFinding(findingType, title, description, value, location string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addFinding(findingType, title, description, value, location)
}

func (s *Snapshot) addFinding(findingType, title, description, value, location string) {
	info := GetFindingInfo(findingType)
	s.Findings = append(s.Findings, Finding{
		Type:           findingType,
		Severity:       info.Severity,
		SeverityText:   info.Severity.String(),
		Title:          title,
		Description:    description,
		Impact:         info.Impact,
		Recommendation: info.Recommendation,
		Value:          value,
		Location:       location,
	})
}

// Finish records the produced output and the run duration.
func (s *Snapshot) Finish(output []byte, duration time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.OutputSize = len(output)
	s.Digest = Digest(output)
	s.Duration = duration
}

// Records returns a copy of the resource records ordered by depth, then
// reference.
func (s *Snapshot) Records() []ResourceRecord {
	s.mu.Lock()
	records := slices.Clone(s.Resources)
	s.mu.Unlock()

	slices.SortStableFunc(records, func(a, b ResourceRecord) int {
		if a.Depth != b.Depth {
			return a.Depth - b.Depth
		}
		return strings.Compare(a.Reference, b.Reference)
	})
	return records
}

// AllFindings returns a copy of the findings ordered from most to least
// severe.
func (s *Snapshot) AllFindings() []Finding {
	s.mu.Lock()
	findings := slices.Clone(s.Findings)
	s.mu.Unlock()

	slices.SortStableFunc(findings, func(a, b Finding) int {
		return int(b.Severity) - int(a.Severity)
	})
	return findings
}

// CountByStatus counts resource records per status.
func (s *Snapshot) CountByStatus() map[Status]int {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := make(map[Status]int)
	for _, r := range s.Resources {
		counts[r.Status]++
	}
	return counts
}

// CountByCategory counts inlined resources per category.
func (s *Snapshot) CountByCategory() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := make(map[string]int)
	for _, r := range s.Resources {
		if r.Status == StatusInlined {
			counts[r.Category]++
		}
	}
	return counts
}

// CountBySeverity counts findings per severity.
func (s *Snapshot) CountBySeverity() map[Severity]int {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := make(map[Severity]int)
	for _, f := range s.Findings {
		counts[f.Severity]++
	}
	return counts
}

// InlinedBytes is the total size of all inlined resources.
func (s *Snapshot) InlinedBytes() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := 0
	for _, r := range s.Resources {
		if r.Status == StatusInlined {
			total += r.Size
		}
	}
	return total
}

// Digest returns the hex-encoded SHA3-256 of b.
func Digest(b []byte) string {
	sum := sha3.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func statusTitle(s Status) string {
	switch s {
	case StatusFailed:
		return "Subresource Not Fetched"
	case StatusUnsupported:
		return "Unsupported Subresource"
	case StatusUnresolvable:
		return "Unresolvable Reference"
	case StatusCycle:
		return "Reference Cycle"
	case StatusDepthLimit:
		return "Depth Limit Reached"
	default:
		return "Subresource " + s.String()
	}
}
