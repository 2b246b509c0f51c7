package metadata

import (
	"errors"
	"fmt"
	"strings"

	exif "github.com/dsoprea/go-exif/v3"

	"github.com/nao1215/freezedry/internal/link"
	"github.com/nao1215/freezedry/internal/model"
	"github.com/nao1215/freezedry/internal/resource"
)

// ErrNoEXIF is returned by EXIF when data holds no EXIF block.
var ErrNoEXIF = errors.New("no EXIF data found")

// Tag is one EXIF entry.
type Tag struct {
	Name  string
	Value string
}

// IsGPS reports whether the tag belongs to the GPS IFD.
func (t Tag) IsGPS() bool {
	return strings.HasPrefix(t.Name, "GPS")
}

// identifying lists non-GPS tags worth reporting. Other tags, such as
// exposure settings, say nothing about who took the picture.
var identifying = map[string]bool{
	"Make":               true,
	"Model":              true,
	"SerialNumber":       true,
	"CameraSerialNumber": true,
	"BodySerialNumber":   true,
	"LensSerialNumber":   true,
	"Software":           true,
	"ProcessingSoftware": true,
	"Artist":             true,
	"Copyright":          true,
	"XPAuthor":           true,
	"HostComputer":       true,
	"DateTimeOriginal":   true,
	"DateTimeDigitized":  true,
	"DateTime":           true,
}

// EXIF returns the GPS and identifying tags found in data.
func EXIF(data []byte) ([]Tag, error) {
	raw, err := exif.SearchAndExtractExif(data)
	if err != nil {
		if errors.Is(err, exif.ErrNoExif) {
			return nil, ErrNoEXIF
		}
		return nil, fmt.Errorf("failed to search EXIF: %w", err)
	}

	entries, _, err := exif.GetFlatExifData(raw, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to parse EXIF: %w", err)
	}

	var tags []Tag
	for _, e := range entries {
		tag := Tag{Name: e.TagName, Value: e.Formatted}
		if tag.IsGPS() || identifying[tag.Name] {
			tags = append(tags, tag)
		}
	}
	return tags, nil
}

// Reporter receives findings. *model.Snapshot implements it.
type Reporter interface {
	AddFinding(findingType, title, description, value, location string)
}

// Inspect reports what the resource attached to l carries into the
// snapshot. Links without a resource are ignored.
func Inspect(r Reporter, l *link.Link) {
	res := l.Resource()
	if res == nil {
		return
	}
	location := l.Base()

	switch res := res.(type) {
	case *resource.Leaf:
		if l.Category() == link.CategoryImage {
			inspectImage(r, res, location)
		}
	case *resource.Stylesheet:
		if !link.WellFormedStylesheet(res.Text()) {
			r.AddFinding(model.FindingCorruptStylesheet, "Unreadable stylesheet",
				"The stylesheet could not be scanned for references", res.URL(), location)
		}
	}
	inspectText(r, l, location)
}

func inspectImage(r Reporter, res *resource.Leaf, location string) {
	tags, err := EXIF(res.Content())
	if err != nil || len(tags) == 0 {
		return
	}

	var gps, other []string
	for _, t := range tags {
		entry := t.Name + "=" + t.Value
		if t.IsGPS() {
			gps = append(gps, entry)
		} else {
			other = append(other, entry)
		}
	}
	if len(gps) > 0 {
		r.AddFinding(model.FindingEXIFGPS, "GPS coordinates in image",
			strings.Join(gps, ", "), res.URL(), location)
	}
	if len(other) > 0 {
		r.AddFinding(model.FindingEXIF, "EXIF metadata in image",
			strings.Join(other, ", "), res.URL(), location)
	}
}
