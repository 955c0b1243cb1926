package overlay

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

var ErrUnknownSection = errors.New("unknown section")

// Section names a subtree of the document that is staged and published as a unit.
type Section string

const (
	SectionBlue     Section = "blue"
	SectionRed      Section = "red"
	SectionAds      Section = "ads" // ads + adConfig
	SectionAssets   Section = "assets"
	SectionRegistry Section = "registry"
	SectionBracket  Section = "bracket"
)

// Sections lists every publishable section in display order.
var Sections = []Section{SectionBlue, SectionRed, SectionAds, SectionAssets, SectionRegistry, SectionBracket}

func ParseSection(v string) (Section, error) {
	for _, s := range Sections {
		if string(s) == v {
			return s, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownSection, v)
}

// Extract returns the subtree of doc covered by the section.
func (sec Section) Extract(doc AppState) any {
	switch sec {
	case SectionBlue:
		return doc.Blue
	case SectionRed:
		return doc.Red
	case SectionAds:
		return struct {
			Ads      []string `json:"ads"`
			AdConfig AdConfig `json:"adConfig"`
		}{doc.Ads, doc.AdConfig}
	case SectionAssets:
		return doc.Assets
	case SectionRegistry:
		return doc.Registry
	case SectionBracket:
		return doc.Bracket
	}
	return nil
}

// CopyInto overwrites the section in dst with the one from src.
func (sec Section) CopyInto(dst *AppState, src AppState) {
	src = src.Clone()
	switch sec {
	case SectionBlue:
		dst.Blue = src.Blue
	case SectionRed:
		dst.Red = src.Red
	case SectionAds:
		dst.Ads = src.Ads
		dst.AdConfig = src.AdConfig
	case SectionAssets:
		dst.Assets = src.Assets
	case SectionRegistry:
		dst.Registry = src.Registry
	case SectionBracket:
		dst.Bracket = src.Bracket
	}
}

// SectionEqual compares the serialized section of two documents.
func SectionEqual(a, b AppState, sec Section) bool {
	ab, errA := json.Marshal(sec.Extract(a))
	bb, errB := json.Marshal(sec.Extract(b))
	if errA != nil || errB != nil {
		return false
	}
	return bytes.Equal(ab, bb)
}

// Diff returns the sections in which a and b differ.
func Diff(a, b AppState) []Section {
	var out []Section
	for _, sec := range Sections {
		if !SectionEqual(a, b, sec) {
			out = append(out, sec)
		}
	}
	return out
}
