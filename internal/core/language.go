package core

import (
	"strings"

	"github.com/abadojack/whatlanggo"
)

// Detection is the outcome of language identification.  Known is false
// when no language could be identified; Lang is then empty.
type Detection struct {
	Lang  string
	Known bool
}

// Code returns the detected ISO 639-1 code, or FallbackLanguage for an
// unknown detection.
func (d Detection) Code() string {
	if !d.Known || d.Lang == "" {
		return FallbackLanguage
	}
	return d.Lang
}

// Detector identifies the language of a question.
type Detector interface {
	Detect(text string) Detection
}

// WhatlangDetector identifies languages with whatlanggo's trigram model.
// Detections below MinConfidence are reported as unknown.
type WhatlangDetector struct {
	MinConfidence float64
}

// Detect implements Detector.
func (d WhatlangDetector) Detect(text string) Detection {
	text = strings.TrimSpace(text)
	if text == "" {
		return Detection{}
	}
	info := whatlanggo.Detect(text)
	code := info.Lang.Iso6391()
	if code == "" || info.Confidence < d.MinConfidence {
		return Detection{}
	}
	return Detection{Lang: code, Known: true}
}
