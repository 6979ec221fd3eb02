// Package rules contains the pure evaluation logic of the relay: media
// classification, filter matching, schedule windows, and content transforms.
// Nothing here performs I/O; the relay handler feeds it message snapshots and
// acts on the results.
package rules

import (
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"
)

// MediaType classifies the displayable content of a message.
type MediaType string

const (
	MediaVoice MediaType = "voice"
	MediaVideo MediaType = "video"
	MediaPhoto MediaType = "photo"
	MediaText  MediaType = "text"
	MediaOther MediaType = "other"
)

// Media describes the media facts of an incoming message. WebPreview marks a
// link preview, which is not treated as displayable media.
type Media struct {
	Present    bool
	WebPreview bool
	Voice      bool
	Video      bool
	Photo      bool
}

// Classify returns the media type of a message, first match wins:
// voice > video > photo > text (non-empty body) > other.
func Classify(media Media, body string) MediaType {
	switch {
	case media.Voice:
		return MediaVoice
	case media.Video:
		return MediaVideo
	case media.Photo:
		return MediaPhoto
	case body != "":
		return MediaText
	}
	return MediaOther
}

// Filter is one predicate attached to a mapping. All set fields must hold for
// the filter to pass.
type Filter struct {
	IncludeText  string
	ExcludeText  string
	MediaTypes   string // comma-separated allow set, empty allows all
	RegexPattern string
}

// PassesFilters reports whether the message satisfies every filter. An empty
// filter list passes. Filters only ever narrow: adding one can turn a pass
// into a fail, never the reverse.
func PassesFilters(body string, mediaType MediaType, filters []Filter) bool {
	for _, f := range filters {
		if allowed := parseTypeSet(f.MediaTypes); len(allowed) > 0 {
			if _, ok := allowed[string(mediaType)]; !ok {
				return false
			}
		}
		if f.IncludeText != "" && !strings.Contains(body, f.IncludeText) {
			return false
		}
		if f.ExcludeText != "" && strings.Contains(body, f.ExcludeText) {
			return false
		}
		if f.RegexPattern != "" {
			re, err := regexp.Compile(f.RegexPattern)
			if err != nil {
				// Fail open: an uncompilable pattern cannot be evaluated, so
				// the clause is ignored rather than blocking the message.
				logrus.Warnf("Skipping invalid filter regex %q: %v", f.RegexPattern, err)
				continue
			}
			if !re.MatchString(body) {
				return false
			}
		}
	}
	return true
}

// parseTypeSet splits a comma-separated media type list into a lowercase set.
func parseTypeSet(raw string) map[string]struct{} {
	if raw == "" {
		return nil
	}
	set := make(map[string]struct{})
	for _, part := range strings.Split(raw, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part != "" {
			set[part] = struct{}{}
		}
	}
	return set
}
