package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestApplyTransformsChain(t *testing.T) {
	transforms := []Transform{
		{ID: 1, Kind: TransformRegex, Enabled: true, Priority: 0, Pattern: `#\d+`, Replace: "#XXX"},
		{ID: 2, Kind: TransformText, Enabled: true, Priority: 1, Find: "Sam channel", Replace: "Tom channel"},
		{ID: 3, Kind: TransformEmoji, Enabled: true, Priority: 2, Find: "🔥", Replace: "⭐"},
	}
	got := ApplyTransforms("Welcome to Sam channel order #123 🔥", transforms, nil, MediaText)
	assert.Equal(t, "Welcome to Tom channel order #XXX ⭐", got)
}

func TestApplyTransformsDeterministic(t *testing.T) {
	transforms := []Transform{
		{ID: 1, Kind: TransformText, Enabled: true, Find: "aa", Replace: "aab"},
		{ID: 2, Kind: TransformRegex, Enabled: true, Pattern: `b+`, Replace: "B"},
	}
	first := ApplyTransforms("aa and aab", transforms, nil, MediaText)
	second := ApplyTransforms("aa and aab", transforms, nil, MediaText)
	assert.Equal(t, first, second)
}

func TestApplyTransformsSkipsDisabledAndMedia(t *testing.T) {
	transforms := []Transform{
		{ID: 1, Kind: TransformText, Enabled: false, Find: "a", Replace: "b"},
		{ID: 2, Kind: TransformMedia, Enabled: true, AssetPath: "/tmp/x.png"},
	}
	assert.Equal(t, "a", ApplyTransforms("a", transforms, nil, MediaText))
}

func TestApplyTransformsMediaTypeScope(t *testing.T) {
	transforms := []Transform{
		{ID: 1, Kind: TransformText, Enabled: true, Scope: "photo", Find: "x", Replace: "y"},
	}
	assert.Equal(t, "x", ApplyTransforms("x", transforms, nil, MediaText),
		"rule scoped to photo must not touch text messages")
	assert.Equal(t, "y", ApplyTransforms("x", transforms, nil, MediaPhoto))

	wildcard := []Transform{
		{ID: 1, Kind: TransformText, Enabled: true, Scope: "any", Find: "x", Replace: "y"},
	}
	assert.Equal(t, "y", ApplyTransforms("x", wildcard, nil, MediaVoice),
		"scope 'any' matches every media type")
}

func TestApplyTransformsRegexFlags(t *testing.T) {
	transforms := []Transform{
		{ID: 1, Kind: TransformRegex, Enabled: true, Pattern: `hello`, Flags: "i", Replace: "hi"},
	}
	assert.Equal(t, "hi world", ApplyTransforms("HELLO world", transforms, nil, MediaText))
}

func TestApplyTransformsInvalidRegexSkipped(t *testing.T) {
	transforms := []Transform{
		{ID: 1, Kind: TransformRegex, Enabled: true, Pattern: `([bad`, Replace: "x"},
		{ID: 2, Kind: TransformText, Enabled: true, Find: "world", Replace: "there"},
	}
	// The broken rule is skipped; the rest of the chain still runs.
	assert.Equal(t, "hello there", ApplyTransforms("hello world", transforms, nil, MediaText))
}

func TestApplyTransformsTemplate(t *testing.T) {
	transforms := []Transform{
		{ID: 1, Kind: TransformText, Enabled: true, Priority: 0, Find: "raw", Replace: "cooked"},
		{ID: 2, Kind: TransformTemplate, Enabled: true, Priority: 1,
			Replace: "[{{source_chat_title}}] {{text}} {{missing}}"},
	}
	context := map[string]string{"source_chat_title": "News"}
	// The template sees the running text, so it chains after the first rule;
	// missing keys render empty.
	assert.Equal(t, "[News] cooked item ", ApplyTransforms("raw item", transforms, context, MediaText))
}

func TestSortTransforms(t *testing.T) {
	transforms := []Transform{
		{ID: 9, Priority: 2},
		{ID: 3, Priority: 1},
		{ID: 1, Priority: 1},
	}
	SortTransforms(transforms)
	assert.Equal(t, uint(1), transforms[0].ID)
	assert.Equal(t, uint(3), transforms[1].ID)
	assert.Equal(t, uint(9), transforms[2].ID)
}

func TestPickMediaReplacement(t *testing.T) {
	transforms := []Transform{
		{ID: 1, Kind: TransformMedia, Enabled: false, Scope: "photo", AssetPath: "/assets/disabled.png"},
		{ID: 2, Kind: TransformMedia, Enabled: true, Scope: "video", AssetPath: "/assets/video.mp4"},
		{ID: 3, Kind: TransformMedia, Enabled: true, Scope: "photo", AssetPath: "/assets/photo.png"},
	}
	photo := Media{Present: true, Photo: true}

	path, ok := PickMediaReplacement(photo, "", transforms)
	assert.True(t, ok)
	assert.Equal(t, "/assets/photo.png", path)

	_, ok = PickMediaReplacement(Media{}, "text only", transforms)
	assert.False(t, ok, "messages without media keep their content")

	_, ok = PickMediaReplacement(Media{Present: true, WebPreview: true}, "link", transforms)
	assert.False(t, ok, "link previews are not displayable media")
}
