package playback

import (
	"strings"

	"github.com/bawa-mj/vanya/pkg/provider/tts"
)

// preferredHints are name fragments that usually mark a natural-sounding
// voice. Matching is case-insensitive.
var preferredHints = []string{"natural", "neural", "female", "google", "swara"}

// SelectVoice picks the best voice in voices for the BCP-47 tag.
//
// It prefers a voice speaking the tag's language whose name or gender
// metadata hints at a natural voice, then any voice speaking the language.
// Languages are compared on the primary subtag only, so "hi" matches
// "hi-IN". The second result is false when nothing matches and the caller
// should fall back to the engine default. Ties keep list order.
func SelectVoice(voices []tts.VoiceProfile, tag string) (tts.VoiceProfile, bool) {
	want := primarySubtag(tag)
	if want == "" {
		return tts.VoiceProfile{}, false
	}

	var fallback *tts.VoiceProfile
	for i := range voices {
		v := &voices[i]
		if !speaks(v, want) {
			continue
		}
		if preferred(v) {
			return *v, true
		}
		if fallback == nil {
			fallback = v
		}
	}
	if fallback != nil {
		return *fallback, true
	}
	return tts.VoiceProfile{}, false
}

func speaks(v *tts.VoiceProfile, primary string) bool {
	for _, l := range v.Languages {
		if primarySubtag(l) == primary {
			return true
		}
	}
	return false
}

func preferred(v *tts.VoiceProfile) bool {
	if strings.EqualFold(v.Metadata["gender"], "female") {
		return true
	}
	name := strings.ToLower(v.Name)
	for _, h := range preferredHints {
		if strings.Contains(name, h) {
			return true
		}
	}
	return false
}

func primarySubtag(tag string) string {
	tag = strings.TrimSpace(tag)
	if i := strings.IndexAny(tag, "-_"); i >= 0 {
		tag = tag[:i]
	}
	return strings.ToLower(tag)
}
