package pipeline

import (
	"encoding/json"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/invopop/jsonschema"

	"github.com/bawa-mj/vanya/internal/transcript"
)

// maxBodyInError bounds how much of a bad reply is kept in a ParseError.
const maxBodyInError = 512

// StripFences removes markdown code-fence markers ("```json" and "```")
// anywhere in raw and trims surrounding whitespace.
func StripFences(raw string) string {
	s := strings.ReplaceAll(raw, "```json", "")
	s = strings.ReplaceAll(s, "```JSON", "")
	s = strings.ReplaceAll(s, "```", "")
	return strings.TrimSpace(s)
}

// wireReply distinguishes a missing field from an empty one.
type wireReply struct {
	Shloka   *string `json:"shloka"`
	Meaning  *string `json:"meaning"`
	Guidance *string `json:"guidance"`
}

// Parse decodes a backend reply, tolerating code fences. Unknown fields are
// ignored; each of the three fields must be present and a string, but may be
// empty (a refusal only fills guidance). A bare "null" decodes without error
// and is reported as missing fields.
func Parse(raw string) (transcript.Reply, error) {
	body := StripFences(raw)

	var w wireReply
	if err := json.Unmarshal([]byte(body), &w); err != nil {
		return transcript.Reply{}, &ParseError{Body: truncate(body), Err: err}
	}

	fields := []struct {
		name string
		v    *string
	}{
		{"shloka", w.Shloka},
		{"meaning", w.Meaning},
		{"guidance", w.Guidance},
	}
	var errs []error
	for _, f := range fields {
		if f.v == nil {
			errs = append(errs, errors.New("missing field "+f.name))
		}
	}
	if len(errs) > 0 {
		return transcript.Reply{}, &ParseError{Body: truncate(body), Err: errors.Join(errs...)}
	}

	return transcript.Reply{
		Shloka:   *w.Shloka,
		Meaning:  *w.Meaning,
		Guidance: *w.Guidance,
	}, nil
}

func truncate(s string) string {
	if len(s) <= maxBodyInError {
		return s
	}
	n := maxBodyInError
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "…"
}

// ReplySchema returns the JSON Schema of [transcript.Reply] sent to backends
// that can enforce structured output.
func ReplySchema() *jsonschema.Schema {
	r := jsonschema.Reflector{DoNotReference: true, Anonymous: true}
	s := r.Reflect(&transcript.Reply{})
	s.Version = ""
	return s
}
