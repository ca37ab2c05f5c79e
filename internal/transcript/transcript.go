// Package transcript keeps the ordered, append-only log of conversation turns
// exchanged during one session.
package transcript

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bawa-mj/vanya/internal/locale"
)

// Speaker identifies who authored a [Turn].
type Speaker string

const (
	User      Speaker = "user"
	Assistant Speaker = "assistant"
)

// Reply is the structured guidance produced by the backend.
type Reply struct {
	Shloka   string `json:"shloka" jsonschema:"description=Sanskrit Shloka or Chaupai text"`
	Meaning  string `json:"meaning" jsonschema:"description=Meaning of the verse in the requested language"`
	Guidance string `json:"guidance" jsonschema:"description=Practical advice in the requested language"`
}

// Utterance joins the non-blank fields into the single text spoken aloud.
func (r Reply) Utterance() string {
	parts := make([]string, 0, 3)
	for _, p := range []string{r.Shloka, r.Meaning, r.Guidance} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ". ")
}

// Turn is one immutable entry in the transcript. Text is set for user turns,
// Reply for assistant turns.
type Turn struct {
	ID      string      `json:"id"`
	Speaker Speaker     `json:"speaker"`
	Text    string      `json:"text,omitempty"`
	Reply   Reply       `json:"reply,omitzero"`
	Locale  locale.Code `json:"locale"`
	At      time.Time   `json:"at"`
}

// Transcript is safe for concurrent use. Turns are only ever appended.
type Transcript struct {
	mu    sync.RWMutex
	turns []Turn
	now   func() time.Time
}

// New returns an empty transcript.
func New() *Transcript {
	return &Transcript{now: time.Now}
}

// AppendUser records what the user said under the locale active at capture.
func (t *Transcript) AppendUser(text string, code locale.Code) Turn {
	return t.append(Turn{Speaker: User, Text: text, Locale: code})
}

// AppendAssistant records a parsed reply under the request's locale snapshot.
func (t *Transcript) AppendAssistant(r Reply, code locale.Code) Turn {
	return t.append(Turn{Speaker: Assistant, Reply: r, Locale: code})
}

func (t *Transcript) append(turn Turn) Turn {
	turn.ID = uuid.NewString()
	t.mu.Lock()
	defer t.mu.Unlock()
	turn.At = t.now()
	t.turns = append(t.turns, turn)
	return turn
}

// Turns returns a copy of all turns in insertion order.
func (t *Transcript) Turns() []Turn {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Turn, len(t.turns))
	copy(out, t.turns)
	return out
}

// Len returns the number of turns.
func (t *Transcript) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.turns)
}
