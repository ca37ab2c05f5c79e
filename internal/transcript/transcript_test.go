package transcript_test

import (
	"sync"
	"testing"

	"github.com/bawa-mj/vanya/internal/locale"
	"github.com/bawa-mj/vanya/internal/transcript"
)

func TestReply_Utterance(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		reply transcript.Reply
		want  string
	}{
		{"all fields", transcript.Reply{Shloka: "S", Meaning: "M", Guidance: "G"}, "S. M. G"},
		{"refusal", transcript.Reply{Shloka: "", Meaning: " ", Guidance: "I am Vanya."}, "I am Vanya."},
		{"empty", transcript.Reply{}, ""},
	}
	for _, tt := range tests {
		if got := tt.reply.Utterance(); got != tt.want {
			t.Errorf("%s: Utterance() = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestTranscript_AppendOrder(t *testing.T) {
	t.Parallel()
	tr := transcript.New()

	u := tr.AppendUser("I feel anxious", locale.English)
	a := tr.AppendAssistant(transcript.Reply{Shloka: "S", Meaning: "M", Guidance: "G"}, locale.English)

	turns := tr.Turns()
	if len(turns) != 2 {
		t.Fatalf("len = %d, want 2", len(turns))
	}
	if turns[0].ID != u.ID || turns[0].Speaker != transcript.User || turns[0].Text != "I feel anxious" {
		t.Errorf("turn 0 = %+v", turns[0])
	}
	if turns[1].ID != a.ID || turns[1].Speaker != transcript.Assistant || turns[1].Reply.Guidance != "G" {
		t.Errorf("turn 1 = %+v", turns[1])
	}
	if u.ID == "" || u.ID == a.ID {
		t.Errorf("ids must be unique and non-empty: %q %q", u.ID, a.ID)
	}
	if turns[1].At.Before(turns[0].At) {
		t.Error("timestamps out of order")
	}
}

func TestTranscript_PrefixExtension(t *testing.T) {
	t.Parallel()
	tr := transcript.New()

	var prev []transcript.Turn
	for i := range 10 {
		if i%2 == 0 {
			tr.AppendUser("q", locale.Hindi)
		} else {
			tr.AppendAssistant(transcript.Reply{Shloka: "s"}, locale.Hindi)
		}
		cur := tr.Turns()
		if len(cur) != len(prev)+1 {
			t.Fatalf("step %d: len %d, want %d", i, len(cur), len(prev)+1)
		}
		for j := range prev {
			if cur[j] != prev[j] {
				t.Fatalf("step %d: turn %d changed from %+v to %+v", i, j, prev[j], cur[j])
			}
		}
		prev = cur
	}
}

func TestTranscript_TurnsIsACopy(t *testing.T) {
	t.Parallel()
	tr := transcript.New()
	tr.AppendUser("original", locale.English)

	got := tr.Turns()
	got[0].Text = "mutated"

	if tr.Turns()[0].Text != "original" {
		t.Error("mutating the returned slice changed the transcript")
	}
}

func TestTranscript_ConcurrentReaders(t *testing.T) {
	t.Parallel()
	tr := transcript.New()

	var wg sync.WaitGroup
	for range 4 {
		wg.Go(func() {
			for range 100 {
				_ = tr.Turns()
				_ = tr.Len()
			}
		})
	}
	for range 100 {
		tr.AppendUser("x", locale.English)
	}
	wg.Wait()

	if tr.Len() != 100 {
		t.Errorf("Len() = %d, want 100", tr.Len())
	}
}
