package conversation

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEntryLinePrefixes(t *testing.T) {
	require.Equal(t, "You: hello", Entry{Role: RoleUser, Text: "hello"}.Line())
	require.Equal(t, "AI: hi there", Entry{Role: RoleAssistant, Text: "hi there"}.Line())
}

func TestTranscriptJoinsInOrder(t *testing.T) {
	h := NewHistory()
	require.Equal(t, "", h.Transcript())

	h.Append(RoleUser, "what is this")
	h.Append(RoleAssistant, "a mug")
	h.Append(RoleUser, "what color")

	require.Equal(t, "You: what is this\nAI: a mug\nYou: what color", h.Transcript())
	require.Equal(t, 3, h.Len())
}

func TestEntriesReturnsCopy(t *testing.T) {
	h := NewHistory()
	h.Append(RoleUser, "one")

	entries := h.Entries()
	entries[0].Text = "mutated"

	require.Equal(t, "one", h.Entries()[0].Text)
}

func TestHistoryOnlyGrows(t *testing.T) {
	h := NewHistory()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_ = h.Transcript()
				_ = h.Len()
			}
		}()
	}

	prev := 0
	for i := 0; i < 100; i++ {
		h.Append(RoleUser, "x")
		require.Greater(t, h.Len(), prev)
		prev = h.Len()
	}
	wg.Wait()
	require.Equal(t, 100, h.Len())
}
