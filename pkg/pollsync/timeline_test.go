package pollsync

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func msg(id string, seq int64) Message {
	return Message{ID: id, ConversationID: "conv-1", Sequence: seq, Body: id}
}

func TestTimelineMergeIsIdempotent(t *testing.T) {
	tl := NewTimeline("conv-1")

	added := tl.Merge([]Message{msg("m1", 1), msg("m2", 2)})
	require.Len(t, added, 2)
	assert.Equal(t, int64(2), tl.Cursor())

	assert.Empty(t, tl.Merge([]Message{msg("m1", 1), msg("m2", 2)}))
	assert.Equal(t, 2, tl.Len())
	assert.Equal(t, int64(2), tl.Cursor())
}

func TestTimelineMergeOrdersBySequence(t *testing.T) {
	tl := NewTimeline("conv-1")

	tl.Merge([]Message{msg("m3", 3)})
	added := tl.Merge([]Message{msg("m2", 2), msg("m1", 1), msg("m3", 3)})
	require.Len(t, added, 2)
	assert.Equal(t, "m1", added[0].ID)

	var seqs []int64
	for _, m := range tl.Messages() {
		seqs = append(seqs, m.Sequence)
	}
	assert.Equal(t, []int64{1, 2, 3}, seqs)
	assert.Equal(t, int64(3), tl.Cursor())
}

func TestTimelineIgnoresOtherConversations(t *testing.T) {
	tl := NewTimeline("conv-1")

	other := msg("x1", 1)
	other.ConversationID = "conv-2"
	assert.Empty(t, tl.Merge([]Message{other}))
	assert.Equal(t, int64(0), tl.Cursor())
}

func TestTimelineMessagesIsACopy(t *testing.T) {
	tl := NewTimeline("conv-1")
	tl.Merge([]Message{msg("m1", 1)})

	got := tl.Messages()
	got[0].Body = "changed"
	assert.Equal(t, "m1", tl.Messages()[0].Body)
}
