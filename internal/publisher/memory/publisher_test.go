package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublisherRecordsEncodedMessages(t *testing.T) {
	t.Parallel()

	pub := New()
	id, err := pub.Publish(context.Background(), "runs", map[string]int{"succeeded": 2})
	require.NoError(t, err)
	assert.Equal(t, "memory-1", id)

	msgs := pub.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "runs", msgs[0].Topic)
	assert.JSONEq(t, `{"succeeded":2}`, string(msgs[0].Data))

	_, err = pub.Publish(context.Background(), "runs", func() {})
	require.Error(t, err)
	assert.Len(t, pub.Messages(), 1)
}
