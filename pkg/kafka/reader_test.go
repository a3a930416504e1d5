package kafka

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPartitionRangeEmpty(t *testing.T) {
	require.True(t, PartitionRange{First: 5, End: 5}.Empty())
	require.True(t, PartitionRange{First: 7, End: 5}.Empty())
	require.False(t, PartitionRange{First: 0, End: 1}.Empty())
}

func TestPartitionRangeAccept(t *testing.T) {
	rg := PartitionRange{Partition: 1, First: 10, End: 13}
	for _, tc := range []struct {
		offset  int64
		deliver bool
		done    bool
	}{
		{offset: 9, deliver: false, done: false},
		{offset: 10, deliver: true, done: false},
		{offset: 11, deliver: true, done: false},
		{offset: 12, deliver: true, done: true},
		// Written after the range was recorded.
		{offset: 13, deliver: false, done: true},
		{offset: 40, deliver: false, done: true},
	} {
		deliver, done := rg.Accept(tc.offset)
		require.Equal(t, tc.deliver, deliver, "offset %d", tc.offset)
		require.Equal(t, tc.done, done, "offset %d", tc.offset)
	}
}

func TestNextSkipsEmptyPartitions(t *testing.T) {
	r := &TopicReader{ranges: []PartitionRange{
		{Partition: 0, First: 3, End: 3},
		{Partition: 1, First: 0, End: 0},
	}}
	_, err := r.Next(context.Background())
	require.ErrorIs(t, err, io.EOF)
	require.Nil(t, r.reader)
	require.NoError(t, r.Close())
}
