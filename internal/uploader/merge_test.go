package uploader

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/beaconlabs/beacon/pkg/types"
)

func ev(rowID, seq int64) types.Event {
	return types.Event{RowID: rowID, Kind: types.KindEvent, EventType: "e", SequenceNumber: seq}
}

func ident(rowID, seq int64) types.Event {
	return types.Event{RowID: rowID, Kind: types.KindIdentify, EventType: types.EventTypeIdentify, SequenceNumber: seq}
}

func seqs(batch []types.Event) []int64 {
	out := make([]int64, len(batch))
	for i, e := range batch {
		out[i] = e.SequenceNumber
	}
	return out
}

func TestMergeBatch_InterleavesBySequenceNumber(t *testing.T) {
	events := []types.Event{ev(1, 1), ev(2, 4), ev(3, 5)}
	identifys := []types.Event{ident(1, 2), ident(2, 3)}

	batch, maxE, maxI := mergeBatch(events, identifys, 100)

	assert.Equal(t, []int64{1, 2, 3, 4, 5}, seqs(batch))
	assert.Equal(t, int64(3), maxE)
	assert.Equal(t, int64(2), maxI)
}

func TestMergeBatch_RespectsLimit(t *testing.T) {
	events := []types.Event{ev(1, 1), ev(2, 3)}
	identifys := []types.Event{ident(1, 2), ident(2, 4)}

	batch, maxE, maxI := mergeBatch(events, identifys, 3)

	assert.Equal(t, []int64{1, 2, 3}, seqs(batch))
	assert.Equal(t, int64(2), maxE)
	assert.Equal(t, int64(1), maxI, "unconsumed identify must not be acknowledged")
}

func TestMergeBatch_LegacyRowsSortFirst(t *testing.T) {
	events := []types.Event{ev(5, 0), ev(6, 7)}
	identifys := []types.Event{ident(2, 0), ident(3, 6)}

	batch, _, _ := mergeBatch(events, identifys, 100)

	// Rows without sequence numbers drain first, events before identifys.
	assert.Equal(t, "e", batch[0].EventType)
	assert.Equal(t, int64(0), batch[0].SequenceNumber)
	assert.Equal(t, types.EventTypeIdentify, batch[1].EventType)
	assert.Equal(t, int64(0), batch[1].SequenceNumber)
	assert.Equal(t, []int64{0, 0, 6, 7}, seqs(batch))
}

func TestMergeBatch_OneSideEmpty(t *testing.T) {
	batch, maxE, maxI := mergeBatch([]types.Event{ev(1, 1), ev(2, 2)}, nil, 100)
	assert.Len(t, batch, 2)
	assert.Equal(t, int64(2), maxE)
	assert.Equal(t, int64(0), maxI)

	batch, maxE, maxI = mergeBatch(nil, []types.Event{ident(1, 1)}, 100)
	assert.Len(t, batch, 1)
	assert.Equal(t, int64(0), maxE)
	assert.Equal(t, int64(1), maxI)
}

func TestMergeBatch_Empty(t *testing.T) {
	batch, maxE, maxI := mergeBatch(nil, nil, 100)
	assert.Empty(t, batch)
	assert.Equal(t, int64(0), maxE)
	assert.Equal(t, int64(0), maxI)
}
