package uploader

import "github.com/beaconlabs/beacon/pkg/types"

// mergeBatch interleaves event and identify rows into a single batch in
// global arrival order. Rows carry a monotonic sequence number assigned at
// log time; rows persisted before sequence numbering existed have none and
// sort ahead of all numbered rows, events before identifys, preserving
// row-id order within each kind. The result is capped at limit.
//
// It returns the merged batch plus the highest row id consumed from each
// kind, which bound the post-acknowledgement deletes.
func mergeBatch(events, identifys []types.Event, limit int) ([]types.Event, int64, int64) {
	merged := make([]types.Event, 0, limit)
	var maxEventID, maxIdentifyID int64

	takeEvent := func() {
		if events[0].RowID > maxEventID {
			maxEventID = events[0].RowID
		}
		merged = append(merged, events[0])
		events = events[1:]
	}
	takeIdentify := func() {
		if identifys[0].RowID > maxIdentifyID {
			maxIdentifyID = identifys[0].RowID
		}
		merged = append(merged, identifys[0])
		identifys = identifys[1:]
	}

	for len(merged) < limit && (len(events) > 0 || len(identifys) > 0) {
		switch {
		case len(identifys) == 0:
			takeEvent()
		case len(events) == 0:
			takeIdentify()
		case !events[0].HasSequenceNumber():
			takeEvent()
		case !identifys[0].HasSequenceNumber():
			takeIdentify()
		case events[0].SequenceNumber < identifys[0].SequenceNumber:
			takeEvent()
		default:
			takeIdentify()
		}
	}

	return merged, maxEventID, maxIdentifyID
}
