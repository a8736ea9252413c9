// Package identify accumulates user-property operations into a single
// operation set. Each property name can be claimed by at most one operation
// per Identify instance; later calls for a claimed property are silent
// no-ops, so callers can chain mutators without worrying about conflicts.
package identify

import (
	"github.com/beaconlabs/beacon/pkg/types"
)

// OpKind names a user-property operation as the collector serializes it.
type OpKind string

const (
	OpSet      OpKind = "$set"
	OpSetOnce  OpKind = "$setOnce"
	OpAdd      OpKind = "$add"
	OpAppend   OpKind = "$append"
	OpUnset    OpKind = "$unset"
	OpClearAll OpKind = "$clearAll"
)

// UnsetSentinel is the serialized value for unset and clear-all operations.
const UnsetSentinel = "-"

// Identify is a mutable operation set. The zero value is not usable; use
// New. Not safe for concurrent use.
type Identify struct {
	ops     map[OpKind]map[string]interface{}
	claimed map[string]bool
	cleared bool
}

// New creates an empty operation set.
func New() *Identify {
	return &Identify{
		ops:     make(map[OpKind]map[string]interface{}),
		claimed: make(map[string]bool),
	}
}

// Set assigns a value to a user property.
func (i *Identify) Set(property string, value interface{}) *Identify {
	return i.add(OpSet, property, types.Normalize(value))
}

// SetOnce assigns a value only if the property has never been set
// server-side.
func (i *Identify) SetOnce(property string, value interface{}) *Identify {
	return i.add(OpSetOnce, property, types.Normalize(value))
}

// Add increments a numeric user property.
func (i *Identify) Add(property string, value interface{}) *Identify {
	return i.add(OpAdd, property, types.Normalize(value))
}

// Append appends a value to a list-valued user property.
func (i *Identify) Append(property string, value interface{}) *Identify {
	return i.add(OpAppend, property, types.Normalize(value))
}

// Unset removes a user property.
func (i *Identify) Unset(property string) *Identify {
	return i.add(OpUnset, property, UnsetSentinel)
}

// ClearAll removes all user properties. Clear-all is exclusive: it replaces
// the entire operation set and makes the instance immutable; subsequent
// mutators are no-ops.
func (i *Identify) ClearAll() *Identify {
	if i.cleared {
		return i
	}
	i.ops = make(map[OpKind]map[string]interface{})
	i.claimed = make(map[string]bool)
	i.cleared = true
	return i
}

func (i *Identify) add(kind OpKind, property string, value interface{}) *Identify {
	if i.cleared || property == "" || i.claimed[property] {
		return i
	}
	if i.ops[kind] == nil {
		i.ops[kind] = make(map[string]interface{})
	}
	i.ops[kind][property] = value
	i.claimed[property] = true
	return i
}

// IsEmpty reports whether no operations have been recorded.
func (i *Identify) IsEmpty() bool {
	return !i.cleared && len(i.ops) == 0
}

// Operations returns the operation set as the payload merged into an
// identify event's user_properties field. A cleared instance serializes as
// the single sentinel entry. The returned map is a copy; mutating it does
// not affect the Identify.
func (i *Identify) Operations() map[string]interface{} {
	if i.cleared {
		return map[string]interface{}{string(OpClearAll): UnsetSentinel}
	}
	out := make(map[string]interface{}, len(i.ops))
	for kind, props := range i.ops {
		bucket := make(map[string]interface{}, len(props))
		for k, v := range props {
			bucket[k] = v
		}
		out[string(kind)] = bucket
	}
	return out
}
