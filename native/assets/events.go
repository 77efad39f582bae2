package assets

import (
	"encoding/hex"
	"strconv"

	"editionmarket/core/events"
	"editionmarket/core/types"
)

const (
	// EventTypeUnitsMinted is emitted when new units of a work are issued.
	EventTypeUnitsMinted = "assets.units.minted"
	// EventTypeUnitsTransferred is emitted when units move between owners.
	EventTypeUnitsTransferred = "assets.units.transferred"
	// EventTypeUnitsBurned is emitted when units are permanently destroyed.
	EventTypeUnitsBurned = "assets.units.burned"
	// EventTypeApproval is emitted when an operator approval changes.
	EventTypeApproval = "assets.approval.set"
)

type eventEnvelope struct {
	evt *types.Event
}

func (e eventEnvelope) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e eventEnvelope) Event() *types.Event { return e.evt }

// WrapEvent converts a raw event payload into the emitter-friendly envelope.
func WrapEvent(evt *types.Event) events.Event { return eventEnvelope{evt: evt} }

func hexAddr(addr [20]byte) string {
	return "0x" + hex.EncodeToString(addr[:])
}

func formatUint(v uint64) string {
	return strconv.FormatUint(v, 10)
}

// UnitsMintedEvent returns the payload describing a supply increase.
func UnitsMintedEvent(to [20]byte, workID uint64, amount uint64) *types.Event {
	return &types.Event{
		Type: EventTypeUnitsMinted,
		Attributes: map[string]string{
			"to":     hexAddr(to),
			"workId": formatUint(workID),
			"amount": formatUint(amount),
		},
	}
}

// UnitsTransferredEvent returns the payload describing a unit move.
func UnitsTransferredEvent(from, to [20]byte, workID uint64, amount uint64) *types.Event {
	return &types.Event{
		Type: EventTypeUnitsTransferred,
		Attributes: map[string]string{
			"from":   hexAddr(from),
			"to":     hexAddr(to),
			"workId": formatUint(workID),
			"amount": formatUint(amount),
		},
	}
}

// UnitsBurnedEvent returns the payload describing a burn.
func UnitsBurnedEvent(owner [20]byte, workID uint64, amount uint64) *types.Event {
	return &types.Event{
		Type: EventTypeUnitsBurned,
		Attributes: map[string]string{
			"owner":  hexAddr(owner),
			"workId": formatUint(workID),
			"amount": formatUint(amount),
		},
	}
}

// ApprovalEvent returns the payload describing an approval change.
func ApprovalEvent(owner, operator [20]byte, approved bool) *types.Event {
	return &types.Event{
		Type: EventTypeApproval,
		Attributes: map[string]string{
			"owner":    hexAddr(owner),
			"operator": hexAddr(operator),
			"approved": strconv.FormatBool(approved),
		},
	}
}
