package event

import "github.com/whalecell/witness/internal/core/ecs"

// Core session and space-transition event types used by the AOI pipeline.

type PlayerLoggedIn struct {
	EntityID    ecs.EntityID
	AccountName string
}

type PlayerDisconnected struct {
	EntityID  ecs.EntityID
	SessionID uint64
}

// EntityEnteredSpace fires when an entity's witness should install its
// trigger for the given space (spec §4.1's onEnterSpace).
type EntityEnteredSpace struct {
	EntityID ecs.EntityID
	SpaceID  int32
}

// EntityLeftSpace fires when an entity's witness should uninstall its
// trigger (spec §4.1's onLeaveSpace).
type EntityLeftSpace struct {
	EntityID ecs.EntityID
	SpaceID  int32
}

// AOIBudgetOverrun fires when a witness's per-tick bundle exceeded
// PACKET_MAX_SIZE_TCP (spec §7: warn-and-send), for cross-cell telemetry.
type AOIBudgetOverrun struct {
	EntityID    ecs.EntityID
	OverrunSize int
	Tick        uint64
}
