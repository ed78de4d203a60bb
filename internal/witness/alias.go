package witness

import "github.com/whalecell/witness/internal/metrics"

// AliasTable picks the wire identity for an entity id: either the full
// 32-bit id, or its 8-bit alias (zero-based insertion index within the
// witness's membership), per spec §4.5.
//
// Aliasing requires both the alias-ID feature to be enabled server-wide and
// the membership to be small enough that every member's index fits a byte.
// The witness's own id is always aliased to 0 in the per-tick frame prefix.
type AliasTable struct {
	enabled bool
}

func NewAliasTable(enabled bool) AliasTable {
	return AliasTable{enabled: enabled}
}

// usesAlias reports whether ids should be written as aliases for a
// membership of the given size.
func (a AliasTable) usesAlias(membershipSize int) bool {
	return a.enabled && membershipSize <= 255
}

// idWriter is satisfied by both BundleWriter (one forward-bundle) and
// sendBundle (the tick's aggregate bundle) via their embedded *packet.Writer.
type idWriter interface {
	WriteC(v byte)
	WriteDU(v uint32)
}

// WriteEntityID writes id to w, as an alias if the table and membership
// size allow it, otherwise as the full id.
func (a AliasTable) WriteEntityID(w idWriter, m *AOIMembership, id EntityID) {
	if a.usesAlias(m.Len()) {
		alias, ok := m.AliasOf(id)
		if ok {
			w.WriteC(alias)
			return
		}
	}
	metrics.AliasFallbacks.Inc()
	w.WriteDU(uint32(id))
}

// WriteSelfID writes the witness's own id, always alias 0 when aliasing
// applies (spec §4.5).
func (a AliasTable) WriteSelfID(w idWriter, m *AOIMembership, selfID EntityID) {
	if a.usesAlias(m.Len()) {
		w.WriteC(0)
		return
	}
	w.WriteDU(uint32(selfID))
}

// idWireLen returns the number of bytes WriteEntityID would charge for id,
// used by code that needs to predict a forward-bundle's length before
// writing (none currently does — kept for symmetry with the write path).
func (a AliasTable) idWireLen(m *AOIMembership, id EntityID) int {
	if a.usesAlias(m.Len()) {
		if _, ok := m.AliasOf(id); ok {
			return 1
		}
	}
	return 4
}
