package witness

// MessageID identifies a wire message this component emits. Bit-exact wire
// layout is the channel's concern (spec §1); only identity matters here.
type MessageID byte

const (
	MsgNull MessageID = iota
	MsgUpdatePropertys
	MsgEntityEnterWorld
	MsgEntityLeaveWorld
	MsgEntityLeaveWorldOptimized
	MsgUpdateBasePos
	MsgUpdateBasePosXZ

	// The 27-way (spec's count; the original's switch has exactly 24 live
	// cases, see DESIGN.md Open Question 1) volatile-delta dispatch table.
	MsgUpdateData
	MsgUpdateDataXZ
	MsgUpdateDataXYZ
	MsgUpdateDataY
	MsgUpdateDataP
	MsgUpdateDataR
	MsgUpdateDataYP
	MsgUpdateDataYR
	MsgUpdateDataPR
	MsgUpdateDataYPR
	MsgUpdateDataXZY
	MsgUpdateDataXZP
	MsgUpdateDataXZR
	MsgUpdateDataXZYP
	MsgUpdateDataXZYR
	MsgUpdateDataXZPR
	MsgUpdateDataXZYPR
	MsgUpdateDataXYZY
	MsgUpdateDataXYZP
	MsgUpdateDataXYZR
	MsgUpdateDataXYZYP
	MsgUpdateDataXYZYR
	MsgUpdateDataXYZPR
	MsgUpdateDataXYZYPR
)

// UpdateFlag is the bitset DeltaEncoder produces, ported from the original's
// UPDATE_FLAG_* #defines. The bit positions below are load-bearing: the
// dense lookup table is indexed by this exact 9-bit value (spec §9).
type UpdateFlag uint32

const (
	FlagNull UpdateFlag = 0
	FlagXZ   UpdateFlag = 1 << 0
	FlagXYZ  UpdateFlag = 1 << 1
	FlagYaw  UpdateFlag = 1 << 2
	FlagRoll UpdateFlag = 1 << 3
	FlagPitch UpdateFlag = 1 << 4
	FlagYawPitchRoll UpdateFlag = 1 << 5
	FlagYawPitch     UpdateFlag = 1 << 6
	FlagYawRoll      UpdateFlag = 1 << 7
	FlagPitchRoll    UpdateFlag = 1 << 8
)

// flagTableSize covers the full 9-bit UpdateFlag space; every index not
// populated below is illegal (messageTable entry messageIllegal).
const flagTableSize = 1 << 9

const messageIllegal = MessageID(0xFF)

var messageTable = buildMessageTable()

func buildMessageTable() [flagTableSize]MessageID {
	var t [flagTableSize]MessageID
	for i := range t {
		t[i] = messageIllegal
	}

	set := func(flags UpdateFlag, id MessageID) { t[flags] = id }

	set(FlagNull, MsgUpdateData)
	set(FlagXZ, MsgUpdateDataXZ)
	set(FlagXYZ, MsgUpdateDataXYZ)
	set(FlagYaw, MsgUpdateDataY)
	set(FlagPitch, MsgUpdateDataP)
	set(FlagRoll, MsgUpdateDataR)
	set(FlagYawPitch, MsgUpdateDataYP)
	set(FlagYawRoll, MsgUpdateDataYR)
	set(FlagPitchRoll, MsgUpdateDataPR)
	set(FlagYawPitchRoll, MsgUpdateDataYPR)

	set(FlagXZ|FlagYaw, MsgUpdateDataXZY)
	set(FlagXZ|FlagPitch, MsgUpdateDataXZP)
	set(FlagXZ|FlagRoll, MsgUpdateDataXZR)
	set(FlagXZ|FlagYawRoll, MsgUpdateDataXZYR)
	set(FlagXZ|FlagYawPitch, MsgUpdateDataXZYP)
	set(FlagXZ|FlagPitchRoll, MsgUpdateDataXZPR)
	set(FlagXZ|FlagYawPitchRoll, MsgUpdateDataXZYPR)

	set(FlagXYZ|FlagYaw, MsgUpdateDataXYZY)
	set(FlagXYZ|FlagPitch, MsgUpdateDataXYZP)
	set(FlagXYZ|FlagRoll, MsgUpdateDataXYZR)
	set(FlagXYZ|FlagYawRoll, MsgUpdateDataXYZYR)
	set(FlagXYZ|FlagYawPitch, MsgUpdateDataXYZYP)
	set(FlagXYZ|FlagPitchRoll, MsgUpdateDataXYZPR)
	set(FlagXYZ|FlagYawPitchRoll, MsgUpdateDataXYZYPR)

	return t
}

// messageFor looks up the message identity for a flag combination. A flag
// value outside the legal table is a programmer error: DeltaEncoder can
// only ever produce the 24 combinations populated above, so reaching the
// sentinel means DeltaEncoder itself has a bug (spec §7's fatal-assertion
// path).
func messageFor(flags UpdateFlag) MessageID {
	id := messageTable[flags]
	if id == messageIllegal {
		panic("witness: illegal update-flag combination")
	}
	return id
}
