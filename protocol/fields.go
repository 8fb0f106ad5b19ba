// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package protocol

// Field is one entry in a delta field table.
//
// Bits is the encoded width of an integer field. A negative width denotes a
// signed field, and a width of zero denotes a float field.
type Field struct {
	Name  string
	Index int
	Bits  int
}

// IsFloat returns true if f is a float field.
func (f *Field) IsFloat() bool { return f.Bits == 0 }

// EntityField indexes EntityState.Fields.
type EntityField int

// Entity fields. This is the union of the fields of every revision; a
// revision's field table selects and orders the subset it transmits.
const (
	EntPosTrType EntityField = iota
	EntPosTrTime
	EntPosTrDuration
	EntPosTrBase0
	EntPosTrBase1
	EntPosTrBase2
	EntPosTrDelta0
	EntPosTrDelta1
	EntPosTrDelta2
	EntAposTrType
	EntAposTrTime
	EntAposTrDuration
	EntAposTrBase0
	EntAposTrBase1
	EntAposTrBase2
	EntAposTrDelta0
	EntAposTrDelta1
	EntAposTrDelta2
	EntTime
	EntTime2
	EntOrigin0
	EntOrigin1
	EntOrigin2
	EntSecOrigin0
	EntSecOrigin1
	EntSecOrigin2
	EntAngles0
	EntAngles1
	EntAngles2
	EntSecAngles0
	EntSecAngles1
	EntSecAngles2
	EntOtherEntityNum
	EntOtherEntityNum2
	EntGroundEntityNum
	EntConstantLight
	EntLoopSound
	EntModelIndex
	EntModelIndex2
	EntClientNum
	EntFrame
	EntSolid
	EntEvent
	EntEventParm
	EntPowerups
	EntWeapon
	EntLegsAnim
	EntTorsoAnim
	EntGeneric1
	EntType
	EntFlags
	EntPosGravity
	EntAposGravity
	EntJumpTime
	EntDoubleJump
	EntHealth
	EntArmor
	EntLocation

	// NumEntityFields is the size of EntityState.Fields.
	NumEntityFields
)

// PlayerField indexes PlayerState.Fields.
type PlayerField int

// Player state fields, as the union of every revision's fields.
const (
	PSCommandTime PlayerField = iota
	PSOrigin0
	PSOrigin1
	PSOrigin2
	PSBobCycle
	PSVelocity0
	PSVelocity1
	PSVelocity2
	PSViewAngles0
	PSViewAngles1
	PSViewAngles2
	PSWeaponTime
	PSLegsTimer
	PSPMTime
	PSEventSequence
	PSTorsoAnim
	PSMovementDir
	PSEvents0
	PSEvents1
	PSLegsAnim
	PSPMFlags
	PSGroundEntityNum
	PSWeaponState
	PSEFlags
	PSExternalEvent
	PSGravity
	PSSpeed
	PSDeltaAngles0
	PSDeltaAngles1
	PSDeltaAngles2
	PSExternalEventParm
	PSViewHeight
	PSDamageEvent
	PSDamageYaw
	PSDamagePitch
	PSDamageCount
	PSGeneric1
	PSPMType
	PSTorsoTimer
	PSEventParms0
	PSEventParms1
	PSClientNum
	PSWeapon
	PSGrapplePoint0
	PSGrapplePoint1
	PSGrapplePoint2
	PSJumppadEnt
	PSLoopSound
	PSJumpTime
	PSDoubleJump
	PSCrouchTime
	PSCrouchSlideTime
	PSLocation
	PSFov
	PSForwardMove
	PSRightMove
	PSUpMove

	// NumPlayerFields is the size of PlayerState.Fields.
	NumPlayerFields
)

func ef(name string, f EntityField, bits int) Field {
	return Field{Name: name, Index: int(f), Bits: bits}
}

func pf(name string, f PlayerField, bits int) Field {
	return Field{Name: name, Index: int(f), Bits: bits}
}

var q3EntityFields = []Field{
	ef("pos.trTime", EntPosTrTime, 32),
	ef("pos.trBase[0]", EntPosTrBase0, 0),
	ef("pos.trBase[1]", EntPosTrBase1, 0),
	ef("pos.trDelta[0]", EntPosTrDelta0, 0),
	ef("pos.trDelta[1]", EntPosTrDelta1, 0),
	ef("pos.trBase[2]", EntPosTrBase2, 0),
	ef("apos.trBase[1]", EntAposTrBase1, 0),
	ef("pos.trDelta[2]", EntPosTrDelta2, 0),
	ef("apos.trBase[0]", EntAposTrBase0, 0),
	ef("event", EntEvent, 10),
	ef("angles2[1]", EntSecAngles1, 0),
	ef("eType", EntType, 8),
	ef("torsoAnim", EntTorsoAnim, 8),
	ef("eventParm", EntEventParm, 8),
	ef("legsAnim", EntLegsAnim, 8),
	ef("groundEntityNum", EntGroundEntityNum, GEntityNumBits),
	ef("pos.trType", EntPosTrType, 8),
	ef("eFlags", EntFlags, 19),
	ef("otherEntityNum", EntOtherEntityNum, GEntityNumBits),
	ef("weapon", EntWeapon, 8),
	ef("clientNum", EntClientNum, 8),
	ef("angles[1]", EntAngles1, 0),
	ef("pos.trDuration", EntPosTrDuration, 32),
	ef("apos.trType", EntAposTrType, 8),
	ef("origin[0]", EntOrigin0, 0),
	ef("origin[1]", EntOrigin1, 0),
	ef("origin[2]", EntOrigin2, 0),
	ef("solid", EntSolid, 24),
	ef("powerups", EntPowerups, MaxStats),
	ef("modelindex", EntModelIndex, 8),
	ef("otherEntityNum2", EntOtherEntityNum2, GEntityNumBits),
	ef("loopSound", EntLoopSound, 8),
	ef("generic1", EntGeneric1, 8),
	ef("origin2[2]", EntSecOrigin2, 0),
	ef("origin2[0]", EntSecOrigin0, 0),
	ef("origin2[1]", EntSecOrigin1, 0),
	ef("modelindex2", EntModelIndex2, 8),
	ef("angles[0]", EntAngles0, 0),
	ef("time", EntTime, 32),
	ef("apos.trTime", EntAposTrTime, 32),
	ef("apos.trDuration", EntAposTrDuration, 32),
	ef("apos.trBase[2]", EntAposTrBase2, 0),
	ef("apos.trDelta[0]", EntAposTrDelta0, 0),
	ef("apos.trDelta[1]", EntAposTrDelta1, 0),
	ef("apos.trDelta[2]", EntAposTrDelta2, 0),
	ef("time2", EntTime2, 32),
	ef("angles[2]", EntAngles2, 0),
	ef("angles2[0]", EntSecAngles0, 0),
	ef("angles2[2]", EntSecAngles2, 0),
	ef("constantLight", EntConstantLight, 32),
	ef("frame", EntFrame, 16),
}

var qlEntityFields = append(append([]Field(nil), q3EntityFields...),
	ef("pos.gravity", EntPosGravity, 32),
	ef("apos.gravity", EntAposGravity, 32),
	ef("jumpTime", EntJumpTime, 32),
	ef("doubleJump", EntDoubleJump, 1),
	ef("health", EntHealth, 16),
	ef("armor", EntArmor, 16),
	ef("location", EntLocation, 8),
)

var q3PlayerFields = []Field{
	pf("commandTime", PSCommandTime, 32),
	pf("origin[0]", PSOrigin0, 0),
	pf("origin[1]", PSOrigin1, 0),
	pf("bobCycle", PSBobCycle, 8),
	pf("velocity[0]", PSVelocity0, 0),
	pf("velocity[1]", PSVelocity1, 0),
	pf("viewangles[1]", PSViewAngles1, 0),
	pf("viewangles[0]", PSViewAngles0, 0),
	pf("weaponTime", PSWeaponTime, -16),
	pf("origin[2]", PSOrigin2, 0),
	pf("velocity[2]", PSVelocity2, 0),
	pf("legsTimer", PSLegsTimer, 8),
	pf("pm_time", PSPMTime, -16),
	pf("eventSequence", PSEventSequence, 16),
	pf("torsoAnim", PSTorsoAnim, 8),
	pf("movementDir", PSMovementDir, 4),
	pf("events[0]", PSEvents0, 8),
	pf("legsAnim", PSLegsAnim, 8),
	pf("events[1]", PSEvents1, 8),
	pf("pm_flags", PSPMFlags, 16),
	pf("groundEntityNum", PSGroundEntityNum, GEntityNumBits),
	pf("weaponstate", PSWeaponState, 4),
	pf("eFlags", PSEFlags, 16),
	pf("externalEvent", PSExternalEvent, 10),
	pf("gravity", PSGravity, 16),
	pf("speed", PSSpeed, 16),
	pf("delta_angles[1]", PSDeltaAngles1, 16),
	pf("externalEventParm", PSExternalEventParm, 8),
	pf("viewheight", PSViewHeight, -8),
	pf("damageEvent", PSDamageEvent, 8),
	pf("damageYaw", PSDamageYaw, 8),
	pf("damagePitch", PSDamagePitch, 8),
	pf("damageCount", PSDamageCount, 8),
	pf("generic1", PSGeneric1, 8),
	pf("pm_type", PSPMType, 8),
	pf("delta_angles[0]", PSDeltaAngles0, 16),
	pf("delta_angles[2]", PSDeltaAngles2, 16),
	pf("torsoTimer", PSTorsoTimer, 12),
	pf("eventParms[0]", PSEventParms0, 8),
	pf("eventParms[1]", PSEventParms1, 8),
	pf("clientNum", PSClientNum, 8),
	pf("weapon", PSWeapon, 5),
	pf("viewangles[2]", PSViewAngles2, 0),
	pf("grapplePoint[0]", PSGrapplePoint0, 0),
	pf("grapplePoint[1]", PSGrapplePoint1, 0),
	pf("grapplePoint[2]", PSGrapplePoint2, 0),
	pf("jumppad_ent", PSJumppadEnt, GEntityNumBits),
	pf("loopSound", PSLoopSound, 16),
}

var ql73PlayerFields = append(append([]Field(nil), q3PlayerFields...),
	pf("jumpTime", PSJumpTime, 32),
	pf("doubleJump", PSDoubleJump, 1),
)

var ql90PlayerFields = append(append([]Field(nil), ql73PlayerFields...),
	pf("crouchTime", PSCrouchTime, 32),
	pf("crouchSlideTime", PSCrouchSlideTime, 32),
	pf("location", PSLocation, 8),
	pf("fov", PSFov, 8),
	pf("forwardmove", PSForwardMove, -8),
	pf("rightmove", PSRightMove, -8),
	pf("upmove", PSUpMove, -8),
)
