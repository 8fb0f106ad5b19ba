// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package protocol

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// Wire constants shared by every supported revision.
const (
	// MaxMessageLength is the largest payload a single capture message may
	// carry.
	MaxMessageLength = 16384

	// GEntityNumBits is the number of bits used to encode an entity number.
	GEntityNumBits = 10
	// MaxGEntities is the number of addressable entities.
	MaxGEntities = 1 << GEntityNumBits
	// EntityNumNone is the entity number used as a list terminator, and to mark
	// a removed entity.
	EntityNumNone = MaxGEntities - 1

	// MaxClients is the maximum number of player slots.
	MaxClients = 64
	// MaxConfigStrings is the size of the config string table.
	MaxConfigStrings = 1024

	// PacketBackup is the number of snapshots retained for delta lookups.
	PacketBackup = 32
	// PacketMask masks a message number into the snapshot ring.
	PacketMask = PacketBackup - 1

	// MaxStats is the size of each player state array (stats, persistant, ammo,
	// powerups).
	MaxStats = 16

	// MaxAreaMaskBytes is the largest area mask a snapshot may carry.
	MaxAreaMaskBytes = 32

	// MaxStringChars is the longest string ReadString will return.
	MaxStringChars = 1024
	// MaxBigStringChars is the longest string ReadBigString will return.
	MaxBigStringChars = 8192

	// EventBits are the toggle bits that make a repeated event distinct.
	EventBits = 0x300
)

// ServerOp is a server-to-client message operation.
type ServerOp uint8

// Server operations. Their values are identical across revisions.
const (
	OpBad           ServerOp = 0
	OpNop           ServerOp = 1
	OpGameState     ServerOp = 2
	OpConfigString  ServerOp = 3
	OpBaseline      ServerOp = 4
	OpServerCommand ServerOp = 5
	OpDownload      ServerOp = 6
	OpSnapshot      ServerOp = 7
	OpEOF           ServerOp = 8
)

func (op ServerOp) String() string {
	switch op {
	case OpBad:
		return "BAD"
	case OpNop:
		return "NOP"
	case OpGameState:
		return "GAMESTATE"
	case OpConfigString:
		return "CONFIGSTRING"
	case OpBaseline:
		return "BASELINE"
	case OpServerCommand:
		return "SERVERCOMMAND"
	case OpDownload:
		return "DOWNLOAD"
	case OpSnapshot:
		return "SNAPSHOT"
	case OpEOF:
		return "EOF"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", op)
	}
}

// Revision is a capture protocol revision tag.
type Revision int

// Supported revisions.
const (
	RevisionInvalid Revision = 0
	Revision66      Revision = 66
	Revision67      Revision = 67
	Revision68      Revision = 68
	Revision73      Revision = 73
	Revision90      Revision = 90
	Revision91      Revision = 91
)

func (r Revision) String() string { return fmt.Sprintf("dm_%d", int(r)) }

// ConfigStringIndices locates well-known config strings. The indices moved
// between game generations.
type ConfigStringIndices struct {
	ServerInfo     int
	SystemInfo     int
	Scores1        int
	Scores2        int
	Warmup         int
	LevelStartTime int
	Intermission   int
	Players        int
}

// Protocol is the fixed set of parameters for one revision.
//
// Protocol values are shared and must not be modified.
type Protocol struct {
	Revision Revision

	// Extension is the capture file extension, including the leading dot.
	Extension string

	// EntityFields is the ordered delta field table for entities.
	EntityFields []Field
	// PlayerFields is the ordered delta field table for the player state.
	PlayerFields []Field

	CS ConfigStringIndices

	// EntityTypeEvents is the first entity type that denotes a temporary event
	// entity (ET_EVENTS).
	EntityTypeEvents int32
	// EventObituary is the event number of a kill notice.
	EventObituary int32

	// MeansOfDeath names each means-of-death value.
	MeansOfDeath []string
}

// PlayerConfigString returns the config string index holding a client's info
// string.
func (p *Protocol) PlayerConfigString(clientNum int) int { return p.CS.Players + clientNum }

// MeanOfDeathName returns the name of a means of death value.
func (p *Protocol) MeanOfDeathName(mod int32) string {
	if mod >= 0 && int(mod) < len(p.MeansOfDeath) {
		return p.MeansOfDeath[mod]
	}
	return fmt.Sprintf("MOD_%d", mod)
}

// EntityEvent returns the event carried by es, if es is an event entity.
func (p *Protocol) EntityEvent(es *EntityState) (int32, bool) {
	et := es.Int(EntType)
	if et < p.EntityTypeEvents {
		return 0, false
	}
	return (et - p.EntityTypeEvents) &^ EventBits, true
}

var q3ConfigStrings = ConfigStringIndices{
	ServerInfo:     0,
	SystemInfo:     1,
	Warmup:         5,
	Scores1:        6,
	Scores2:        7,
	LevelStartTime: 21,
	Intermission:   22,
	Players:        544,
}

var qlConfigStrings = ConfigStringIndices{
	ServerInfo:     0,
	SystemInfo:     1,
	Scores1:        6,
	Scores2:        7,
	Warmup:         13,
	Intermission:   14,
	LevelStartTime: 21,
	Players:        529,
}

var q3MeansOfDeath = []string{
	"UNKNOWN", "SHOTGUN", "GAUNTLET", "MACHINEGUN", "GRENADE", "GRENADE_SPLASH",
	"ROCKET", "ROCKET_SPLASH", "PLASMA", "PLASMA_SPLASH", "RAILGUN", "LIGHTNING",
	"BFG", "BFG_SPLASH", "WATER", "SLIME", "LAVA", "CRUSH", "TELEFRAG", "FALLING",
	"SUICIDE", "TARGET_LASER", "TRIGGER_HURT", "NAIL", "CHAINGUN",
	"PROXIMITY_MINE", "KAMIKAZE", "JUICED", "GRAPPLE",
}

var qlMeansOfDeath = append(append([]string(nil), q3MeansOfDeath...),
	"SWITCH_TEAMS", "THAW", "LIGHTNING_DISCHARGE", "HMG", "RAILGUN_HEADSHOT")

func makeQ3(rev Revision) *Protocol {
	return &Protocol{
		Revision:         rev,
		Extension:        fmt.Sprintf(".dm_%d", int(rev)),
		EntityFields:     q3EntityFields,
		PlayerFields:     q3PlayerFields,
		CS:               q3ConfigStrings,
		EntityTypeEvents: 13,
		EventObituary:    60,
		MeansOfDeath:     q3MeansOfDeath,
	}
}

func makeQL(rev Revision, playerFields []Field) *Protocol {
	return &Protocol{
		Revision:         rev,
		Extension:        fmt.Sprintf(".dm_%d", int(rev)),
		EntityFields:     qlEntityFields,
		PlayerFields:     playerFields,
		CS:               qlConfigStrings,
		EntityTypeEvents: 13,
		EventObituary:    58,
		MeansOfDeath:     qlMeansOfDeath,
	}
}

var protocols = map[Revision]*Protocol{
	Revision66: makeQ3(Revision66),
	Revision67: makeQ3(Revision67),
	Revision68: makeQ3(Revision68),
	Revision73: makeQL(Revision73, ql73PlayerFields),
	Revision90: makeQL(Revision90, ql90PlayerFields),
	Revision91: makeQL(Revision91, ql90PlayerFields),
}

// Lookup returns the Protocol for rev.
func Lookup(rev Revision) (*Protocol, error) {
	if p := protocols[rev]; p != nil {
		return p, nil
	}
	return nil, errors.Wrapf(ErrUnsupported, "revision %d", int(rev))
}

// Revisions returns every supported revision, in ascending order.
func Revisions() []Revision {
	return []Revision{Revision66, Revision67, Revision68, Revision73, Revision90, Revision91}
}

// FromExtension returns the Protocol matching a capture file name's
// extension, such as "foo.dm_68".
func FromExtension(name string) (*Protocol, error) {
	ext := strings.ToLower(filepath.Ext(name))
	for _, p := range protocols {
		if p.Extension == ext {
			return p, nil
		}
	}
	return nil, errors.Wrapf(ErrUnsupported, "extension %q", ext)
}
