// Package protocol defines the multiworld service wire format: the message
// type enumeration, the envelope header stamped on every outbound frame, the
// typed message bodies, and the JSON codec that moves them over the socket.
package protocol

import "fmt"

// MessageType is the integer `type` tag carried by every envelope.
type MessageType int

// Gameplay messages.
const (
	TypeItemFill      MessageType = 0x00
	TypeDungeonFill   MessageType = 0x01
	TypeEquipmentFill MessageType = 0x02
	TypeRequestItem   MessageType = 0x03
	TypeAcquireItem   MessageType = 0x04
	TypeFinish        MessageType = 0x05
)

// Lobby and session management messages.
const (
	TypeLobbyRequest     MessageType = 0x10
	TypeLobbyEntry       MessageType = 0x11
	TypeCreate           MessageType = 0x12
	TypeDestroy          MessageType = 0x13
	TypeIdentify         MessageType = 0x14
	TypeKnock            MessageType = 0x15
	TypeWorldDescription MessageType = 0x16
	TypeWorldClaim       MessageType = 0x17
	TypeRoomReady        MessageType = 0x18
	TypeKick             MessageType = 0x19
	TypeImportRecords    MessageType = 0x1F
)

// File and session action messages.
const (
	TypeCreateFile    MessageType = 0x40
	TypeDeleteFile    MessageType = 0x41
	TypeSelectSpawn   MessageType = 0x42
	TypeEnterArea     MessageType = 0x43
	TypeFinishDungeon MessageType = 0x44
	TypeDeath         MessageType = 0x45
	TypeSaveQuit      MessageType = 0x46
)

// Write preparation and meta messages.
const (
	TypePrepWrite    MessageType = 0xE0
	TypeChat         MessageType = 0xF0
	TypeIntroduction MessageType = 0xF1
	TypeVersion      MessageType = 0xFE
	TypeLog          MessageType = 0xFF
)

var messageTypeNames = map[MessageType]string{
	TypeItemFill:      "ItemFill",
	TypeDungeonFill:   "DungeonFill",
	TypeEquipmentFill: "EquipmentFill",
	TypeRequestItem:   "RequestItem",
	TypeAcquireItem:   "AcquireItem",
	TypeFinish:        "Finish",

	TypeLobbyRequest:     "LobbyRequest",
	TypeLobbyEntry:       "LobbyEntry",
	TypeCreate:           "Create",
	TypeDestroy:          "Destroy",
	TypeIdentify:         "Identify",
	TypeKnock:            "Knock",
	TypeWorldDescription: "WorldDescription",
	TypeWorldClaim:       "WorldClaim",
	TypeRoomReady:        "RoomReady",
	TypeKick:             "Kick",
	TypeImportRecords:    "ImportRecords",

	TypeCreateFile:    "CreateFile",
	TypeDeleteFile:    "DeleteFile",
	TypeSelectSpawn:   "SelectSpawn",
	TypeEnterArea:     "EnterArea",
	TypeFinishDungeon: "FinishDungeon",
	TypeDeath:         "Death",
	TypeSaveQuit:      "SaveQuit",

	TypePrepWrite: "PrepWrite",

	TypeChat:         "Chat",
	TypeIntroduction: "Introduction",
	TypeVersion:      "Version",
	TypeLog:          "Log",
}

// Known reports whether t is a member of the message enumeration.
func (t MessageType) Known() bool {
	_, ok := messageTypeNames[t]
	return ok
}

// String returns the message kind name, or a hex form for unknown tags.
func (t MessageType) String() string {
	if name, ok := messageTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("MessageType(0x%02X)", int(t))
}

// GameMode selects the kind of session the service creates.
type GameMode int

const (
	ModeLobby GameMode = iota
	ModeSecure1P
	ModeMultiworld
	ModeLockoutTriforce
	ModeAutoBingo
	ModeSharedState
	ModeDungeonCrawl
)

var gameModeNames = []string{
	"Lobby",
	"Secure1P",
	"Multiworld",
	"LockoutTriforce",
	"AutoBingo",
	"SharedState",
	"DungeonCrawl",
}

func (m GameMode) String() string {
	if m >= 0 && int(m) < len(gameModeNames) {
		return gameModeNames[m]
	}
	return fmt.Sprintf("GameMode(%d)", int(m))
}

// ParseGameMode resolves a mode name, case-sensitive, to its value.
func ParseGameMode(name string) (GameMode, error) {
	for i, n := range gameModeNames {
		if n == name {
			return GameMode(i), nil
		}
	}
	return 0, fmt.Errorf("unknown game mode %q", name)
}

// Resolution is the item substituted when a player finishes, forfeits, or is
// kicked, and the item presentation policy (animation, jingle, toast) on Create.
type Resolution int

// ResolutionNothing leaves outstanding items unresolved.
const ResolutionNothing Resolution = 0

// ImportType identifies the encoding of an ImportRecords body.
type ImportType int

// ImportV31JSON is the v31 JSON settings export.
const ImportV31JSON ImportType = 0
