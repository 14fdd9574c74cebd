package protocol

// Header carries the fields shared by every envelope. ID, Created and Sender
// are stamped on outbound frames immediately before transmission.
type Header struct {
	Type    MessageType `json:"type"`
	ID      string      `json:"id,omitempty"`
	Created int64       `json:"created,omitempty"`
	Sender  string      `json:"sender,omitempty"`
}

func (h *Header) header() *Header { return h }

// Message is implemented by every typed body. Bodies embed Header and are
// always handled by pointer.
type Message interface {
	Kind() MessageType
	header() *Header
}

// LobbyRequest subscribes the lobby connection to LobbyEntry pushes.
type LobbyRequest struct {
	Header
}

func (*LobbyRequest) Kind() MessageType { return TypeLobbyRequest }

// LobbyEntry is the lobby's view of one session. Pointer fields distinguish
// "absent" from zero so that upserts only touch what the server sent. The
// session's creation time travels in Header.Created.
type LobbyEntry struct {
	Header
	Game        string    `json:"game"`
	Name        *string   `json:"name,omitempty"`
	Description *string   `json:"description,omitempty"`
	HasPassword *bool     `json:"hasPassword,omitempty"`
	WorldCount  *int      `json:"worldCount,omitempty"`
	Mode        *GameMode `json:"mode,omitempty"`
	Destroyed   bool      `json:"destroyed,omitempty"`
}

func (*LobbyEntry) Kind() MessageType { return TypeLobbyEntry }

// Create asks the lobby to open a new session.
type Create struct {
	Header
	Name              string     `json:"name"`
	Description       string     `json:"description"`
	Password          string     `json:"password"`
	Mode              GameMode   `json:"mode"`
	FinishResolution  Resolution `json:"finishResolution"`
	ForfeitResolution Resolution `json:"forfeitResolution"`
	ItemAnimation     Resolution `json:"itemAnimation"`
	ItemJingle        Resolution `json:"itemJingle"`
	ItemToast         Resolution `json:"itemToast"`
	CreationToken     string     `json:"creationToken"`
}

func (*Create) Kind() MessageType { return TypeCreate }

// RoomReady confirms a Create, correlated by CreationToken.
type RoomReady struct {
	Header
	CreationToken string     `json:"creationToken"`
	Game          LobbyEntry `json:"game"`
}

func (*RoomReady) Kind() MessageType { return TypeRoomReady }

// Destroy closes the session, optionally saving its state.
type Destroy struct {
	Header
	Save bool `json:"save"`
}

func (*Destroy) Kind() MessageType { return TypeDestroy }

// Identify announces a player in a game session. The player's identity is
// the envelope sender.
type Identify struct {
	Header
	Name string `json:"name"`
}

func (*Identify) Kind() MessageType { return TypeIdentify }

// Knock joins a game session.
type Knock struct {
	Header
	PlayerName string `json:"playerName"`
	Password   string `json:"password"`
}

func (*Knock) Kind() MessageType { return TypeKnock }

// WorldDescription describes one world of a game session. The settings maps
// are opaque and passed through verbatim.
type WorldDescription struct {
	Header
	World       int            `json:"world"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	RNG         string         `json:"rng"`
	Mystery     bool           `json:"mystery,omitempty"`
	Logic       map[string]any `json:"logic,omitempty"`
	Goals       map[string]any `json:"goals,omitempty"`
	Gameplay    map[string]any `json:"gameplay,omitempty"`
	Difficulty  map[string]any `json:"difficulty,omitempty"`
}

func (*WorldDescription) Kind() MessageType { return TypeWorldDescription }

// WorldClaim claims or releases a world.
type WorldClaim struct {
	Header
	World int  `json:"world"`
	Claim bool `json:"claim"`
}

func (*WorldClaim) Kind() MessageType { return TypeWorldClaim }

// Kick removes a player from a game session.
type Kick struct {
	Header
	Target     string     `json:"target"`
	Reason     string     `json:"reason"`
	Resolution Resolution `json:"resolution"`
}

func (*Kick) Kind() MessageType { return TypeKick }

// ImportRecords carries a bulk settings payload. Inbound, it is the server's
// request that the client (re)submit its records.
type ImportRecords struct {
	Header
	Body       string     `json:"body,omitempty"`
	ImportType ImportType `json:"importType"`
}

func (*ImportRecords) Kind() MessageType { return TypeImportRecords }

// Chat is a free-text message on any session.
type Chat struct {
	Header
	Body string `json:"body"`
}

func (*Chat) Kind() MessageType { return TypeChat }
