// Package command provides the console command registry, parser, and
// built-in command definitions.
package command

// Categories for organizing commands.
const (
	CategoryLobby  = "lobby"
	CategoryGame   = "game"
	CategorySystem = "system"
)

// Categories lists every category in help order.
var Categories = []string{CategoryLobby, CategoryGame, CategorySystem}

// Handler identifiers mapping commands to console actions.
const (
	HandlerGames   = "games"
	HandlerCreate  = "create"
	HandlerJoin    = "join"
	HandlerLeave   = "leave"
	HandlerChat    = "chat"
	HandlerSay     = "say"
	HandlerKnock   = "knock"
	HandlerDestroy = "destroy"
	HandlerClaim   = "claim"
	HandlerUnclaim = "unclaim"
	HandlerKick    = "kick"
	HandlerImport  = "import"
	HandlerPlayers = "players"
	HandlerWorlds  = "worlds"
	HandlerStatus  = "status"
	HandlerHelp    = "help"
	HandlerQuit    = "quit"
)

// Command defines an operator-invocable console command.
type Command struct {
	// Name is the canonical command name.
	Name string
	// Aliases are alternate names for this command.
	Aliases []string
	// Usage shows the argument shape, e.g. "<game> <world>".
	Usage string
	// Help is the short help text.
	Help string
	// Category groups the command (lobby, game, system).
	Category string
	// Handler maps to the console action.
	Handler string
	// MinArgs is the fewest arguments the handler accepts.
	MinArgs int
}

// BuiltinCommands returns all built-in console commands.
func BuiltinCommands() []Command {
	return []Command{
		{Name: "games", Aliases: []string{"ls"}, Help: "List games known to the lobby", Category: CategoryLobby, Handler: HandlerGames},
		{Name: "create", Aliases: []string{"new"}, Usage: "<name> [description] [password]", Help: "Create a game and join it when ready", Category: CategoryLobby, Handler: HandlerCreate, MinArgs: 1},
		{Name: "chat", Aliases: []string{"c"}, Usage: "<message>", Help: "Send a lobby chat message", Category: CategoryLobby, Handler: HandlerChat, MinArgs: 1},

		{Name: "join", Aliases: []string{"j"}, Usage: "<game> [kind] [password]", Help: "Join a game (kind: mw, s1p, game)", Category: CategoryGame, Handler: HandlerJoin, MinArgs: 1},
		{Name: "leave", Usage: "<game>", Help: "Disconnect from a joined game", Category: CategoryGame, Handler: HandlerLeave, MinArgs: 1},
		{Name: "say", Usage: "<game> <message>", Help: "Send a chat message to a game", Category: CategoryGame, Handler: HandlerSay, MinArgs: 2},
		{Name: "knock", Usage: "<game>", Help: "Announce the bot to a game again", Category: CategoryGame, Handler: HandlerKnock, MinArgs: 1},
		{Name: "destroy", Usage: "<game> [save]", Help: "Destroy a game, optionally saving it", Category: CategoryGame, Handler: HandlerDestroy, MinArgs: 1},
		{Name: "claim", Usage: "<game> <world>", Help: "Claim a world", Category: CategoryGame, Handler: HandlerClaim, MinArgs: 2},
		{Name: "unclaim", Usage: "<game> <world>", Help: "Release a claimed world", Category: CategoryGame, Handler: HandlerUnclaim, MinArgs: 2},
		{Name: "kick", Usage: "<game> <player> [resolution] [reason]", Help: "Kick a player", Category: CategoryGame, Handler: HandlerKick, MinArgs: 2},
		{Name: "import", Usage: "<game> <settings-file>", Help: "Generate records from a settings file and import them", Category: CategoryGame, Handler: HandlerImport, MinArgs: 2},
		{Name: "players", Aliases: []string{"who"}, Usage: "<game>", Help: "List players in a game", Category: CategoryGame, Handler: HandlerPlayers, MinArgs: 1},
		{Name: "worlds", Usage: "<game>", Help: "Show the worlds of a game", Category: CategoryGame, Handler: HandlerWorlds, MinArgs: 1},

		{Name: "status", Aliases: []string{"st"}, Help: "Show connection state of every session", Category: CategorySystem, Handler: HandlerStatus},
		{Name: "help", Aliases: []string{"?"}, Help: "Show available commands", Category: CategorySystem, Handler: HandlerHelp},
		{Name: "quit", Aliases: []string{"exit", "q"}, Help: "Stop the console", Category: CategorySystem, Handler: HandlerQuit},
	}
}
