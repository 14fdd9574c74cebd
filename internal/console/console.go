// Package console is the operator's line-oriented interface to a running
// bot: it parses commands, drives the lobby and game sessions, and renders
// their mirrored state.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/cory-johannsen/multiworld/internal/command"
	"github.com/cory-johannsen/multiworld/internal/importer"
	"github.com/cory-johannsen/multiworld/internal/multiworld"
	"github.com/cory-johannsen/multiworld/internal/protocol"
)

var (
	// ErrNotJoined is reported for game commands on a game the bot has not joined.
	ErrNotJoined = errors.New("not joined")
	// ErrUsage is reported when a command is given too few or malformed arguments.
	ErrUsage = errors.New("usage")
)

// Operator is the bot surface the console drives. *bot.Bot implements it.
type Operator interface {
	Games() *multiworld.Directory
	Lobby() *multiworld.Lobby
	Join(ctx context.Context, id string, kind multiworld.Kind, password string) (*multiworld.GameSession, error)
	Leave(id string) bool
	GetSession(id string) (*multiworld.GameSession, bool)
	Sessions() []*multiworld.GameSession
	CreateAndJoin(ctx context.Context, opts multiworld.CreateOptions, kind multiworld.Kind) (string, error)
}

// Importer submits generated records to a game. *importer.Importer implements it.
type Importer interface {
	Run(ctx context.Context, target importer.RecordImporter, settings importer.Settings, importType protocol.ImportType) error
}

// Options configures a Console.
type Options struct {
	// Importer backs the import command. Nil disables it.
	Importer Importer
	// Color enables ANSI styling of output.
	Color bool
	// Prompt is written before each line is read.
	Prompt string
}

// Console reads commands from a line stream and writes results to out.
type Console struct {
	op       Operator
	imp      Importer
	registry *command.Registry
	out      io.Writer
	logger   *zap.Logger
	color    bool
	prompt   string
}

// New builds a Console over op that writes to out.
//
// Precondition: op and out must be non-nil.
func New(op Operator, out io.Writer, opts Options, logger *zap.Logger) *Console {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Console{
		op:       op,
		imp:      opts.Importer,
		registry: command.DefaultRegistry(),
		out:      out,
		logger:   logger,
		color:    opts.Color,
		prompt:   opts.Prompt,
	}
}

// Run executes lines from in until quit, end of input, or ctx is done.
//
// Postcondition: Returns nil on quit or end of input, ctx.Err() on
// cancellation, or the read error.
func (c *Console) Run(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- sc.Err()
	}()

	c.writePrompt()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-readErr:
					if err != nil {
						return fmt.Errorf("reading input: %w", err)
					}
					return nil
				default:
					return ctx.Err()
				}
			}
			if c.Execute(ctx, line) {
				return nil
			}
			c.writePrompt()
		}
	}
}

// Execute runs one console line and reports whether it asked to quit.
// Failures are written to the output, never returned.
func (c *Console) Execute(ctx context.Context, line string) (quit bool) {
	parsed := command.Parse(line)
	if parsed.Command == "" {
		return false
	}
	cmd, ok := c.registry.Resolve(parsed.Command)
	if !ok {
		c.println(c.paint(Dim, "Unknown command %q. Type 'help' for a list.", parsed.Command))
		return false
	}
	if len(parsed.Args) < cmd.MinArgs {
		c.fail(cmd, fmt.Errorf("%w: %s %s", ErrUsage, cmd.Name, cmd.Usage))
		return false
	}

	var err error
	switch cmd.Handler {
	case command.HandlerGames:
		c.print(c.renderGames())
	case command.HandlerCreate:
		err = c.create(ctx, parsed.Args)
	case command.HandlerChat:
		err = c.op.Lobby().Chat(ctx, parsed.RawArgs)
	case command.HandlerJoin:
		err = c.join(ctx, parsed.Args)
	case command.HandlerLeave:
		if !c.op.Leave(parsed.Args[0]) {
			err = fmt.Errorf("%w: %s", ErrNotJoined, parsed.Args[0])
		} else {
			c.println(c.paint(Green, "left %s", parsed.Args[0]))
		}
	case command.HandlerSay:
		err = c.withSession(parsed.Args[0], func(gs *multiworld.GameSession) error {
			return gs.Chat(ctx, strings.Join(parsed.Args[1:], " "))
		})
	case command.HandlerKnock:
		err = c.withSession(parsed.Args[0], func(gs *multiworld.GameSession) error {
			return gs.Knock(ctx)
		})
	case command.HandlerDestroy:
		err = c.destroy(ctx, parsed.Args)
	case command.HandlerClaim, command.HandlerUnclaim:
		err = c.claim(ctx, parsed.Args, cmd.Handler == command.HandlerClaim)
	case command.HandlerKick:
		err = c.kick(ctx, parsed.Args)
	case command.HandlerImport:
		err = c.importRecords(ctx, parsed.Args)
	case command.HandlerPlayers:
		err = c.withSession(parsed.Args[0], func(gs *multiworld.GameSession) error {
			out, err := renderPlayers(gs.Players())
			c.print(out)
			return err
		})
	case command.HandlerWorlds:
		err = c.withSession(parsed.Args[0], func(gs *multiworld.GameSession) error {
			out, err := renderWorlds(gs.Worlds())
			c.print(out)
			return err
		})
	case command.HandlerStatus:
		c.print(c.renderStatus())
	case command.HandlerHelp:
		c.print(c.renderHelp())
	case command.HandlerQuit:
		c.println(c.paint(Cyan, "Goodbye."))
		return true
	default:
		c.println(c.paint(Dim, "No handler for %q.", cmd.Name))
	}
	if err != nil {
		c.fail(cmd, err)
	}
	return false
}

func (c *Console) create(ctx context.Context, args []string) error {
	opts := multiworld.CreateOptions{Name: args[0], Mode: protocol.ModeMultiworld}
	if len(args) > 1 {
		opts.Description = args[1]
	}
	if len(args) > 2 {
		opts.Password = args[2]
	}
	token, err := c.op.CreateAndJoin(ctx, opts, "")
	if err != nil {
		return err
	}
	c.println(c.paint(Green, "create requested for %q (token %s)", opts.Name, token))
	return nil
}

func (c *Console) join(ctx context.Context, args []string) error {
	var kind multiworld.Kind
	if len(args) > 1 {
		k, err := multiworld.ParseKind(args[1])
		if err != nil {
			return err
		}
		kind = k
	}
	var password string
	if len(args) > 2 {
		password = args[2]
	}
	gs, err := c.op.Join(ctx, args[0], kind, password)
	if err != nil {
		return err
	}
	c.println(c.paint(Green, "joined %s (%s)", gs.ID(), gs.Kind()))
	return nil
}

func (c *Console) destroy(ctx context.Context, args []string) error {
	save := false
	if len(args) > 1 {
		if args[1] == "save" {
			save = true
		} else {
			b, err := strconv.ParseBool(args[1])
			if err != nil {
				return fmt.Errorf("%w: destroy <game> [save]", ErrUsage)
			}
			save = b
		}
	}
	return c.withSession(args[0], func(gs *multiworld.GameSession) error {
		if err := gs.Destroy(ctx, save); err != nil {
			return err
		}
		c.println(c.paint(Green, "destroy requested for %s", gs.ID()))
		return nil
	})
}

func (c *Console) claim(ctx context.Context, args []string, claim bool) error {
	index, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("%w: world must be a number, got %q", ErrUsage, args[1])
	}
	return c.withSession(args[0], func(gs *multiworld.GameSession) error {
		return gs.ClaimWorld(ctx, index, claim)
	})
}

func (c *Console) kick(ctx context.Context, args []string) error {
	resolution := protocol.ResolutionNothing
	rest := args[2:]
	if len(rest) > 0 {
		if n, err := strconv.Atoi(rest[0]); err == nil {
			resolution = protocol.Resolution(n)
			rest = rest[1:]
		}
	}
	reason := strings.Join(rest, " ")
	return c.withSession(args[0], func(gs *multiworld.GameSession) error {
		p, ok := findPlayer(gs, args[1])
		if !ok {
			return fmt.Errorf("no player %q in %s", args[1], gs.ID())
		}
		if err := p.Kick(ctx, reason, resolution); err != nil {
			return err
		}
		c.println(c.paint(Green, "kicked %s from %s", p.Name, gs.ID()))
		return nil
	})
}

// findPlayer matches by identity first, then by display name.
func findPlayer(gs *multiworld.GameSession, ref string) (multiworld.Player, bool) {
	if p, ok := gs.GetPlayer(ref); ok {
		return p, true
	}
	for _, p := range gs.Players() {
		if strings.EqualFold(p.Name, ref) {
			return p, true
		}
	}
	return multiworld.Player{}, false
}

func (c *Console) importRecords(ctx context.Context, args []string) error {
	if c.imp == nil {
		return errors.New("import is not configured")
	}
	settings, err := importer.LoadSettings(args[1])
	if err != nil {
		return err
	}
	return c.withSession(args[0], func(gs *multiworld.GameSession) error {
		if err := c.imp.Run(ctx, gs, settings, protocol.ImportV31JSON); err != nil {
			return err
		}
		c.println(c.paint(Green, "records imported into %s", gs.ID()))
		return nil
	})
}

func (c *Console) withSession(id string, fn func(gs *multiworld.GameSession) error) error {
	gs, ok := c.op.GetSession(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotJoined, id)
	}
	return fn(gs)
}

func (c *Console) fail(cmd *command.Command, err error) {
	c.logger.Debug("console command failed", zap.String("command", cmd.Name), zap.Error(err))
	c.println(c.paint(Red, "error: %v", err))
}

func (c *Console) writePrompt() {
	if c.prompt != "" {
		_, _ = io.WriteString(c.out, c.paint(BrightCyan, "%s", c.prompt))
	}
}

func (c *Console) print(s string) {
	_, _ = io.WriteString(c.out, s)
}

func (c *Console) println(s string) {
	_, _ = io.WriteString(c.out, s+"\n")
}
