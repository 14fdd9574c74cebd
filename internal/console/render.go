package console

import (
	"bytes"
	"fmt"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"

	"github.com/cory-johannsen/multiworld/internal/command"
	"github.com/cory-johannsen/multiworld/internal/multiworld"
)

type playerView struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

type worldView struct {
	Index       int            `yaml:"index"`
	Title       string         `yaml:"title"`
	Description string         `yaml:"description,omitempty"`
	RNG         string         `yaml:"rng,omitempty"`
	Mystery     bool           `yaml:"mystery"`
	Claimed     bool           `yaml:"claimed"`
	Logic       map[string]any `yaml:"logic,omitempty"`
	Goals       map[string]any `yaml:"goals,omitempty"`
	Gameplay    map[string]any `yaml:"gameplay,omitempty"`
	Difficulty  map[string]any `yaml:"difficulty,omitempty"`
}

func renderPlayers(players []multiworld.Player) (string, error) {
	if len(players) == 0 {
		return "no players\n", nil
	}
	views := make([]playerView, 0, len(players))
	for _, p := range players {
		views = append(views, playerView{ID: p.ID, Name: p.Name})
	}
	return marshalYAML(views)
}

func renderWorlds(worlds []multiworld.World) (string, error) {
	if len(worlds) == 0 {
		return "no worlds\n", nil
	}
	views := make([]worldView, 0, len(worlds))
	for _, w := range worlds {
		views = append(views, worldView{
			Index:       w.Index,
			Title:       w.Title,
			Description: w.Description,
			RNG:         w.RNG,
			Mystery:     w.Mystery,
			Claimed:     w.Claimed,
			Logic:       w.Logic,
			Goals:       w.Goals,
			Gameplay:    w.Gameplay,
			Difficulty:  w.Difficulty,
		})
	}
	return marshalYAML(views)
}

func marshalYAML(v any) (string, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return "", fmt.Errorf("rendering yaml: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("rendering yaml: %w", err)
	}
	return buf.String(), nil
}

func (c *Console) renderGames() string {
	games := c.op.Games().Games()
	if len(games) == 0 {
		return "no games\n"
	}
	var b strings.Builder
	tw := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tMODE\tWORLDS\tFLAGS")
	for _, g := range games {
		info := g.Info()
		var flags []string
		if info.HasPassword {
			flags = append(flags, "locked")
		}
		if gs := g.Session(); gs != nil {
			flags = append(flags, "joined:"+string(gs.Kind()))
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", info.ID, info.Name, info.Mode, info.WorldCount, strings.Join(flags, ","))
	}
	_ = tw.Flush()
	return b.String()
}

func (c *Console) renderStatus() string {
	var b strings.Builder
	tw := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "lobby\t-\t%s\n", c.op.Lobby().Session().State())
	for _, gs := range c.op.Sessions() {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", gs.ID(), gs.Kind(), gs.Session().State())
	}
	_ = tw.Flush()
	return b.String()
}

func (c *Console) renderHelp() string {
	labels := map[string]string{
		command.CategoryLobby:  "Lobby",
		command.CategoryGame:   "Game",
		command.CategorySystem: "System",
	}
	var b strings.Builder
	b.WriteString(c.paint(BrightWhite, "Available commands:") + "\n")
	byCategory := c.registry.CommandsByCategory()
	for _, cat := range command.Categories {
		cmds := byCategory[cat]
		if len(cmds) == 0 {
			continue
		}
		b.WriteString(c.paint(BrightYellow, "  %s:", labels[cat]) + "\n")
		for _, cmd := range cmds {
			line := c.paint(Green, "    %-8s", cmd.Name)
			if cmd.Usage != "" {
				line += " " + cmd.Usage
			}
			line += " : " + cmd.Help
			if len(cmd.Aliases) > 0 {
				line += " (" + strings.Join(cmd.Aliases, ", ") + ")"
			}
			b.WriteString(line + "\n")
		}
	}
	return b.String()
}
