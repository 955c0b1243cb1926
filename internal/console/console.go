// Package console is the operator's line-oriented front end to a draft.Editor.
package console

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/DoyleJ11/overlay-sync/internal/draft"
	"github.com/DoyleJ11/overlay-sync/internal/overlay"
)

// ErrQuit is returned by Exec for the quit command.
var ErrQuit = errors.New("quit")

// Server performs the operations that go over HTTP instead of the socket.
type Server interface {
	Reset(ctx context.Context) (string, error)
	Upload(ctx context.Context, field, team, path string) (string, error)
}

type Console struct {
	ed     *draft.Editor
	srv    Server
	out    io.Writer
	log    *zap.Logger
	timer  int
	cursor int
}

func New(ed *draft.Editor, srv Server, out io.Writer, log *zap.Logger) *Console {
	if log == nil {
		log = zap.NewNop()
	}
	return &Console{ed: ed, srv: srv, out: out, log: log, timer: 30, cursor: -1}
}

// Run executes one command per line of in until EOF, quit, or ctx is done.
func (c *Console) Run(ctx context.Context, in io.Reader) error {
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 64*1024), 1<<20)
	c.prompt()
	for sc.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		err := c.Exec(ctx, sc.Text())
		if errors.Is(err, ErrQuit) {
			return nil
		}
		if err != nil {
			fmt.Fprintf(c.out, "error: %v\n", err)
		}
		c.prompt()
	}
	return sc.Err()
}

func (c *Console) prompt() {
	if dirty := c.ed.DirtySections(); len(dirty) > 0 {
		fmt.Fprintf(c.out, "overlay [%s]> ", joinSections(dirty))
		return
	}
	fmt.Fprint(c.out, "overlay> ")
}

func (c *Console) Exec(ctx context.Context, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "help", "?":
		fmt.Fprint(c.out, usage)
		return nil

	case "quit", "exit":
		return ErrQuit

	case "show":
		return c.show(args)

	case "set":
		if len(args) < 2 {
			return fmt.Errorf("usage: set <path> <value>")
		}
		// values may contain spaces ("set blue.name Team Liquid")
		raw := rest(rest(line))
		if err := c.ed.Edit(args[0], raw); err != nil {
			return err
		}
		if overlay.IsLiveImmediate(args[0]) {
			fmt.Fprintf(c.out, "%s sent\n", args[0])
		}
		return nil

	case "dirty":
		dirty := c.ed.DirtySections()
		if len(dirty) == 0 {
			fmt.Fprintln(c.out, "nothing staged")
			return nil
		}
		fmt.Fprintln(c.out, joinSections(dirty))
		return nil

	case "publish", "p":
		return c.publish(args)

	case "timer":
		n, err := intArg(args, "timer <seconds>")
		if err != nil {
			return err
		}
		return c.ed.SetLive(func(g *overlay.GameState) { g.Timer = n })

	case "phase":
		if len(args) != 1 {
			return fmt.Errorf("usage: phase <BANNING|PICKING|PREPARING|STARTING>")
		}
		phase := strings.ToUpper(args[0])
		if !overlay.KnownPhase(phase) {
			c.log.Debug("unrecognized phase", zap.String("phase", phase))
		}
		return c.ed.SetLive(func(g *overlay.GameState) { g.Phase = phase })

	case "turn":
		if len(args) != 1 {
			return fmt.Errorf("usage: turn <blue|red>")
		}
		turn := strings.ToLower(args[0])
		return c.ed.SetLive(func(g *overlay.GameState) { g.Turn = turn })

	case "intro":
		return c.ed.SetLive(func(g *overlay.GameState) { g.IsIntroActive = true })

	case "start", "stop":
		on := cmd == "start"
		return c.ed.SetLive(func(g *overlay.GameState) { g.IsGameControlEnabled = on })

	case "step":
		return c.step(args)

	case "reset":
		msg, err := c.srv.Reset(ctx)
		if err != nil {
			return err
		}
		c.cursor = -1
		fmt.Fprintln(c.out, msg)
		return nil

	case "upload":
		return c.upload(ctx, args)
	}
	return fmt.Errorf("unknown command %q (try help)", cmd)
}

func (c *Console) show(args []string) error {
	doc := c.ed.Draft()
	target := "draft"
	if len(args) > 0 && args[0] == "live" {
		doc, target, args = c.ed.Live(), "live", args[1:]
	}

	var v any = doc
	if len(args) > 0 {
		if args[0] == "game" {
			v = doc.Game
		} else {
			sec, err := overlay.ParseSection(args[0])
			if err != nil {
				return err
			}
			v = sec.Extract(doc)
		}
	}
	body, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "# %s\n%s\n", target, body)
	return nil
}

func (c *Console) publish(args []string) error {
	if len(args) == 0 || args[0] == "all" {
		if err := c.ed.PublishAll(); err != nil {
			return err
		}
		fmt.Fprintln(c.out, "published all")
		return nil
	}
	for _, a := range args {
		sec, err := overlay.ParseSection(a)
		if err != nil {
			return err
		}
		if err := c.ed.Publish(sec); err != nil {
			return err
		}
		fmt.Fprintf(c.out, "published %s\n", sec)
	}
	return nil
}

// step moves phase and turn through the tournament draft order.
// "step" advances by one, "step N" jumps to turn N (1-based), and an
// optional second argument changes the per-turn timer.
func (c *Console) step(args []string) error {
	next := c.cursor + 1
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 1 {
			return fmt.Errorf("usage: step [turn 1-%d] [timer]", len(draft.Order))
		}
		next = n - 1
	}
	if len(args) > 1 {
		t, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("timer must be a number: %w", err)
		}
		c.timer = t
	}
	if err := c.ed.GoToStep(next, c.timer); err != nil {
		return err
	}
	c.cursor = next
	if next >= len(draft.Order) {
		fmt.Fprintln(c.out, "draft complete")
		return nil
	}
	s := draft.Order[next]
	fmt.Fprintf(c.out, "turn %d/%d: %s %s slot %d\n", next+1, len(draft.Order), s.Side, s.Action, s.Slot+1)
	return nil
}

func (c *Console) upload(ctx context.Context, args []string) error {
	var field, team, path string
	switch {
	case len(args) == 3 && args[0] == overlay.UploadTeamLogo:
		field, team, path = args[0], args[1], args[2]
	case len(args) == 2:
		field, path = args[0], args[1]
	default:
		return fmt.Errorf("usage: upload logo <blue|red> <file> | upload <asset_logo|asset_union1|asset_union2|asset_gradient> <file>")
	}
	ref, err := c.srv.Upload(ctx, field, team, path)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "uploaded %s\n", ref)
	return nil
}

// rest drops the first whitespace-separated token of s.
func rest(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexAny(s, " \t"); i >= 0 {
		return strings.TrimSpace(s[i:])
	}
	return ""
}

func intArg(args []string, usage string) (int, error) {
	if len(args) != 1 {
		return 0, fmt.Errorf("usage: %s", usage)
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		return 0, fmt.Errorf("usage: %s", usage)
	}
	return n, nil
}

func joinSections(secs []overlay.Section) string {
	names := make([]string, len(secs))
	for i, s := range secs {
		names[i] = string(s)
	}
	return strings.Join(names, ",")
}

const usage = `commands:
  show [live] [section|game]     print the draft (or live) document
  set <path> <value>             edit a field, e.g. set blue.picks.0 Ahri
                                 game.* paths are sent immediately
  dirty                          list sections with staged edits
  publish [all|<section>...]     send staged sections (blue red ads assets registry bracket)
  timer <n> | phase <p> | turn <side>
  intro                          show the intro (clears itself)
  start | stop                   enable or pause the countdown
  step [n] [timer]               advance phase and turn through the draft order
  reset                          restore the server default document
  upload logo <side> <file> | upload <asset_slot> <file>
  quit
`
