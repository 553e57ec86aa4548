// Package console реализует построчную консоль оператора: список комнат, лента
// и команды, которые превращаются в намерения контроллера.
package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/xerrors"

	"chat-console/internal/controller"
	"chat-console/internal/domain"
	"chat-console/internal/rooms"
	"chat-console/internal/session"
)

var (
	errUsage          = xerrors.New("usage")
	errUnknownCommand = xerrors.New("unknown command")
)

// Intents это действия оператора над текущей комнатой. Реализуется controller.Controller.
type Intents interface {
	Send(text string) error
	Reply(key string) error
	CancelReply() error
	React(key string, kind domain.ReactionKind) error
	Delete(key string) error
	Translate(ctx context.Context, key string) (domain.Message, error)
	RevertTranslation(key string) (domain.Message, error)
	Copy(key string) (string, error)
	Block(userID string) error
	Unblock(ctx context.Context, userID string) error
	Exit() error
	OpenReactionMenu(key string) (controller.MenuState, error)
	OpenOptionsMenu(key string) (controller.MenuState, error)
	Hover(key string) controller.MenuState
}

// Rooms это список и выбор комнат. Реализуется rooms.Service.
type Rooms interface {
	Filter(query string) []domain.Room
	Select(ctx context.Context, roomID string) error
	SelectIndex(ctx context.Context, query string, n int) error
	Selected() (domain.Room, bool)
}

// Sessions отдает снимок текущей сессии. Реализуется session.Manager.
type Sessions interface {
	Snapshot() (session.Snapshot, bool)
}

// LineReader читает строки оператора.
type LineReader interface {
	ReadLine(prompt string) (string, error)
	Width() int
}

var (
	_ Intents  = (*controller.Controller)(nil)
	_ Rooms    = (*rooms.Service)(nil)
	_ Sessions = (*session.Manager)(nil)
)

// Console связывает ввод оператора с контроллером.
type Console struct {
	intents  Intents
	rooms    Rooms
	sessions Sessions
	in       LineReader
	log      *slog.Logger

	mu        sync.Mutex
	out       io.Writer
	roomQuery string
}

// New создает консоль.
func New(intents Intents, rooms Rooms, sessions Sessions, in LineReader, out io.Writer, logger *slog.Logger) *Console {
	if logger == nil {
		logger = slog.Default()
	}
	return &Console{
		intents:  intents,
		rooms:    rooms,
		sessions: sessions,
		in:       in,
		out:      out,
		log:      logger.With("component", "console"),
	}
}

// Run читает команды до /quit, конца ввода или отмены ctx.
func (c *Console) Run(ctx context.Context) error {
	c.printf("Type /help for commands.\n")
	for {
		if ctx.Err() != nil {
			return nil
		}
		line, err := c.in.ReadLine("> ")
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read command: %w", err)
		}

		quit, err := c.Execute(ctx, line)
		if err != nil {
			c.printf("error: %v\n", err)
		}
		if quit {
			return nil
		}
	}
}

// OnEvent печатает события сессии по мере поступления. Вызывается под
// блокировкой менеджера, поэтому обращается только к данным события.
func (c *Console) OnEvent(ev session.Event) {
	width := c.in.Width()
	switch ev.Kind {
	case session.EventAppended:
		c.println(formatMessage(ev.Message, width)...)
	case session.EventRemoved:
		c.printf("- message %s deleted\n", ev.Message.Key())
	case session.EventReplaced:
		c.printf("history loaded for %s\n", ev.RoomID)
	case session.EventCleared:
		c.printf("timeline cleared\n")
	case session.EventState:
		if ev.Err != nil {
			c.printf("[%s] %s: %v\n", ev.RoomID, ev.State, ev.Err)
			return
		}
		c.printf("[%s] %s\n", ev.RoomID, ev.State)
	}
}

// Execute выполняет одну строку ввода. Возвращает true на /quit.
func (c *Console) Execute(ctx context.Context, line string) (bool, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return false, nil
	}
	if !strings.HasPrefix(line, "/") {
		return false, c.intents.Send(line)
	}

	cmd, args := splitCommand(line)
	switch cmd {
	case "/quit":
		return true, nil
	case "/help":
		c.println(helpText...)
		return false, nil
	case "/rooms":
		return false, c.listRooms(strings.Join(args, " "))
	case "/join":
		return false, c.join(ctx, args)
	case "/timeline":
		return false, c.showTimeline()
	case "/reply":
		return false, withKey(args, "/reply <key>", c.intents.Reply)
	case "/cancel":
		return false, c.intents.CancelReply()
	case "/react":
		if len(args) != 2 {
			return false, usage("/react <key> <" + kindList() + ">")
		}
		return false, c.intents.React(args[0], domain.ReactionKind(strings.ToLower(args[1])))
	case "/del":
		return false, withKey(args, "/del <key>", c.intents.Delete)
	case "/tr":
		return false, withKey(args, "/tr <key>", func(key string) error {
			m, err := c.intents.Translate(ctx, key)
			if err == nil {
				c.println(formatMessage(m, c.in.Width())...)
			}
			return err
		})
	case "/orig":
		return false, withKey(args, "/orig <key>", func(key string) error {
			m, err := c.intents.RevertTranslation(key)
			if err == nil {
				c.println(formatMessage(m, c.in.Width())...)
			}
			return err
		})
	case "/copy":
		return false, withKey(args, "/copy <key>", func(key string) error {
			text, err := c.intents.Copy(key)
			if err == nil {
				c.printf("copied: %s\n", text)
			}
			return err
		})
	case "/menu":
		return false, c.menu(args)
	case "/hover":
		return false, withKey(args, "/hover <key>", func(key string) error {
			c.printMenu(c.intents.Hover(key))
			return nil
		})
	case "/block":
		return false, withKey(args, "/block <userId>", c.intents.Block)
	case "/unblock":
		return false, withKey(args, "/unblock <userId>", func(userID string) error {
			return c.intents.Unblock(ctx, userID)
		})
	case "/exit":
		return false, c.intents.Exit()
	}
	return false, xerrors.Errorf("%w: %s", errUnknownCommand, cmd)
}

func (c *Console) listRooms(query string) error {
	list := c.rooms.Filter(query)
	c.mu.Lock()
	c.roomQuery = query
	c.mu.Unlock()
	if len(list) == 0 {
		c.printf("(no rooms)\n")
		return nil
	}
	selected, _ := c.rooms.Selected()
	c.println(formatRooms(list, selected.ID)...)
	return nil
}

// join принимает номер из последнего /rooms или идентификатор комнаты.
func (c *Console) join(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return usage("/join <n|roomId>")
	}
	if n, err := strconv.Atoi(args[0]); err == nil {
		c.mu.Lock()
		query := c.roomQuery
		c.mu.Unlock()
		return c.rooms.SelectIndex(ctx, query, n)
	}
	return c.rooms.Select(ctx, args[0])
}

func (c *Console) showTimeline() error {
	snap, ok := c.sessions.Snapshot()
	if !ok {
		c.printf("(no room selected)\n")
		return nil
	}
	header := fmt.Sprintf("== %s (%s) %s", snap.Room.Name, snap.Room.ID, snap.State)
	if snap.Blocked {
		header += " [blocked]"
	}
	if snap.PendingReply != "" {
		header += " replying to " + snap.PendingReply
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.out, header)
	renderTimeline(c.out, snap.Messages, c.in.Width())
	return nil
}

func (c *Console) menu(args []string) error {
	if len(args) != 2 {
		return usage("/menu <key> reactions|options")
	}
	var (
		state controller.MenuState
		err   error
	)
	switch strings.ToLower(args[1]) {
	case "reactions", "r":
		state, err = c.intents.OpenReactionMenu(args[0])
	case "options", "o":
		state, err = c.intents.OpenOptionsMenu(args[0])
	default:
		return usage("/menu <key> reactions|options")
	}
	if err != nil {
		return err
	}
	c.printMenu(state)
	return nil
}

func (c *Console) printMenu(state controller.MenuState) {
	switch {
	case state.Kind == controller.MenuReactions:
		c.printf("reactions for %s: %s\n", state.MessageKey, kindList())
	case state.Kind == controller.MenuOptions:
		c.printf("options for %s: reply copy translate delete block\n", state.MessageKey)
	case state.Hovered != "":
		c.printf("hovering %s\n", state.Hovered)
	default:
		c.printf("menu closed\n")
	}
}

func (c *Console) printf(format string, args ...interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}

func (c *Console) println(lines ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, l := range lines {
		fmt.Fprintln(c.out, l)
	}
}

func splitCommand(line string) (string, []string) {
	fields := strings.Fields(line)
	return strings.ToLower(fields[0]), fields[1:]
}

func withKey(args []string, help string, fn func(string) error) error {
	if len(args) != 1 {
		return usage(help)
	}
	return fn(args[0])
}

func usage(help string) error {
	return xerrors.Errorf("%w: %s", errUsage, help)
}

func kindList() string {
	names := make([]string, len(domain.ReactionKinds))
	for i, k := range domain.ReactionKinds {
		names[i] = string(k)
	}
	return strings.Join(names, "|")
}

var helpText = []string{
	"/rooms [query]          list rooms, optionally filtered",
	"/join <n|roomId>        select a room",
	"/timeline               show the current timeline",
	"/reply <key>            reply to a message",
	"/cancel                 cancel the pending reply",
	"/react <key> <kind>     react: " + kindList(),
	"/del <key>              delete your message",
	"/tr <key>, /orig <key>  translate, show original",
	"/copy <key>             copy message text",
	"/menu <key> reactions|options, /hover <key>",
	"/block <userId>, /unblock <userId>",
	"/exit                   leave the room",
	"/quit                   quit",
	"anything else is sent as a message",
}
