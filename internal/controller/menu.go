package controller

import (
	"chat-console/internal/session"
)

// MenuKind это вид контекстного меню сообщения.
type MenuKind int

const (
	MenuNone MenuKind = iota
	MenuReactions
	MenuOptions
)

func (k MenuKind) String() string {
	switch k {
	case MenuReactions:
		return "reactions"
	case MenuOptions:
		return "options"
	default:
		return "none"
	}
}

// MenuState это временное состояние меню. Одновременно открыто не больше
// одного меню на всю ленту.
type MenuState struct {
	MessageKey string
	Kind       MenuKind
	Hovered    string
}

// Open сообщает, открыто ли меню kind у сообщения key.
func (m MenuState) Open(key string, kind MenuKind) bool {
	return m.Kind == kind && m.MessageKey != "" && m.MessageKey == key
}

// OpenReactionMenu открывает меню реакций сообщения, закрывая любое другое.
func (c *Controller) OpenReactionMenu(key string) (MenuState, error) {
	return c.openMenu(key, MenuReactions)
}

// OpenOptionsMenu открывает меню действий сообщения, закрывая любое другое.
func (c *Controller) OpenOptionsMenu(key string) (MenuState, error) {
	return c.openMenu(key, MenuOptions)
}

// openMenu переключает меню: повторное открытие того же меню закрывает его.
func (c *Controller) openMenu(key string, kind MenuKind) (MenuState, error) {
	var state MenuState
	err := c.sessions.WithSession(func(s *session.Session) error {
		msg, err := findVisible(s, key)
		if err != nil {
			return err
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.menu.Open(msg.Key(), kind) {
			c.menu.MessageKey, c.menu.Kind = "", MenuNone
		} else {
			c.menu.MessageKey, c.menu.Kind = msg.Key(), kind
		}
		state = c.menu
		return nil
	})
	return state, err
}

// Hover отмечает сообщение под курсором. Переход на другое сообщение
// закрывает оба меню.
func (c *Controller) Hover(key string) MenuState {
	c.mu.Lock()
	defer c.mu.Unlock()
	if key != c.menu.Hovered {
		c.menu = MenuState{Hovered: key}
	}
	return c.menu
}

// CloseMenus закрывает открытое меню.
func (c *Controller) CloseMenus() {
	c.closeMenus()
}

// Menu возвращает текущее состояние меню.
func (c *Controller) Menu() MenuState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.menu
}

func (c *Controller) closeMenus() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.menu.MessageKey, c.menu.Kind = "", MenuNone
}

func (c *Controller) resetMenus() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.menu = MenuState{}
}
