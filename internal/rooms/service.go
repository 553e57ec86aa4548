// Package rooms загружает список комнат оператора и управляет выбором.
package rooms

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"chat-console/internal/domain"
	"chat-console/internal/ports"
)

var (
	// ErrRoomNotFound возвращается при выборе комнаты, которой нет в списке.
	ErrRoomNotFound = errors.New("room not found")
	// ErrNoRooms возвращается, когда список комнат пуст.
	ErrNoRooms = errors.New("no rooms available")
)

// Opener открывает сессию комнаты. Реализуется session.Manager.
type Opener interface {
	Open(ctx context.Context, room domain.Room) error
}

// Service хранит список комнат и выбранную комнату.
type Service struct {
	lister   ports.RoomLister
	opener   Opener
	operator domain.Operator
	log      *slog.Logger

	mu       sync.RWMutex
	rooms    []domain.Room
	selected *domain.Room
}

// NewService создает сервис выбора комнат.
func NewService(lister ports.RoomLister, opener Opener, operator domain.Operator, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		lister:   lister,
		opener:   opener,
		operator: operator,
		log:      logger.With("component", "rooms"),
	}
}

// Load загружает список комнат. Если ничего не выбрано, выбирается первая.
func (s *Service) Load(ctx context.Context) ([]domain.Room, error) {
	list, err := s.lister.ListRooms(ctx, s.operator)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}

	s.mu.Lock()
	s.rooms = append([]domain.Room(nil), list...)
	needSelect := s.selected == nil && len(list) > 0
	s.mu.Unlock()

	s.log.Info("Rooms loaded", "count", len(list))
	if needSelect {
		if err := s.Select(ctx, list[0].ID); err != nil {
			return list, err
		}
	}
	return list, nil
}

// Rooms возвращает загруженный список.
func (s *Service) Rooms() []domain.Room {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Room(nil), s.rooms...)
}

// Filter возвращает комнаты, в названии которых есть query, без учета регистра.
// Пустой запрос возвращает весь список.
func (s *Service) Filter(query string) []domain.Room {
	query = strings.ToLower(strings.TrimSpace(query))
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Room, 0, len(s.rooms))
	for _, r := range s.rooms {
		if query == "" || strings.Contains(strings.ToLower(r.Name), query) {
			out = append(out, r)
		}
	}
	return out
}

// Select делает комнату выбранной и открывает ее сессию. Выход из прежней
// комнаты выполняет Opener. Повторный выбор той же комнаты переоткрывает ее.
func (s *Service) Select(ctx context.Context, roomID string) error {
	s.mu.Lock()
	var room *domain.Room
	for i := range s.rooms {
		if s.rooms[i].ID == roomID {
			r := s.rooms[i]
			room = &r
			break
		}
	}
	if room == nil {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrRoomNotFound, roomID)
	}
	s.selected = room
	s.mu.Unlock()

	s.log.Info("Room selected", "room_id", room.ID, "room_name", room.Name)
	if err := s.opener.Open(ctx, *room); err != nil {
		return fmt.Errorf("open room %s: %w", room.ID, err)
	}
	return nil
}

// SelectIndex выбирает комнату по номеру в отфильтрованном списке (с единицы).
func (s *Service) SelectIndex(ctx context.Context, query string, n int) error {
	list := s.Filter(query)
	if len(list) == 0 {
		return ErrNoRooms
	}
	if n < 1 || n > len(list) {
		return fmt.Errorf("%w: index %d out of 1..%d", ErrRoomNotFound, n, len(list))
	}
	return s.Select(ctx, list[n-1].ID)
}

// Selected возвращает выбранную комнату.
func (s *Service) Selected() (domain.Room, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.selected == nil {
		return domain.Room{}, false
	}
	return *s.selected, true
}
