// Package clipboard дает доступ к системному буферу обмена.
package clipboard

import (
	"errors"
	"fmt"

	"github.com/atotto/clipboard"
)

// ErrUnsupported возвращается, когда на машине нет доступного буфера обмена.
var ErrUnsupported = errors.New("clipboard is not supported on this system")

// System пишет в системный буфер обмена.
type System struct {
	write       func(string) error
	unsupported bool
}

// NewSystem создает адаптер системного буфера обмена.
func NewSystem() *System {
	return &System{write: clipboard.WriteAll, unsupported: clipboard.Unsupported}
}

// WriteAll записывает текст в буфер обмена.
func (s *System) WriteAll(text string) error {
	if s.unsupported {
		return ErrUnsupported
	}
	if err := s.write(text); err != nil {
		return fmt.Errorf("write clipboard: %w", err)
	}
	return nil
}
