package console

import (
	"fmt"
	"io"
	"strings"

	"github.com/mattn/go-runewidth"

	"chat-console/internal/domain"
	"chat-console/internal/timeline"
)

// minTextWidth это минимальная ширина колонки текста, ниже которой перенос не делается.
const minTextWidth = 16

var reactionGlyphs = map[domain.ReactionKind]string{
	domain.ReactionLike:     "👍",
	domain.ReactionHeart:    "❤",
	domain.ReactionLaugh:    "😂",
	domain.ReactionSurprise: "😮",
	domain.ReactionSad:      "😢",
}

// renderTimeline печатает видимые сообщения ленты.
func renderTimeline(w io.Writer, msgs []domain.Message, width int) {
	if len(msgs) == 0 {
		fmt.Fprintln(w, "(no messages)")
		return
	}
	for _, m := range msgs {
		for _, line := range formatMessage(m, width) {
			fmt.Fprintln(w, line)
		}
	}
}

// formatMessage раскладывает сообщение по строкам: заголовок с текстом,
// превью ответа, реакции и пометка о переводе.
func formatMessage(m domain.Message, width int) []string {
	marker := " "
	if m.Mine {
		marker = "*"
	}
	prefix := fmt.Sprintf("%s[%s] %s: ", marker, m.Key(), m.SenderID)
	indent := generatePadding("", runewidth.StringWidth(prefix))

	var lines []string
	if reply, ok := timeline.ReplyPreview(m); ok {
		preview := runewidth.Truncate(reply.Content.DisplayText(), max(width-runewidth.StringWidth(indent)-len(reply.SenderID)-4, minTextWidth), "…")
		lines = append(lines, fmt.Sprintf("%s↪ %s: %s", indent, reply.SenderID, preview))
	}

	text := m.DisplayText()
	if m.Content.Kind == domain.KindImage {
		text = "[image] " + text
	}
	textWidth := max(width-runewidth.StringWidth(prefix), minTextWidth)
	for i, part := range wrapString(text, textWidth) {
		if i == 0 {
			lines = append(lines, prefix+part)
			continue
		}
		lines = append(lines, indent+part)
	}

	if tally := formatReactions(m.Reactions); tally != "" {
		lines = append(lines, indent+tally)
	}
	if m.Translation != nil {
		lines = append(lines, fmt.Sprintf("%s(translated from %s)", indent, firstNonEmpty(m.Translation.OriginalLanguage, "?")))
	}
	return lines
}

func formatReactions(t domain.ReactionTally) string {
	parts := make([]string, 0, len(t))
	for _, kind := range domain.ReactionKinds {
		if n := t[kind]; n > 0 {
			parts = append(parts, fmt.Sprintf("%s%d", reactionGlyphs[kind], n))
		}
	}
	return strings.Join(parts, " ")
}

// formatRooms печатает нумерованный список комнат, номера совпадают с /join <n>.
func formatRooms(rooms []domain.Room, selected string) []string {
	numWidth := len(fmt.Sprint(len(rooms)))
	lines := make([]string, 0, len(rooms))
	for i, r := range rooms {
		mark := " "
		if r.ID == selected {
			mark = ">"
		}
		num := fmt.Sprint(i + 1)
		lines = append(lines, fmt.Sprintf("%s %s%s. %s (%s)", mark, generatePadding(num, numWidth), num, r.Name, r.ID))
	}
	return lines
}

// generatePadding возвращает пробелы, дополняющие s до colWidth колонок.
func generatePadding(s string, colWidth int) string {
	paddingNeeded := colWidth - runewidth.StringWidth(s)
	if paddingNeeded > 0 {
		return strings.Repeat(" ", paddingNeeded)
	}
	return ""
}

// wrapString переносит строку по ширине в колонках с учетом широких символов.
// Перенос идет по пробелам; слово длиннее ширины режется посередине.
func wrapString(s string, width int) []string {
	if width <= 0 || runewidth.StringWidth(s) <= width {
		return []string{s}
	}

	words := strings.Fields(s)
	if len(words) == 0 {
		return []string{""}
	}

	var lines []string
	var currentLine strings.Builder
	for _, word := range words {
		wordWidth := runewidth.StringWidth(word)

		if wordWidth > width {
			if currentLine.Len() > 0 {
				lines = append(lines, currentLine.String())
				currentLine.Reset()
			}
			lines = append(lines, breakWord(word, width)...)
			continue
		}

		lineLen := runewidth.StringWidth(currentLine.String())
		if lineLen > 0 && lineLen+1+wordWidth > width {
			lines = append(lines, currentLine.String())
			currentLine.Reset()
		}

		if currentLine.Len() > 0 {
			currentLine.WriteString(" ")
		}
		currentLine.WriteString(word)
	}

	if currentLine.Len() > 0 {
		lines = append(lines, currentLine.String())
	}
	return lines
}

func breakWord(word string, width int) []string {
	var lines []string
	runes := []rune(word)
	for len(runes) > 0 {
		i, currentWidth := 0, 0
		for i < len(runes) {
			rw := runewidth.RuneWidth(runes[i])
			if currentWidth+rw > width && i > 0 {
				break
			}
			currentWidth += rw
			i++
		}
		lines = append(lines, string(runes[:i]))
		runes = runes[i:]
	}
	return lines
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
