package ui

import (
	"strings"
	"unicode/utf8"
)

// Box drawing characters used by the console displays
const (
	TreeBranch     = "├── "
	TreeLastBranch = "└── "
	TreeContinue   = "│   "
	TreeIndent     = "    "

	BoxTopLeft     = "┌"
	BoxTopRight    = "┐"
	BoxBottomLeft  = "└"
	BoxBottomRight = "┘"
	BoxVertical    = "│"
	BoxHorizontal  = "─"
	BoxTeeRight    = "├"
	BoxTeeLeft     = "┤"
)

// minBoxWidth fits the borders and one padding space on each side
const minBoxWidth = 4

// Indent returns the leading whitespace for an entry at the given group depth
func Indent(depth int) string {
	if depth <= 0 {
		return ""
	}
	return strings.Repeat(TreeIndent, depth)
}

// BuildTreePrefix returns the connector for an entry nested under a group at
// the given depth
func BuildTreePrefix(depth int, isLast bool) string {
	if depth < 0 {
		return ""
	}
	prefix := strings.Repeat(TreeContinue, depth)
	if isLast {
		return prefix + TreeLastBranch
	}
	return prefix + TreeBranch
}

// BuildBoxHeader renders the top border, a title line and a separator
func BuildBoxHeader(title string, width int) string {
	width = max(width, utf8.RuneCountInString(title)+minBoxWidth)
	var b strings.Builder
	b.WriteString(BoxTopLeft + strings.Repeat(BoxHorizontal, width-2) + BoxTopRight + "\n")
	b.WriteString(BuildBoxLine(title, width))
	b.WriteString(BoxTeeRight + strings.Repeat(BoxHorizontal, width-2) + BoxTeeLeft + "\n")
	return b.String()
}

// BuildBoxLine renders one content line, truncating it to the box width
func BuildBoxLine(content string, width int) string {
	width = max(width, minBoxWidth+3)
	room := width - minBoxWidth
	runes := []rune(content)
	if len(runes) > room {
		runes = append(runes[:room-3], []rune("...")...)
	}
	pad := room - len(runes)
	return BoxVertical + " " + string(runes) + strings.Repeat(" ", pad+1) + BoxVertical + "\n"
}

func BuildBoxFooter(width int) string {
	width = max(width, minBoxWidth)
	return BoxBottomLeft + strings.Repeat(BoxHorizontal, width-2) + BoxBottomRight + "\n"
}
