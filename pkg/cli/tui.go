package cli

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/smartnpc/smartnpc-go/pkg/smartnpc"
)

// Theme defines the color scheme for terminal output.
type Theme struct {
	Primary   lipgloss.Color // Character names, borders
	Secondary lipgloss.Color // Player names
	Accent    lipgloss.Color // Behaviors and expressions
	Error     lipgloss.Color
	Dim       lipgloss.Color // Help and metadata
}

// DefaultTheme is the default bright green theme.
var DefaultTheme = Theme{
	Primary:   lipgloss.Color("#00ff9f"),
	Secondary: lipgloss.Color("#58a6ff"),
	Accent:    lipgloss.Color("#d2a8ff"),
	Error:     lipgloss.Color("#ff7b72"),
	Dim:       lipgloss.Color("#6e7681"),
}

// Styles holds all styles derived from a theme.
type Styles struct {
	Title     lipgloss.Style
	Label     lipgloss.Style
	Border    lipgloss.Style
	Help      lipgloss.Style
	Player    lipgloss.Style
	Character lipgloss.Style
	Behavior  lipgloss.Style
	Error     lipgloss.Style
}

// NewStyles creates styles from a theme.
func NewStyles(t Theme) Styles {
	return Styles{
		Title:     lipgloss.NewStyle().Bold(true).Foreground(t.Primary).Padding(0, 1),
		Label:     lipgloss.NewStyle().Bold(true).Foreground(t.Primary),
		Border:    lipgloss.NewStyle().Foreground(t.Primary),
		Help:      lipgloss.NewStyle().Foreground(t.Dim),
		Player:    lipgloss.NewStyle().Bold(true).Foreground(t.Secondary),
		Character: lipgloss.NewStyle().Bold(true).Foreground(t.Primary),
		Behavior:  lipgloss.NewStyle().Italic(true).Foreground(t.Accent),
		Error:     lipgloss.NewStyle().Bold(true).Foreground(t.Error),
	}
}

// PlainStyles renders without color, for pipes and tests.
func PlainStyles() Styles {
	s := lipgloss.NewStyle()
	return Styles{Title: s, Label: s, Border: s, Help: s, Player: s, Character: s, Behavior: s, Error: s}
}

// Speaker renders a "name: " prefix.
func (s Styles) Speaker(name string, player bool) string {
	if player {
		return s.Player.Render(name+":") + " "
	}
	return s.Character.Render(name+":") + " "
}

// BehaviorLine renders one behavior as a stage direction.
func (s Styles) BehaviorLine(b smartnpc.Behavior) string {
	var text string
	switch b := b.(type) {
	case smartnpc.Action:
		text = "*" + b.Name
		if b.Target != "" {
			text += " → " + b.Target
		}
		text += "*"
	case smartnpc.Gesture:
		text = "*" + b.Name + "*"
	case smartnpc.Expression:
		text = "(" + b.Current + ")"
	}
	return s.Behavior.Render(text)
}

// ErrorLine renders an error.
func (s Styles) ErrorLine(err error) string {
	return s.Error.Render("! " + err.Error())
}

// Section is a labeled block of a Card.
type Section struct {
	Label string
	Lines []string
}

// Card renders a bordered box with a title and labeled sections.
type Card struct {
	Styles   Styles
	Title    string
	Status   string
	Sections []Section
	Help     string
}

// Render renders the card at the given width. Long lines are truncated.
func (c Card) Render(width int) string {
	width = max(width, 20)
	bc := c.Styles.Border
	maxContentWidth := width - 4

	var lines []string
	lines = append(lines, bc.Render("╭"+strings.Repeat("─", width-2)+"╮"))

	// │ title [status]    │
	title := c.Styles.Title.Render(c.Title)
	status := ""
	if c.Status != "" {
		status = c.Styles.Help.Render("[" + c.Status + "]")
	}
	padding := max(0, width-5-lipgloss.Width(title)-lipgloss.Width(status))
	lines = append(lines, bc.Render("│")+" "+title+" "+status+
		strings.Repeat(" ", padding)+" "+bc.Render("│"))

	for _, sec := range c.Sections {
		lines = append(lines, c.renderSection(bc, sec, width, maxContentWidth)...)
	}

	lines = append(lines, bc.Render("╰"+strings.Repeat("─", width-2)+"╯"))
	if c.Help != "" {
		lines = append(lines, c.Styles.Help.Render(c.Help))
	}
	return strings.Join(lines, "\n")
}

// renderSection renders a section under a separator with embedded label.
func (c Card) renderSection(bc lipgloss.Style, sec Section, width, maxContentWidth int) []string {
	// ├─Label────────┤
	labelText := c.Styles.Label.Render(sec.Label)
	padding := max(0, width-3-lipgloss.Width(labelText))
	lines := []string{bc.Render("├") + bc.Render("─") + labelText +
		bc.Render(strings.Repeat("─", padding)) + bc.Render("┤")}

	for _, text := range sec.Lines {
		if maxContentWidth > 1 && lipgloss.Width(text) > maxContentWidth {
			text = truncateString(text, maxContentWidth-1) + "…"
		}
		lines = append(lines, bc.Render("│")+" "+text+
			strings.Repeat(" ", max(0, maxContentWidth-lipgloss.Width(text)))+" "+bc.Render("│"))
	}
	return lines
}

// CharacterCard lays out character info as a Card.
func CharacterCard(s Styles, info *smartnpc.CharacterInfo) Card {
	c := Card{Styles: s, Title: info.Name, Status: info.ID}
	add := func(label string, lines ...string) {
		var kept []string
		for _, l := range lines {
			if l != "" {
				kept = append(kept, l)
			}
		}
		if len(kept) > 0 {
			c.Sections = append(c.Sections, Section{Label: label, Lines: kept})
		}
	}
	add("Profile", join("Gender: ", info.Gender), join("Language: ", info.Language))
	add("Background", info.Background)
	add("Personality", strings.Join(info.PersonalityTraits, ", "))
	add("Dialogue style", strings.Join(info.DialogueStyle, ", "))
	add("Actions", strings.Join(info.Actions, ", "))
	add("Gestures", strings.Join(info.Gestures, ", "))
	add("Expressions", strings.Join(info.Expressions, ", "))
	return c
}

func join(label, v string) string {
	if v == "" {
		return ""
	}
	return label + v
}

// truncateString safely truncates a string to the given width,
// handling multi-byte characters correctly.
func truncateString(s string, width int) string {
	if width <= 0 {
		return ""
	}
	runes := []rune(s)
	currentWidth := 0
	for i, r := range runes {
		w := lipgloss.Width(string(r))
		if currentWidth+w > width {
			return string(runes[:i])
		}
		currentWidth += w
	}
	return s
}
