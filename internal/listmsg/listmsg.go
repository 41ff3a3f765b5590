// Package listmsg renders menus as WhatsApp interactive list messages and
// provides the plain-text fallback and the single-string wire envelope.
package listmsg

import (
	"strings"
	"unicode/utf8"

	"github.com/BTreeMap/ResellerBot/internal/models"
)

// Reserved row identifiers for the synthetic navigation section.
const (
	BackRowID = "__nav_back__"
	HomeRowID = "__nav_home__"
)

// Field limits enforced by the list message channel.
const (
	MaxRowTitleLength       = 24
	MaxRowDescriptionLength = 72
	MaxTitleLength          = 60
	MaxBodyLength           = 1024
	MaxButtonTextLength     = 20
	MaxFooterLength         = 60
	MaxSectionTitleLength   = 24
)

const (
	DefaultSectionTitle    = "Opções"
	NavigationSectionTitle = "Navegação"
	DefaultButtonText      = "Ver opções"
	BackRowTitle           = "⬅️ Voltar"
	HomeRowTitle           = "🏠 Menu Principal"
	ellipsis               = "…"
)

// MenuConfig describes the container of a rendered menu.
type MenuConfig struct {
	Title      string
	Body       string
	ButtonText string
	FooterText string
	IsRoot     bool
	Error      string // rendered as a "❌" prefix on the body
}

// RenderMenu converts child menus into an interactive list. Rows are grouped
// by section title in order of first appearance and identified by menu key.
func RenderMenu(items []models.Menu, cfg MenuConfig) models.InteractiveList {
	var (
		sections []models.ListSection
		index    = make(map[string]int)
	)
	for _, item := range items {
		section := strings.TrimSpace(item.SectionTitle)
		if section == "" {
			section = DefaultSectionTitle
		}
		i, ok := index[section]
		if !ok {
			i = len(sections)
			index[section] = i
			sections = append(sections, models.ListSection{Title: Truncate(section, MaxSectionTitleLength)})
		}
		sections[i].Rows = append(sections[i].Rows, models.ListRow{
			Title:       Truncate(RowTitle(item), MaxRowTitleLength),
			Description: Truncate(item.Description, MaxRowDescriptionLength),
			RowID:       item.MenuKey,
		})
	}

	if !cfg.IsRoot {
		sections = append(sections, models.ListSection{
			Title: NavigationSectionTitle,
			Rows: []models.ListRow{
				{Title: BackRowTitle, RowID: BackRowID},
				{Title: HomeRowTitle, RowID: HomeRowID},
			},
		})
	}

	button := cfg.ButtonText
	if button == "" {
		button = DefaultButtonText
	}
	return models.InteractiveList{
		Title:       Truncate(cfg.Title, MaxTitleLength),
		Description: Truncate(body(cfg), MaxBodyLength),
		ButtonText:  Truncate(button, MaxButtonTextLength),
		FooterText:  Truncate(cfg.FooterText, MaxFooterLength),
		Sections:    sections,
	}
}

// RowTitle is the emoji-prefixed display title of a menu.
func RowTitle(m models.Menu) string {
	title := strings.TrimSpace(m.Title)
	if title == "" {
		title = m.MenuKey
	}
	if m.Emoji == "" {
		return title
	}
	return m.Emoji + " " + title
}

func body(cfg MenuConfig) string {
	if cfg.Error == "" {
		return cfg.Body
	}
	if cfg.Body == "" {
		return "❌ " + cfg.Error
	}
	return "❌ " + cfg.Error + "\n\n" + cfg.Body
}

// Truncate shortens s to at most max runes, ending with an ellipsis when cut.
func Truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max-1]) + ellipsis
}

// IsNavigationRow reports whether rowID is one of the reserved navigation rows.
func IsNavigationRow(rowID string) bool {
	return rowID == BackRowID || rowID == HomeRowID
}
