package listmsg

import (
	"fmt"
	"strings"

	"github.com/BTreeMap/ResellerBot/internal/models"
)

// CreateTextResponse renders the same menu as numbered plain text for
// channels without list support. Numbers select the n-th child menu.
func CreateTextResponse(items []models.Menu, cfg MenuConfig) string {
	var b strings.Builder
	if cfg.Title != "" {
		fmt.Fprintf(&b, "*%s*\n", cfg.Title)
	}
	if text := body(cfg); text != "" {
		b.WriteString(text)
		b.WriteString("\n")
	}
	if len(items) > 0 {
		b.WriteString("\n")
		for i, item := range items {
			fmt.Fprintf(&b, "*%d* - %s\n", i+1, RowTitle(item))
			if item.Description != "" {
				fmt.Fprintf(&b, "    %s\n", item.Description)
			}
		}
	}
	if !cfg.IsRoot {
		b.WriteString("\n*voltar* - Voltar\n*menu* - Menu Principal\n")
	}
	if cfg.FooterText != "" {
		fmt.Fprintf(&b, "\n_%s_", cfg.FooterText)
	}
	return strings.TrimRight(b.String(), "\n")
}
