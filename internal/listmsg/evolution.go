package listmsg

import "github.com/BTreeMap/ResellerBot/internal/models"

// EvolutionPayload is the body of the Evolution API sendList endpoint.
type EvolutionPayload struct {
	Number      string             `json:"number"`
	Title       string             `json:"title"`
	Description string             `json:"description,omitempty"`
	ButtonText  string             `json:"buttonText"`
	FooterText  string             `json:"footerText,omitempty"`
	Values      []EvolutionSection `json:"values"`
}

type EvolutionSection struct {
	Title string         `json:"title"`
	Rows  []EvolutionRow `json:"rows"`
}

type EvolutionRow struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	RowID       string `json:"rowId"`
}

// ToEvolutionPayload adapts a list for delivery to number.
func ToEvolutionPayload(number string, list models.InteractiveList) EvolutionPayload {
	p := EvolutionPayload{
		Number:      number,
		Title:       list.Title,
		Description: list.Description,
		ButtonText:  list.ButtonText,
		FooterText:  list.FooterText,
		Values:      make([]EvolutionSection, 0, len(list.Sections)),
	}
	for _, s := range list.Sections {
		sec := EvolutionSection{Title: s.Title, Rows: make([]EvolutionRow, 0, len(s.Rows))}
		for _, r := range s.Rows {
			sec.Rows = append(sec.Rows, EvolutionRow(r))
		}
		p.Values = append(p.Values, sec)
	}
	return p
}
