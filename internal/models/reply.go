package models

// ReplyType tags the bot output envelope.
type ReplyType string

const (
	ReplyTypeText ReplyType = "text"
	ReplyTypeList ReplyType = "list"
)

// Reply is one bot output. An empty Text with no List means stay silent.
// List replies also carry a plain-text rendering in Text for channels that
// cannot deliver list messages.
type Reply struct {
	Type ReplyType        `json:"type"`
	Text string           `json:"text,omitempty"`
	List *InteractiveList `json:"list,omitempty"`
}

// TextReply wraps plain text.
func TextReply(text string) Reply {
	return Reply{Type: ReplyTypeText, Text: text}
}

// ListReply wraps an interactive list and its plain-text rendering.
func ListReply(list InteractiveList, text string) Reply {
	return Reply{Type: ReplyTypeList, Text: text, List: &list}
}

// IsEmpty reports whether there is nothing to send.
func (r Reply) IsEmpty() bool {
	if r.Type == ReplyTypeList {
		return r.List == nil
	}
	return r.Text == ""
}

// InteractiveList is a WhatsApp list message.
type InteractiveList struct {
	Title       string        `json:"title"`
	Description string        `json:"description,omitempty"`
	ButtonText  string        `json:"buttonText"`
	FooterText  string        `json:"footerText,omitempty"`
	Sections    []ListSection `json:"sections"`
}

// ListSection groups rows under a title.
type ListSection struct {
	Title string    `json:"title"`
	Rows  []ListRow `json:"rows"`
}

// ListRow is one selectable row. RowID is what comes back on selection.
type ListRow struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	RowID       string `json:"rowId"`
}
