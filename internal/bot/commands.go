package bot

import (
	"strings"

	"github.com/BTreeMap/ResellerBot/internal/listmsg"
	"github.com/BTreeMap/ResellerBot/internal/models"
)

// Command is a tenant-independent global command.
type Command string

const (
	CommandMenu    Command = "menu"
	CommandBack    Command = "voltar"
	CommandRestart Command = "inicio"
	CommandExit    Command = "sair"
	CommandHuman   Command = "humano"
)

type commandEntry struct {
	command  Command
	keywords []string
}

// globalCommands is checked in order and the first hit wins. Matching is by
// equality or substring containment, so "##" resolves to voltar through "#".
var globalCommands = []commandEntry{
	{CommandMenu, []string{"menu", "cardapio", "cardápio", "opcoes", "opções"}},
	{CommandBack, []string{"voltar", "back", "*", "#"}},
	{CommandRestart, []string{"inicio", "início", "restart", "00", "##"}},
	{CommandExit, []string{"sair", "exit", "encerrar"}},
	{CommandHuman, []string{"humano", "atendente", "human"}},
}

// disabledStates suppress global commands so a critical step cannot be hijacked.
var disabledStates = map[string]struct{}{
	"aguardando_pagamento":  {},
	"confirmacao_critica":   {},
	"entrada_obrigatoria":   {},
	"awaiting_payment":      {},
	"critical_confirmation": {},
	"mandatory_input":       {},
}

// MatchCommand normalizes message and returns the first global command whose
// keyword equals or is contained in it.
func MatchCommand(message string) (Command, bool) {
	normalized := normalize(message)
	if normalized == "" {
		return "", false
	}
	for _, entry := range globalCommands {
		for _, kw := range entry.keywords {
			if normalized == kw || strings.Contains(normalized, kw) {
				return entry.command, true
			}
		}
	}
	return "", false
}

// GlobalCommandsEnabled reports whether global commands apply in state.
func GlobalCommandsEnabled(state models.SessionState) bool {
	_, disabled := disabledStates[strings.ToLower(strings.TrimSpace(string(state)))]
	return !disabled
}

// navigationCommand maps the reserved list rows onto global commands.
func navigationCommand(message string) (Command, bool) {
	row := strings.TrimSpace(message)
	if !listmsg.IsNavigationRow(row) {
		return "", false
	}
	if row == listmsg.BackRowID {
		return CommandBack, true
	}
	return CommandMenu, true
}

// ApplyCommand mutates the session for cmd. It never produces message content.
func ApplyCommand(cmd Command, s *models.Session) {
	switch cmd {
	case CommandMenu:
		s.ResetToRoot()
		s.State = models.SessionStateMenu
	case CommandBack:
		if prev, ok := s.Pop(); ok {
			s.CurrentMenuKey = prev
		} else {
			s.CurrentMenuKey = models.RootMenuKey
		}
		s.State = models.SessionStateMenu
	case CommandRestart:
		s.ResetToRoot()
		s.State = models.SessionStateStart
	case CommandExit:
		s.ResetToRoot()
		s.State = models.SessionStateEnded
		s.Locked = false
	case CommandHuman:
		s.State = models.SessionStateAwaitingHuman
	}
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
