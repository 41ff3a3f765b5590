package bot

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/BTreeMap/ResellerBot/internal/listmsg"
	"github.com/BTreeMap/ResellerBot/internal/models"
)

const tenant = "tenant-1"

type fakeRepo struct {
	menus    []models.Menu
	options  map[string][]models.Option
	triggers []models.Trigger
	vars     []models.Variable
	settings *models.BotSettings
	err      error
}

func (f *fakeRepo) GetMenuByKey(ctx context.Context, tenantID, key string) (*models.Menu, error) {
	if f.err != nil {
		return nil, f.err
	}
	for i := range f.menus {
		if f.menus[i].MenuKey == key {
			m := f.menus[i]
			return &m, nil
		}
	}
	return nil, nil
}

func (f *fakeRepo) ListChildMenus(ctx context.Context, tenantID, parentKey string) ([]models.Menu, error) {
	var out []models.Menu
	for _, m := range f.menus {
		if m.ParentMenuKey == parentKey && m.IsActive {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeRepo) ListActiveOptions(ctx context.Context, tenantID, menuID string) ([]models.Option, error) {
	return f.options[menuID], nil
}

func (f *fakeRepo) ListActiveTriggers(ctx context.Context, tenantID string) ([]models.Trigger, error) {
	return f.triggers, nil
}

func (f *fakeRepo) ListVariables(ctx context.Context, tenantID string) ([]models.Variable, error) {
	return f.vars, nil
}

func (f *fakeRepo) GetBotSettings(ctx context.Context, tenantID string) (*models.BotSettings, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.settings, nil
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		menus: []models.Menu{
			{ID: "m-main", MenuKey: "main", Title: "Menu principal", MessageText: "Bem-vindo à {empresa}!\n1 - Planos\n2 - Suporte", IsActive: true},
			{ID: "m-planos", MenuKey: "planos", ParentMenuKey: "main", Title: "Planos", MessageText: "Nossos planos: {plano_basico}", Emoji: "📺", IsActive: true},
			{ID: "m-suporte", MenuKey: "suporte", ParentMenuKey: "main", Title: "Suporte", MessageText: "Como podemos ajudar?", IsActive: true},
			{ID: "m-premium", MenuKey: "premium", ParentMenuKey: "planos", Title: "Premium", MessageText: "Plano premium", IsActive: true},
			{ID: "m-old", MenuKey: "antigo", ParentMenuKey: "main", Title: "Antigo", MessageText: "desativado", IsActive: false},
		},
		options: map[string][]models.Option{
			"m-main": {
				{OptionNumber: 1, Keywords: []string{"planos", "preço"}, ActionType: models.OptionActionMenu, TargetMenuKey: "planos", IsActive: true},
				{OptionNumber: 2, Keywords: []string{"suporte", "ajuda"}, ActionType: models.OptionActionMenu, TargetMenuKey: "suporte", IsActive: true},
				{OptionNumber: 3, Keywords: []string{"velho"}, ActionType: models.OptionActionMenu, TargetMenuKey: "antigo", IsActive: true},
				{OptionNumber: 4, Keywords: []string{"atendimento"}, ActionType: models.OptionActionHuman, ActionResponse: "Chamando um atendente", IsActive: true},
				{OptionNumber: 5, Keywords: []string{"tchau"}, ActionType: models.OptionActionEnd, ActionResponse: "Até logo!", IsActive: true},
			},
			"m-planos": {
				{OptionNumber: 1, Keywords: []string{"premium"}, ActionType: models.OptionActionMenu, TargetMenuKey: "premium", IsActive: true},
				{OptionNumber: 2, Keywords: []string{"pix"}, ActionType: models.OptionActionMessage, ActionResponse: "Chave PIX: {pix}", IsActive: true},
				{OptionNumber: 2, Keywords: []string{"duplicada"}, ActionType: models.OptionActionMessage, ActionResponse: "nunca", IsActive: true},
			},
		},
		triggers: []models.Trigger{
			{TriggerName: "promo", Keywords: []string{"promoção", "promocao"}, ActionType: models.TriggerActionGotoMenu, TargetMenuKey: "premium", IsActive: true},
			{TriggerName: "teste", Keywords: []string{"teste grátis"}, ActionType: models.TriggerActionMessage, ResponseText: "Teste liberado para {empresa}", IsActive: true},
			{TriggerName: "quebrado", Keywords: []string{"quebrado"}, ActionType: models.TriggerActionGotoMenu, TargetMenuKey: "inexistente", IsActive: true},
			{TriggerName: "chamar", Keywords: []string{"reclamação"}, ActionType: models.TriggerActionHuman, IsActive: true},
			{TriggerName: "planos-trigger", Keywords: []string{"ajuda"}, ActionType: models.TriggerActionMessage, ResponseText: "trigger venceu", IsActive: true},
		},
		vars: []models.Variable{
			{VariableKey: "empresa", VariableValue: "TopTV"},
			{VariableKey: "plano_basico", VariableValue: "Básico R$ 29,90"},
			{VariableKey: "pix", VariableValue: "pix@toptv"},
		},
		settings: &models.BotSettings{FallbackMessage: "Não entendi. Digite *menu* para ver as opções {empresa}."},
	}
}

func sessionAt(key string, stack ...string) *models.Session {
	s := models.NewSession(tenant, "5511999990000")
	s.CurrentMenuKey = key
	s.Stack = append([]string{}, stack...)
	return &s
}

func process(t *testing.T, e *Engine, s *models.Session, msg string) Result {
	t.Helper()
	res, err := e.Process(context.Background(), tenant, s, "5511999990000", msg)
	if err != nil {
		t.Fatalf("Process(%q) error: %v", msg, err)
	}
	return res
}

func TestMenuNavigationByNumber(t *testing.T) {
	e := NewEngine(newFakeRepo())
	res := process(t, e, sessionAt("main"), "1")
	if res.Session.CurrentMenuKey != "planos" {
		t.Fatalf("expected planos, got %q", res.Session.CurrentMenuKey)
	}
	if len(res.Session.Stack) != 1 || res.Session.Stack[0] != "main" {
		t.Errorf("expected stack [main], got %v", res.Session.Stack)
	}
	if res.Reply.Text != "Nossos planos: Básico R$ 29,90" {
		t.Errorf("unexpected reply %q", res.Reply.Text)
	}
	if res.Outcome != OutcomeOption {
		t.Errorf("expected option outcome, got %q", res.Outcome)
	}
}

func TestProcessDoesNotMutateInputSession(t *testing.T) {
	e := NewEngine(newFakeRepo())
	in := sessionAt("main")
	process(t, e, in, "1")
	if in.CurrentMenuKey != "main" || len(in.Stack) != 0 {
		t.Errorf("input session mutated: %+v", in)
	}
}

func TestGlobalBack(t *testing.T) {
	e := NewEngine(newFakeRepo())
	res := process(t, e, sessionAt("planos", "main"), "voltar")
	if res.Session.CurrentMenuKey != "main" || len(res.Session.Stack) != 0 {
		t.Fatalf("expected main with empty stack, got %+v", res.Session)
	}
	if !strings.HasPrefix(res.Reply.Text, "Bem-vindo à TopTV!") {
		t.Errorf("expected root menu text, got %q", res.Reply.Text)
	}
}

func TestFallbackIsVerbatim(t *testing.T) {
	e := NewEngine(newFakeRepo())
	res := process(t, e, sessionAt("main"), "xyz123")
	want := "Não entendi. Digite *menu* para ver as opções {empresa}."
	if res.Reply.Text != want {
		t.Errorf("fallback = %q, want %q", res.Reply.Text, want)
	}
	if res.Outcome != OutcomeFallback || res.Session.CurrentMenuKey != "main" {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestFallbackWithoutConfiguredMessageRendersError(t *testing.T) {
	repo := newFakeRepo()
	repo.settings = nil
	res := process(t, NewEngine(repo), sessionAt("main"), "xyz123")
	if !strings.HasPrefix(res.Reply.Text, "❌ "+InvalidOptionMessage) {
		t.Errorf("expected invalid option prefix, got %q", res.Reply.Text)
	}
}

func TestTriggerBeatsOption(t *testing.T) {
	e := NewEngine(newFakeRepo())
	// "ajuda" is both option 2's keyword on main and a trigger keyword.
	res := process(t, e, sessionAt("main"), "preciso de ajuda")
	if res.Reply.Text != "trigger venceu" || res.Outcome != OutcomeTrigger {
		t.Errorf("expected trigger to win, got %+v", res)
	}
	if res.Session.CurrentMenuKey != "main" {
		t.Errorf("message trigger must not navigate, got %q", res.Session.CurrentMenuKey)
	}
}

func TestExactChildKeyBeatsTrigger(t *testing.T) {
	repo := newFakeRepo()
	repo.triggers = append(repo.triggers, models.Trigger{
		TriggerName: "suporte-trigger", Keywords: []string{"suporte"}, ActionType: models.TriggerActionMessage, ResponseText: "trigger venceu", IsActive: true,
	})
	e := NewEngine(repo)

	// A list row selection arrives as the child's menu key verbatim.
	res := process(t, e, sessionAt("main"), "suporte")
	if res.Outcome != OutcomeSelection || res.Session.CurrentMenuKey != "suporte" {
		t.Errorf("expected exact key to select child, got %+v", res)
	}

	res = process(t, e, sessionAt("main"), "quero suporte")
	if res.Outcome != OutcomeTrigger || res.Reply.Text != "trigger venceu" {
		t.Errorf("expected trigger for free text, got %+v", res)
	}
}

func TestTriggerGotoMenuPushesStack(t *testing.T) {
	e := NewEngine(newFakeRepo())
	res := process(t, e, sessionAt("suporte", "main"), "tem promoção?")
	if res.Session.CurrentMenuKey != "premium" {
		t.Fatalf("expected premium, got %q", res.Session.CurrentMenuKey)
	}
	if got := res.Session.Stack; len(got) != 2 || got[1] != "suporte" {
		t.Errorf("expected stack [main suporte], got %v", got)
	}
}

func TestTriggerVariableResolution(t *testing.T) {
	res := process(t, NewEngine(newFakeRepo()), sessionAt("main"), "quero um teste grátis")
	if res.Reply.Text != "Teste liberado para TopTV" {
		t.Errorf("unexpected reply %q", res.Reply.Text)
	}
}

func TestTriggerHumanUsesDefaultHandoff(t *testing.T) {
	res := process(t, NewEngine(newFakeRepo()), sessionAt("main"), "tenho uma reclamação")
	if res.Session.State != models.SessionStateAwaitingHuman {
		t.Errorf("expected handoff state, got %q", res.Session.State)
	}
	if res.Reply.Text != DefaultHandoffMessage {
		t.Errorf("expected default handoff text, got %q", res.Reply.Text)
	}
}

func TestMissingTargetFallsThrough(t *testing.T) {
	e := NewEngine(newFakeRepo())
	res := process(t, e, sessionAt("main"), "quebrado")
	if res.Outcome != OutcomeFallback {
		t.Errorf("dangling trigger should fall back, got %+v", res)
	}
	res = process(t, e, sessionAt("main"), "3")
	if res.Outcome != OutcomeFallback || res.Session.CurrentMenuKey != "main" {
		t.Errorf("option to inactive menu should fall back, got %+v", res)
	}
}

func TestDuplicateOptionNumberFirstWins(t *testing.T) {
	res := process(t, NewEngine(newFakeRepo()), sessionAt("planos", "main"), "2")
	if res.Reply.Text != "Chave PIX: pix@toptv" {
		t.Errorf("expected first option with number 2, got %q", res.Reply.Text)
	}
}

func TestStackRoundTrip(t *testing.T) {
	e := NewEngine(newFakeRepo())
	start := sessionAt("main")
	s := start
	for _, msg := range []string{"planos", "premium"} {
		res := process(t, e, s, msg)
		s = &res.Session
	}
	if s.CurrentMenuKey != "premium" || len(s.Stack) != 2 {
		t.Fatalf("unexpected session after forward moves: %+v", s)
	}
	for i := 0; i < 2; i++ {
		res := process(t, e, s, "voltar")
		s = &res.Session
	}
	if s.CurrentMenuKey != start.CurrentMenuKey || len(s.Stack) != len(start.Stack) {
		t.Errorf("expected to return to %q with depth %d, got %+v", start.CurrentMenuKey, len(start.Stack), s)
	}
}

func TestCommandsDisabledInCriticalState(t *testing.T) {
	s := sessionAt("main")
	s.State = "AGUARDANDO_PAGAMENTO"
	res := process(t, NewEngine(newFakeRepo()), s, "voltar")
	if res.Outcome != OutcomeFallback {
		t.Errorf("voltar must not run as a command in a gated state, got %+v", res)
	}
}

func TestAwaitingHumanIsSilent(t *testing.T) {
	e := NewEngine(newFakeRepo())
	s := sessionAt("main")
	s.State = models.SessionStateAwaitingHuman

	res := process(t, e, s, "1")
	if !res.Reply.IsEmpty() || res.Outcome != OutcomeSilent {
		t.Errorf("expected silence while awaiting human, got %+v", res)
	}
	if res.Session.State != models.SessionStateAwaitingHuman {
		t.Errorf("state changed: %q", res.Session.State)
	}

	res = process(t, e, s, "menu")
	if res.Session.State != models.SessionStateMenu || res.Outcome != OutcomeCommand {
		t.Errorf("menu command should leave handoff, got %+v", res)
	}
}

func TestExitThenNewSession(t *testing.T) {
	repo := newFakeRepo()
	repo.settings.GoodbyeMessage = "Obrigado, {empresa}!"
	e := NewEngine(repo)

	res := process(t, e, sessionAt("planos", "main"), "sair")
	if res.Session.State != models.SessionStateEnded || res.Reply.Text != "Obrigado, TopTV!" {
		t.Fatalf("unexpected exit result %+v", res)
	}

	ended := res.Session
	res = process(t, e, &ended, "oi")
	if res.Outcome != OutcomeFallback || res.Session.CurrentMenuKey != models.RootMenuKey {
		t.Errorf("expected fallback on restarted session, got %+v", res)
	}
	if res.Session.State == models.SessionStateEnded {
		t.Errorf("restarted session should not stay ended")
	}

	ended = res.Session
	ended.State = models.SessionStateEnded
	res = process(t, e, &ended, "menu")
	if res.Outcome != OutcomeCommand || !strings.HasPrefix(res.Reply.Text, "Bem-vindo à TopTV!") {
		t.Errorf("expected root menu after menu command, got %+v", res)
	}
}

func TestNilSessionUnmatchedInputGetsFallback(t *testing.T) {
	repo := newFakeRepo()
	repo.settings.FallbackMessage = "Desculpe, não entendi."

	res := process(t, NewEngine(repo), nil, "xyz123")
	if res.Reply.Text != "Desculpe, não entendi." || res.Outcome != OutcomeFallback {
		t.Errorf("expected verbatim fallback on first message, got %+v", res)
	}
	if res.Session.CurrentMenuKey != models.RootMenuKey || len(res.Session.Stack) != 0 {
		t.Errorf("new session should sit at root, got %+v", res.Session)
	}
}

func TestNilSessionStartsAtRoot(t *testing.T) {
	res := process(t, NewEngine(newFakeRepo()), nil, "2")
	if res.Session.CurrentMenuKey != "suporte" || res.Session.TenantID != tenant {
		t.Errorf("unexpected session %+v", res.Session)
	}
}

func TestOptionEndResetsToRoot(t *testing.T) {
	res := process(t, NewEngine(newFakeRepo()), sessionAt("main"), "tchau")
	if res.Reply.Text != "Até logo!" || res.Session.CurrentMenuKey != models.RootMenuKey || len(res.Session.Stack) != 0 {
		t.Errorf("unexpected end result %+v", res)
	}
}

func TestOptionHumanUsesActionResponse(t *testing.T) {
	res := process(t, NewEngine(newFakeRepo()), sessionAt("main"), "4")
	if res.Reply.Text != "Chamando um atendente" || res.Session.State != models.SessionStateAwaitingHuman {
		t.Errorf("unexpected human option result %+v", res)
	}
}

func TestInteractiveListRenderingAndSelection(t *testing.T) {
	repo := newFakeRepo()
	repo.settings.UseInteractiveList = true
	repo.settings.ListButtonText = "Abrir"
	e := NewEngine(repo)

	res := process(t, e, sessionAt("planos", "main"), "menu")
	if res.Reply.Type != models.ReplyTypeList || res.Reply.List == nil {
		t.Fatalf("expected list reply, got %+v", res.Reply)
	}
	for _, s := range res.Reply.List.Sections {
		if s.Title == listmsg.NavigationSectionTitle {
			t.Error("root list must not have navigation")
		}
		for _, r := range s.Rows {
			if r.RowID == "antigo" {
				t.Error("inactive child rendered")
			}
		}
	}
	if res.Reply.List.ButtonText != "Abrir" {
		t.Errorf("button text = %q", res.Reply.List.ButtonText)
	}
	if res.Reply.Text == "" {
		t.Error("list reply should carry a text rendering")
	}

	res = process(t, e, &res.Session, "planos")
	if res.Session.CurrentMenuKey != "planos" || res.Outcome != OutcomeSelection {
		t.Fatalf("row selection failed: %+v", res)
	}
	nav := res.Reply.List.Sections[len(res.Reply.List.Sections)-1]
	if nav.Title != listmsg.NavigationSectionTitle {
		t.Errorf("expected navigation section on child menu, got %q", nav.Title)
	}

	res = process(t, e, &res.Session, listmsg.BackRowID)
	if res.Session.CurrentMenuKey != "main" || len(res.Session.Stack) != 0 {
		t.Errorf("back row failed: %+v", res.Session)
	}
}

func TestNavigationHomeRow(t *testing.T) {
	res := process(t, NewEngine(newFakeRepo()), sessionAt("premium", "main", "planos"), listmsg.HomeRowID)
	if res.Session.CurrentMenuKey != "main" || len(res.Session.Stack) != 0 || res.Outcome != OutcomeCommand {
		t.Errorf("home row failed: %+v", res)
	}
}

func TestChildIndexSelection(t *testing.T) {
	repo := newFakeRepo()
	repo.options = nil
	res := process(t, NewEngine(repo), sessionAt("main"), "2")
	if res.Session.CurrentMenuKey != "suporte" || res.Outcome != OutcomeSelection {
		t.Errorf("expected second child selected, got %+v", res)
	}
}

func TestDanglingCurrentMenuResetsToRoot(t *testing.T) {
	res := process(t, NewEngine(newFakeRepo()), sessionAt("sumiu", "main"), "2")
	if res.Session.CurrentMenuKey != "suporte" {
		t.Errorf("expected navigation from root, got %+v", res.Session)
	}
}

func TestRepositoryErrorPropagates(t *testing.T) {
	repo := newFakeRepo()
	repo.err = errors.New("db down")
	if _, err := NewEngine(repo).Process(context.Background(), tenant, sessionAt("main"), "u", "1"); err == nil {
		t.Fatal("expected error")
	}
}
