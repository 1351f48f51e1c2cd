package bot

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redmadres/danabot/internal/dispatch"
	"github.com/redmadres/danabot/internal/flow"
	"github.com/redmadres/danabot/internal/messaging"
	"github.com/redmadres/danabot/internal/models"
	"github.com/redmadres/danabot/internal/roles"
	"github.com/redmadres/danabot/internal/store"
	"github.com/redmadres/danabot/internal/telegram"
)

const (
	adminID         int64 = 7591438074
	pediatricsGroup int64 = -1001
	proGroup        int64 = -1009
)

type fixture struct {
	t        *testing.T
	store    *store.InMemoryStore
	client   *telegram.MockClient
	msg      *messaging.TelegramService
	workflow *dispatch.Workflow
	router   *Router
	updateID int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := store.NewInMemoryStore()
	client := telegram.NewMockClient()
	msg := messaging.NewTelegramService(client, 1000)
	t.Cleanup(func() { _ = msg.Stop() })

	routes := &dispatch.Routes{
		Specialties: map[string][]models.Destination{"Pediatría": {{ChatID: pediatricsGroup}}},
	}
	wf := dispatch.NewWorkflow(st, msg, dispatch.WithRoutes(routes), dispatch.WithProfessionalGroup(proGroup))
	reg := roles.NewRegistry(st, []int64{adminID})
	r := NewRouter(st, msg, reg, wf, WithProfessionalGroup(proGroup))
	return &fixture{t: t, store: st, client: client, msg: msg, workflow: wf, router: r}
}

func (f *fixture) envelope(id int64, username string) models.Envelope {
	f.updateID++
	return models.Envelope{
		UpdateID:       f.updateID,
		ConversationID: id,
		ChatType:       models.ChatPrivate,
		Sender:         models.Sender{ID: id, Username: username, FirstName: "Test"},
	}
}

func (f *fixture) handle(ev models.Event) {
	f.t.Helper()
	require.NoError(f.t, f.router.HandleEvent(context.Background(), ev))
}

func (f *fixture) text(id int64, username, text string) {
	f.t.Helper()
	f.handle(models.TextMessage{Envelope: f.envelope(id, username), Text: text})
}

func (f *fixture) press(id int64, username, data string) {
	f.t.Helper()
	f.handle(models.ButtonPress{Envelope: f.envelope(id, username), CallbackID: fmt.Sprintf("cb%d", f.updateID+1), Data: data})
}

func (f *fixture) command(id int64, username, name string) {
	f.t.Helper()
	f.handle(models.Command{Envelope: f.envelope(id, username), Name: name})
}

func (f *fixture) session(id int64) *models.Session {
	f.t.Helper()
	s, err := f.store.ReadSession(id)
	require.NoError(f.t, err)
	require.NotNil(f.t, s)
	return s
}

func (f *fixture) last(id int64) telegram.SentMessage {
	f.t.Helper()
	m, ok := f.client.LastMessageTo(id)
	require.True(f.t, ok, "no message sent to %d", id)
	return m
}

func (f *fixture) registerMother(id int64) {
	f.t.Helper()
	_, err := f.store.CreateMother(models.Mother{TelegramID: id, Username: "madre", FullName: "Lucía Vidal", Phone: "600111222"})
	require.NoError(f.t, err)
	s := models.NewSession(id)
	s.Role = models.RoleMother
	require.NoError(f.t, f.store.WriteSession(*s))
}

func keyboardData(kb models.Keyboard) []string {
	var out []string
	for _, row := range kb {
		for _, b := range row {
			out = append(out, b.Data)
		}
	}
	return out
}

func TestFirstContactShowsRoleChoice(t *testing.T) {
	f := newFixture(t)
	f.text(1, "", "hola")

	msg := f.last(1)
	assert.Equal(t, []string{CallbackRoleMother, CallbackRoleCollaborator}, keyboardData(msg.Keyboard))
	assert.Equal(t, models.RoleAwaitingChoice, f.session(1).Role)
}

func TestMotherRegistration(t *testing.T) {
	f := newFixture(t)
	f.command(1, "lucia", CommandStart)
	f.press(1, "lucia", CallbackRoleMother)

	s := f.session(1)
	assert.Equal(t, models.FormMother, s.ActiveForm)
	idx, ok := s.QuestionIndex()
	require.True(t, ok)
	assert.Equal(t, 0, idx)

	answers := []string{"Lucía Vidal", "600111222", "Calle Mayor 3", "Paiporta", "46200", "Se inundó el bajo"}
	for i, a := range answers {
		f.text(1, "lucia", a)
		s = f.session(1)
		if i < len(answers)-1 {
			idx, _ := s.QuestionIndex()
			assert.Equal(t, i+1, idx)
			assert.Len(t, s.CollectedAnswers, idx)
		}
	}
	assert.Equal(t, models.PhaseConfirming, s.Phase)
	assert.Contains(t, keyboardData(f.last(1).Keyboard), flow.CallbackConfirm)

	f.press(1, "lucia", flow.CallbackConfirm)
	s = f.session(1)
	assert.Equal(t, models.RoleMother, s.Role)
	assert.False(t, s.FormActive())

	m, err := f.store.GetMother(1)
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, "Paiporta", m.Town)
	assert.Equal(t, "lucia", m.Username)
	assert.Contains(t, keyboardData(f.last(1).Keyboard), CallbackMotherRequestHelp)
}

func TestHelpRequestBroadcastScenario(t *testing.T) {
	f := newFixture(t)
	f.registerMother(1)

	f.command(1, "madre", CommandHelp)
	assert.Equal(t, models.FormHelpRequest, f.session(1).ActiveForm)

	f.text(1, "madre", "es urgente")
	assert.Empty(t, f.session(1).CollectedAnswers, "text on a choice step is not recorded")

	f.press(1, "madre", flow.CallbackAnswerPrefix+"HIGH")
	f.press(1, "madre", flow.CallbackAnswerPrefix+"PEDIATRIA")
	f.text(1, "madre", "Fiebre alta")

	reqs, err := f.store.ListHelpRequestsByRequester(1)
	require.NoError(t, err)
	require.Len(t, reqs, 1)
	assert.Equal(t, models.UrgencyHigh, reqs[0].Urgency)
	assert.Equal(t, "Pediatría", reqs[0].Specialty)
	assert.Equal(t, models.RequestPending, reqs[0].Status)

	sent, _, _, _ := f.client.Snapshot()
	var groups []int64
	for _, m := range sent {
		if m.Dest.ChatID < 0 {
			groups = append(groups, m.Dest.ChatID)
		}
	}
	assert.Equal(t, []int64{pediatricsGroup}, groups)
	assert.False(t, f.session(1).FormActive())

	toMother := f.client.MessagesTo(1)
	require.GreaterOrEqual(t, len(toMother), 2)
	assert.Contains(t, toMother[len(toMother)-2].Text, fmt.Sprintf("#%d", reqs[0].ID))
}

func TestCollaboratorMissingHandleDeferredThenRetried(t *testing.T) {
	f := newFixture(t)
	f.press(2, "", CallbackRoleCollaborator)
	for _, a := range []string{"Marta Gil", "611222333", "Pediatra", "10 años en neonatos"} {
		f.text(2, "", a)
	}
	f.press(2, "", flow.CallbackAnswerPrefix+"PEDIATRIA")
	f.text(2, "", "-")
	f.press(2, "", flow.CallbackConfirm)

	s := f.session(2)
	assert.Equal(t, models.PhaseFinalizing, s.Phase)
	assert.Contains(t, keyboardData(f.last(2).Keyboard), flow.CallbackRetry)
	exists, err := f.store.CollaboratorExists(2)
	require.NoError(t, err)
	assert.False(t, exists)

	f.press(2, "marta_gil", flow.CallbackRetry)
	f.press(2, "marta_gil", flow.CallbackRetry)

	c, err := f.store.GetCollaborator(2)
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, "marta_gil", c.Username)
	assert.Equal(t, "Pediatría", c.Specialty)
	assert.Empty(t, c.LicenseNumber)
	count, err := f.store.CountCollaborators()
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Equal(t, []int64{proGroup}, f.client.Invites)
	assert.Equal(t, models.RoleCollaborator, f.session(2).Role)
}

func TestAdminPagination(t *testing.T) {
	f := newFixture(t)
	for i, name := range []string{"Ana", "Beatriz", "Carla", "Diana", "Elena", "Fran", "Gema"} {
		_, err := f.store.CreateCollaborator(models.Collaborator{TelegramID: int64(100 + i), Username: strings.ToLower(name), FullName: name, Specialty: "Doula"})
		require.NoError(t, err)
	}

	f.command(adminID, "admin", CommandStart)
	assert.Equal(t, []string{CallbackAdminListPrefix + "1"}, keyboardData(f.last(adminID).Keyboard))

	f.press(adminID, "admin", CallbackAdminListPrefix+"2")
	page := f.last(adminID)
	assert.Contains(t, page.Text, "Página 2")
	assert.Contains(t, page.Text, "Fran")
	assert.Contains(t, page.Text, "Gema")
	assert.NotContains(t, page.Text, "Ana")

	data := keyboardData(page.Keyboard)
	assert.Contains(t, data, CallbackAdminListPrefix+"1")
	assert.NotContains(t, data, CallbackAdminListPrefix+"3")
	assert.Contains(t, data, CallbackAdminMenu)

	f.press(adminID, "admin", CallbackAdminListPrefix+"1")
	data = keyboardData(f.last(adminID).Keyboard)
	assert.Contains(t, data, CallbackAdminListPrefix+"2")
	assert.NotContains(t, data, CallbackAdminListPrefix+"0")
}

func TestAdminBlocksCollaborator(t *testing.T) {
	f := newFixture(t)
	_, err := f.store.CreateCollaborator(models.Collaborator{TelegramID: 300, Username: "pro", FullName: "Pro"})
	require.NoError(t, err)

	f.press(adminID, "admin", CallbackAdminBlockPrefix+"300_1")
	c, err := f.store.GetCollaborator(300)
	require.NoError(t, err)
	assert.True(t, c.Blocked)
	assert.Contains(t, keyboardData(f.last(adminID).Keyboard), CallbackAdminUnblockPrefix+"300_1")

	f.press(adminID, "admin", CallbackAdminUnblockPrefix+"300_1")
	c, err = f.store.GetCollaborator(300)
	require.NoError(t, err)
	assert.False(t, c.Blocked)
}

func TestBlockedCollaboratorClaimFromGroup(t *testing.T) {
	f := newFixture(t)
	f.registerMother(1)
	_, err := f.store.CreateCollaborator(models.Collaborator{TelegramID: 300, Username: "pro", FullName: "Pro", Blocked: true})
	require.NoError(t, err)
	req, err := f.workflow.CreateAndBroadcast(context.Background(), 1, []string{"Alto", "Pediatría", "Fiebre"})
	require.NoError(t, err)

	f.updateID++
	f.handle(models.ButtonPress{
		Envelope:   models.Envelope{UpdateID: f.updateID, ConversationID: pediatricsGroup, ChatType: models.ChatSupergroup, Sender: models.Sender{ID: 300, Username: "pro"}},
		CallbackID: "cb-group",
		Data:       dispatch.ClaimData(req.ID),
	})

	_, _, answers, bans := f.client.Snapshot()
	require.Len(t, answers, 1)
	assert.True(t, answers[0].Alert)
	assert.Contains(t, answers[0].Text, "bloqueada")
	assert.Equal(t, []telegram.Ban{{ChatID: proGroup, UserID: 300}}, bans)

	stored, err := f.store.GetHelpRequest(req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RequestPending, stored.Status)
}

func TestClaimFromGroupAccepted(t *testing.T) {
	f := newFixture(t)
	f.registerMother(1)
	_, err := f.store.CreateCollaborator(models.Collaborator{TelegramID: 300, Username: "pro", FullName: "Pro"})
	require.NoError(t, err)
	req, err := f.workflow.CreateAndBroadcast(context.Background(), 1, []string{"Medio", "Pediatría", "Tos"})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		f.updateID++
		f.handle(models.ButtonPress{
			Envelope:   models.Envelope{UpdateID: f.updateID, ConversationID: pediatricsGroup, ChatType: models.ChatSupergroup, Sender: models.Sender{ID: 300, Username: "pro"}},
			CallbackID: fmt.Sprintf("cb-%d", i),
			Data:       dispatch.ClaimData(req.ID),
		})
	}

	_, deleted, answers, _ := f.client.Snapshot()
	require.Len(t, answers, 2)
	assert.False(t, answers[0].Alert)
	assert.Contains(t, answers[0].Text, "Has aceptado")
	assert.True(t, answers[1].Alert)
	assert.Contains(t, answers[1].Text, "ya ha sido atendida")
	assert.Len(t, deleted, 1)
}

func TestDuplicateUpdateIsDropped(t *testing.T) {
	f := newFixture(t)
	ev := models.TextMessage{Envelope: f.envelope(5, ""), Text: "hola"}
	f.handle(ev)
	f.handle(ev)
	assert.Len(t, f.client.MessagesTo(5), 1)
}

func TestInconsistentRoleFallsBackToRoleChoice(t *testing.T) {
	f := newFixture(t)
	s := models.NewSession(6)
	s.Role = models.RoleMother
	require.NoError(t, f.store.WriteSession(*s))

	f.text(6, "", "hola")
	assert.Equal(t, models.RoleAwaitingChoice, f.session(6).Role)
	assert.Equal(t, []string{CallbackRoleMother, CallbackRoleCollaborator}, keyboardData(f.last(6).Keyboard))
}

func TestMotherEditsField(t *testing.T) {
	f := newFixture(t)
	f.registerMother(1)

	f.press(1, "madre", CallbackMotherData)
	assert.Contains(t, keyboardData(f.last(1).Keyboard), CallbackEditPrefix+models.FieldPhone)

	f.press(1, "madre", CallbackEditPrefix+models.FieldPhone)
	assert.Equal(t, models.FieldPhone, f.session(1).CurrentEditingField)

	f.text(1, "madre", "699000111")
	m, err := f.store.GetMother(1)
	require.NoError(t, err)
	assert.Equal(t, "699000111", m.Phone)
	assert.Empty(t, f.session(1).CurrentEditingField)
}

func TestCollaboratorEditsSpecialtyWithKeyboard(t *testing.T) {
	f := newFixture(t)
	_, err := f.store.CreateCollaborator(models.Collaborator{TelegramID: 300, Username: "pro", FullName: "Pro", Specialty: "Doula"})
	require.NoError(t, err)

	f.press(300, "pro", CallbackEditPrefix+models.FieldSpecialty)
	assert.Contains(t, keyboardData(f.last(300).Keyboard), flow.CallbackAnswerPrefix+"PEDIATRIA")

	f.text(300, "pro", "Pediatría")
	assert.Equal(t, models.FieldSpecialty, f.session(300).CurrentEditingField)

	f.press(300, "pro", flow.CallbackAnswerPrefix+"PEDIATRIA")
	c, err := f.store.GetCollaborator(300)
	require.NoError(t, err)
	assert.Equal(t, "Pediatría", c.Specialty)
}

func TestCollaboratorDeletesAccount(t *testing.T) {
	f := newFixture(t)
	_, err := f.store.CreateCollaborator(models.Collaborator{TelegramID: 300, Username: "pro", FullName: "Pro"})
	require.NoError(t, err)
	stale := models.NewSession(300)
	stale.Role = models.RoleCollaborator
	stale.CurrentEditingField = models.FieldPhone
	require.NoError(t, f.store.WriteSession(*stale))

	f.press(300, "pro", CallbackCollaboratorDelete)
	f.press(300, "pro", CallbackCollaboratorDeleteConfirm)

	exists, err := f.store.CollaboratorExists(300)
	require.NoError(t, err)
	assert.False(t, exists)
	s := f.session(300)
	assert.Equal(t, models.RoleAwaitingChoice, s.Role)
	assert.Empty(t, s.CurrentEditingField)
	assert.False(t, s.FormActive())
	assert.Equal(t, []string{CallbackRoleMother, CallbackRoleCollaborator}, keyboardData(f.last(300).Keyboard))
}

func TestCancelAndRestartCommands(t *testing.T) {
	f := newFixture(t)
	f.press(1, "", CallbackRoleMother)
	f.text(1, "", "Lucía")
	f.text(1, "", "600")

	f.command(1, "", CommandRestart)
	s := f.session(1)
	idx, ok := s.QuestionIndex()
	require.True(t, ok)
	assert.Equal(t, 0, idx)
	assert.Empty(t, s.CollectedAnswers)

	f.command(1, "", CommandCancel)
	s = f.session(1)
	assert.False(t, s.FormActive())
	assert.Equal(t, models.RoleAwaitingChoice, s.Role)

	f.command(1, "", CommandHelp)
	assert.Contains(t, f.last(1).Text, "solo está disponible")
}

func TestRunProcessesQueuedEvents(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.msg.Deliver(models.TextMessage{Envelope: f.envelope(8, ""), Text: "hola"}))
	require.NoError(t, f.msg.Stop())

	require.NoError(t, f.router.Run(context.Background()))
	assert.Equal(t, models.RoleAwaitingChoice, f.session(8).Role)
}

func TestMotherListsOwnRequests(t *testing.T) {
	f := newFixture(t)
	f.registerMother(5)

	f.press(5, "madre", CallbackMotherRequests)
	texts := make([]string, 0)
	for _, m := range f.client.MessagesTo(5) {
		texts = append(texts, m.Text)
	}
	assert.Contains(t, strings.Join(texts, "\n"), "Todavía no has enviado")

	req, err := f.workflow.CreateAndBroadcast(context.Background(), 5, []string{"Alto", "Pediatría", "Fiebre alta"})
	require.NoError(t, err)

	f.press(5, "madre", CallbackMotherRequests)
	msg := f.last(5)
	assert.Contains(t, msg.Text, fmt.Sprintf("#%d", req.ID))
	assert.Contains(t, msg.Text, "Pendiente")
	assert.Equal(t, []string{CallbackMainMenu}, keyboardData(msg.Keyboard))
}

func TestAdministratorBranchWinsOverMotherRecord(t *testing.T) {
	f := newFixture(t)
	_, err := f.store.CreateMother(models.Mother{TelegramID: adminID, Username: "admin", FullName: "Admin Madre"})
	require.NoError(t, err)
	s := models.NewSession(adminID)
	s.Role = models.RoleMother
	require.NoError(t, f.store.WriteSession(*s))

	f.press(adminID, "admin", CallbackMotherRequestHelp)
	s = f.session(adminID)
	assert.Equal(t, models.RoleAdministrator, s.Role)
	assert.False(t, s.FormActive(), "no help form starts for an administrator")
	assert.Equal(t, keyboardData(adminMenuKeyboard()), keyboardData(f.last(adminID).Keyboard))

	f.text(adminID, "admin", "Necesito ayuda")
	s = f.session(adminID)
	assert.False(t, s.FormActive())
	assert.Equal(t, keyboardData(adminMenuKeyboard()), keyboardData(f.last(adminID).Keyboard))

	reqs, err := f.store.ListHelpRequestsByRequester(adminID)
	require.NoError(t, err)
	assert.Empty(t, reqs)
}

func TestStaleRoleButtonDuringCollaboratorFormGoesToRoleSelection(t *testing.T) {
	f := newFixture(t)
	s := models.NewSession(8)
	s.Role = models.RoleAwaitingChoice
	s.ActiveForm = models.FormCollaborator
	s.Phase = models.PhaseAsking
	s.SetQuestionIndex(4)
	s.CollectedAnswers = []string{"Marta Ruiz", "600333444", "Pediatra", "10 años"}
	require.NoError(t, f.store.WriteSession(*s))

	f.press(8, "marta", CallbackRoleMother)

	s = f.session(8)
	assert.Equal(t, models.FormMother, s.ActiveForm, "role selection restarts with the mother form")
	idx, ok := s.QuestionIndex()
	require.True(t, ok)
	assert.Equal(t, 0, idx)
	assert.Empty(t, s.CollectedAnswers, "collaborator answers are dropped, not extended")

	exists, err := f.store.CollaboratorExists(8)
	require.NoError(t, err)
	assert.False(t, exists)
}
