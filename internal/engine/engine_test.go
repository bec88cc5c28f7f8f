package engine_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"weekendwill/internal/config"
	"weekendwill/internal/db"
	"weekendwill/internal/domain"
	"weekendwill/internal/engine"
	"weekendwill/internal/engine/auth"
	"weekendwill/internal/migrate"
	"weekendwill/internal/repo"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

var testClock = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	eng := engine.New(conn, config.Default())
	eng.Now = func() time.Time { return testClock }
	return testEnv{Engine: eng, Ctx: context.Background()}
}

func raw(t *testing.T, v any) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

func testatorPayload() map[string]any {
	return map[string]any{
		"first_name": "Ada",
		"last_name":  "Lovelace",
		"address":    map[string]any{"street": "1 Main St", "city": "Oakland", "state": "CA", "zip": "94601"},
	}
}

// fillRequired brings a fresh draft to 100% section by section.
func fillRequired(t *testing.T, env testEnv, willID, userID string) domain.Will {
	t.Helper()
	sections := map[string]any{
		"testator": testatorPayload(),
		"spouse":   map[string]any{"first_name": "William", "last_name": "King"},
		"executors": []map[string]any{
			{"first_name": "Grace", "last_name": "Hopper", "relationship": "friend"},
		},
		"personal-property": []map[string]any{
			{"type": "vehicle", "description": "1962 sedan", "estimated_value": 9000},
		},
		"residual-estate": map[string]any{
			"beneficiaries": []map[string]any{
				{"name": "William King", "percentage": 100},
			},
		},
	}
	var w domain.Will
	var err error
	for key, payload := range sections {
		w, err = env.Engine.UpdateSection(env.Ctx, willID, userID, userID, key, raw(t, payload), 0)
		require.NoError(t, err, "update section %s", key)
	}
	return w
}

func TestCreateWillStartsEmptyDraft(t *testing.T) {
	env := newTestEnv(t)
	w, err := env.Engine.CreateWill(env.Ctx, "u1", "", "u1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDraft, w.Status)
	assert.Equal(t, 0, w.Progress.PercentComplete)
	assert.Equal(t, "CA", w.StateCompliance)
	assert.Equal(t, 1, w.Version)
}

func TestCreateWillRejectsUnknownState(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.CreateWill(env.Ctx, "u1", "XX", "u1")
	var verr engine.ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestSingleSectionProgress(t *testing.T) {
	env := newTestEnv(t)
	w, err := env.Engine.CreateWill(env.Ctx, "u1", "CA", "u1")
	require.NoError(t, err)

	payload := []map[string]any{{"first_name": "Jane", "last_name": "Doe", "relationship": "spouse"}}
	w, err = env.Engine.UpdateSection(env.Ctx, w.ID, "u1", "u1", "executors", raw(t, payload), 0)
	require.NoError(t, err)
	assert.Contains(t, w.Progress.CompletedSections, "executors")
	assert.Equal(t, 20, w.Progress.PercentComplete)
	assert.Equal(t, domain.StatusDraft, w.Status)
	assert.NotEmpty(t, w.Sections.Executors[0].ID)
}

func TestAllSectionsCompleteWill(t *testing.T) {
	env := newTestEnv(t)
	w, err := env.Engine.CreateWill(env.Ctx, "u1", "CA", "u1")
	require.NoError(t, err)
	w = fillRequired(t, env, w.ID, "u1")
	assert.Equal(t, 100, w.Progress.PercentComplete)
	assert.Equal(t, domain.StatusCompleted, w.Status)
}

func TestRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	w, err := env.Engine.CreateWill(env.Ctx, "u1", "CA", "u1")
	require.NoError(t, err)
	_, err = env.Engine.UpdateSection(env.Ctx, w.ID, "u1", "u1", "testator", raw(t, testatorPayload()), 0)
	require.NoError(t, err)

	got, err := env.Engine.GetWill(env.Ctx, w.ID, "u1")
	require.NoError(t, err)
	require.NotNil(t, got.Sections.Testator)
	assert.Equal(t, "Ada", got.Sections.Testator.FirstName)
	assert.Equal(t, "CA", got.Sections.Testator.Address.State)
	assert.Contains(t, got.Progress.CompletedSections, "personal-info")
}

func TestOwnershipScoping(t *testing.T) {
	env := newTestEnv(t)
	w, err := env.Engine.CreateWill(env.Ctx, "u1", "CA", "u1")
	require.NoError(t, err)

	_, err = env.Engine.GetWill(env.Ctx, w.ID, "u2")
	assert.ErrorIs(t, err, repo.ErrNotFound)

	_, err = env.Engine.UpdateSection(env.Ctx, w.ID, "u2", "u2", "testator", raw(t, testatorPayload()), 0)
	assert.ErrorIs(t, err, repo.ErrNotFound)

	err = env.Engine.DeleteWill(env.Ctx, w.ID, "u2", "u2")
	assert.ErrorIs(t, err, repo.ErrNotFound)

	// still intact for the real owner
	_, err = env.Engine.GetWill(env.Ctx, w.ID, "u1")
	assert.NoError(t, err)
}

func TestSectionIsolation(t *testing.T) {
	env := newTestEnv(t)
	w, err := env.Engine.CreateWill(env.Ctx, "u1", "CA", "u1")
	require.NoError(t, err)
	w = fillRequired(t, env, w.ID, "u1")
	executorsBefore := w.Sections.Executors

	family := []map[string]any{{"first_name": "Byron", "last_name": "King", "date_of_birth": "2015-05-01"}}
	w, err = env.Engine.UpdateSection(env.Ctx, w.ID, "u1", "u1", "children", raw(t, family), 0)
	require.NoError(t, err)
	assert.Equal(t, executorsBefore, w.Sections.Executors)
	assert.True(t, w.Sections.Children[0].IsMinor)
}

func TestMonotonicCompletion(t *testing.T) {
	env := newTestEnv(t)
	w, err := env.Engine.CreateWill(env.Ctx, "u1", "CA", "u1")
	require.NoError(t, err)
	w = fillRequired(t, env, w.ID, "u1")
	require.Equal(t, domain.StatusCompleted, w.Status)

	// removing all executors drops the percentage but never the status
	w, err = env.Engine.UpdateSection(env.Ctx, w.ID, "u1", "u1", "executors", json.RawMessage("null"), 0)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, w.Status)
	assert.Equal(t, 80, w.Progress.PercentComplete)
}

func TestValidationRejectsWholesale(t *testing.T) {
	env := newTestEnv(t)
	w, err := env.Engine.CreateWill(env.Ctx, "u1", "CA", "u1")
	require.NoError(t, err)

	// bad percentages reject the whole update, including the valid testator
	updates := map[string]json.RawMessage{
		"testator": raw(t, testatorPayload()),
		"residual-estate": raw(t, map[string]any{
			"beneficiaries": []map[string]any{{"name": "A", "percentage": 60}, {"name": "B", "percentage": 60}},
		}),
	}
	_, err = env.Engine.UpdateSections(env.Ctx, w.ID, "u1", "u1", updates, "", 0)
	var verr engine.ValidationError
	require.ErrorAs(t, err, &verr)

	got, err := env.Engine.GetWill(env.Ctx, w.ID, "u1")
	require.NoError(t, err)
	assert.Nil(t, got.Sections.Testator)
	assert.Equal(t, 0, got.Progress.PercentComplete)
	assert.Equal(t, 1, got.Version)
}

func TestUnknownSectionRejected(t *testing.T) {
	env := newTestEnv(t)
	w, err := env.Engine.CreateWill(env.Ctx, "u1", "CA", "u1")
	require.NoError(t, err)
	_, err = env.Engine.UpdateSection(env.Ctx, w.ID, "u1", "u1", "favorite-songs", json.RawMessage(`[]`), 0)
	var verr engine.ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestUnknownFieldsRejected(t *testing.T) {
	env := newTestEnv(t)
	w, err := env.Engine.CreateWill(env.Ctx, "u1", "CA", "u1")
	require.NoError(t, err)
	payload := testatorPayload()
	payload["shoe_size"] = 42
	_, err = env.Engine.UpdateSection(env.Ctx, w.ID, "u1", "u1", "testator", raw(t, payload), 0)
	var verr engine.ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestVersionConflict(t *testing.T) {
	env := newTestEnv(t)
	w, err := env.Engine.CreateWill(env.Ctx, "u1", "CA", "u1")
	require.NoError(t, err)

	// writer A updates against version 1
	_, err = env.Engine.UpdateSection(env.Ctx, w.ID, "u1", "u1", "testator", raw(t, testatorPayload()), 1)
	require.NoError(t, err)

	// writer B still holds version 1
	_, err = env.Engine.UpdateSection(env.Ctx, w.ID, "u1", "u1", "spouse",
		raw(t, map[string]any{"first_name": "W", "last_name": "K"}), 1)
	var conflict engine.VersionConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, w.ID, conflict.WillID)
}

func TestLastWriteWinsWithoutVersion(t *testing.T) {
	env := newTestEnv(t)
	w, err := env.Engine.CreateWill(env.Ctx, "u1", "CA", "u1")
	require.NoError(t, err)
	_, err = env.Engine.UpdateSection(env.Ctx, w.ID, "u1", "u1", "testator", raw(t, testatorPayload()), 0)
	require.NoError(t, err)
	// second writer without a version check simply wins
	_, err = env.Engine.UpdateSection(env.Ctx, w.ID, "u1", "u1", "spouse",
		raw(t, map[string]any{"first_name": "W", "last_name": "K"}), 0)
	require.NoError(t, err)
}

func TestPersonOperations(t *testing.T) {
	env := newTestEnv(t)
	w, err := env.Engine.CreateWill(env.Ctx, "u1", "CA", "u1")
	require.NoError(t, err)

	w, err = env.Engine.AddPerson(env.Ctx, w.ID, "u1", "u1", "executors",
		domain.Person{FirstName: "Grace", LastName: "Hopper"})
	require.NoError(t, err)
	require.Len(t, w.Sections.Executors, 1)
	pid := w.Sections.Executors[0].ID
	require.NotEmpty(t, pid)
	assert.Contains(t, w.Progress.CompletedSections, "executors")

	w, err = env.Engine.UpdatePerson(env.Ctx, w.ID, "u1", "u1", "executors",
		domain.Person{ID: pid, FirstName: "Grace", LastName: "Hopper", IsPrimary: true})
	require.NoError(t, err)
	assert.True(t, w.Sections.Executors[0].IsPrimary)

	// unknown id is an error, never an append
	_, err = env.Engine.UpdatePerson(env.Ctx, w.ID, "u1", "u1", "executors",
		domain.Person{ID: "missing", FirstName: "X", LastName: "Y"})
	assert.ErrorIs(t, err, repo.ErrNotFound)

	_, err = env.Engine.RemovePerson(env.Ctx, w.ID, "u1", "u1", "executors", "missing")
	assert.ErrorIs(t, err, repo.ErrNotFound)

	w, err = env.Engine.RemovePerson(env.Ctx, w.ID, "u1", "u1", "executors", pid)
	require.NoError(t, err)
	assert.Empty(t, w.Sections.Executors)
}

func TestAssetOperations(t *testing.T) {
	env := newTestEnv(t)
	w, err := env.Engine.CreateWill(env.Ctx, "u1", "CA", "u1")
	require.NoError(t, err)

	w, err = env.Engine.AddAsset(env.Ctx, w.ID, "u1", "u1", "real-property",
		domain.Asset{Type: "home", Description: "Primary residence", EstimatedValue: 500000,
			Address: &domain.Address{Street: "1 Main St", City: "Oakland", State: "CA"}})
	require.NoError(t, err)
	require.Len(t, w.Sections.RealProperty, 1)
	aid := w.Sections.RealProperty[0].ID
	assert.Contains(t, w.Progress.CompletedSections, "assets")

	w, err = env.Engine.UpdateAsset(env.Ctx, w.ID, "u1", "u1", "real-property",
		domain.Asset{ID: aid, Type: "home", Description: "Primary residence", EstimatedValue: 520000})
	require.NoError(t, err)
	assert.Equal(t, float64(520000), w.Sections.RealProperty[0].EstimatedValue)

	w, err = env.Engine.RemoveAsset(env.Ctx, w.ID, "u1", "u1", "real-property", aid)
	require.NoError(t, err)
	assert.Empty(t, w.Sections.RealProperty)
	assert.NotContains(t, w.Progress.CompletedSections, "assets")
}

func TestExecuteWillHappyPath(t *testing.T) {
	env := newTestEnv(t)
	w, err := env.Engine.CreateWill(env.Ctx, "u1", "CA", "u1")
	require.NoError(t, err)
	fillRequired(t, env, w.ID, "u1")

	wi := domain.WitnessInfo{
		Witnesses: []domain.Witness{
			{FirstName: "Alan", LastName: "Turing"},
			{FirstName: "John", LastName: "von Neumann"},
		},
		ExecutionDate: "2025-03-01",
		Location:      "Oakland, CA",
	}
	w, err = env.Engine.ExecuteWill(env.Ctx, w.ID, "u1", "u1", wi)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusExecuted, w.Status)
	require.NotNil(t, w.ExecutedAt)
	require.NotNil(t, w.WitnessInfo)
	assert.Len(t, w.WitnessInfo.Witnesses, 2)

	// executed wills refuse further section edits
	_, err = env.Engine.UpdateSection(env.Ctx, w.ID, "u1", "u1", "testator", raw(t, testatorPayload()), 0)
	var pre engine.PreconditionError
	require.ErrorAs(t, err, &pre)
}

func TestExecuteWillGate(t *testing.T) {
	env := newTestEnv(t)
	w, err := env.Engine.CreateWill(env.Ctx, "u1", "CA", "u1")
	require.NoError(t, err)
	// four of five sections: 80%
	for key, payload := range map[string]any{
		"testator":          testatorPayload(),
		"spouse":            map[string]any{"first_name": "W", "last_name": "K"},
		"executors":         []map[string]any{{"first_name": "G", "last_name": "H"}},
		"personal-property": []map[string]any{{"type": "vehicle", "description": "sedan"}},
	} {
		_, err = env.Engine.UpdateSection(env.Ctx, w.ID, "u1", "u1", key, raw(t, payload), 0)
		require.NoError(t, err)
	}

	wi := domain.WitnessInfo{
		Witnesses:     []domain.Witness{{FirstName: "A", LastName: "T"}, {FirstName: "J", LastName: "N"}},
		ExecutionDate: "2025-03-01",
		Location:      "Oakland, CA",
	}
	_, err = env.Engine.ExecuteWill(env.Ctx, w.ID, "u1", "u1", wi)
	var pre engine.PreconditionError
	require.ErrorAs(t, err, &pre)
	assert.NotEmpty(t, pre.Blockers)

	// nothing written
	got, err := env.Engine.GetWill(env.Ctx, w.ID, "u1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDraft, got.Status)
	assert.Nil(t, got.WitnessInfo)
	assert.Nil(t, got.ExecutedAt)
}

func TestExecuteWillStateRules(t *testing.T) {
	env := newTestEnv(t)
	w, err := env.Engine.CreateWill(env.Ctx, "u1", "LA", "u1")
	require.NoError(t, err)
	fillRequired(t, env, w.ID, "u1")

	// Louisiana requires notarization
	wi := domain.WitnessInfo{
		Witnesses:     []domain.Witness{{FirstName: "A", LastName: "T"}, {FirstName: "J", LastName: "N"}},
		ExecutionDate: "2025-03-01",
		Location:      "New Orleans, LA",
	}
	_, err = env.Engine.ExecuteWill(env.Ctx, w.ID, "u1", "u1", wi)
	var pre engine.PreconditionError
	require.ErrorAs(t, err, &pre)

	wi.Notary = &domain.Notary{Name: "R. Prejean", CommissionNumber: "12345"}
	w, err = env.Engine.ExecuteWill(env.Ctx, w.ID, "u1", "u1", wi)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusExecuted, w.Status)
}

func TestExecutionBlockers(t *testing.T) {
	env := newTestEnv(t)
	w, err := env.Engine.CreateWill(env.Ctx, "u1", "CA", "u1")
	require.NoError(t, err)

	blockers, err := env.Engine.ExecutionBlockers(env.Ctx, w.ID, "u1")
	require.NoError(t, err)
	assert.Contains(t, blockers, "testator missing")
	assert.Contains(t, blockers, "no executor appointed")

	fillRequired(t, env, w.ID, "u1")
	blockers, err = env.Engine.ExecutionBlockers(env.Ctx, w.ID, "u1")
	require.NoError(t, err)
	assert.Empty(t, blockers)
}

func TestChatMessages(t *testing.T) {
	env := newTestEnv(t)
	w, err := env.Engine.CreateWill(env.Ctx, "u1", "CA", "u1")
	require.NoError(t, err)

	m, err := env.Engine.AddChatMessage(env.Ctx, w.ID, "u1", "u1", "user", "Do I need a notary in California?")
	require.NoError(t, err)
	assert.NotEmpty(t, m.ID)
	assert.Equal(t, testClock.UTC().Format(time.RFC3339), m.TS)

	_, err = env.Engine.AddChatMessage(env.Ctx, w.ID, "u1", "u1", "system", "nope")
	var verr engine.ValidationError
	require.ErrorAs(t, err, &verr)

	got, err := env.Engine.GetWill(env.Ctx, w.ID, "u1")
	require.NoError(t, err)
	require.Len(t, got.ChatHistory, 1)
	assert.Equal(t, "user", got.ChatHistory[0].Role)
}

func TestPhotoPremiumGate(t *testing.T) {
	env := newTestEnv(t)
	w, err := env.Engine.CreateWill(env.Ctx, "u1", "CA", "u1")
	require.NoError(t, err)

	_, err = env.Engine.AddPhoto(env.Ctx, w.ID, "u1", "u1", domain.Photo{URL: "https://cdn.example.com/p1.jpg"})
	var prem auth.PremiumRequiredError
	require.ErrorAs(t, err, &prem)
	assert.Equal(t, "photos", prem.Feature)

	require.NoError(t, env.Engine.Repo.UpsertSubscription(env.Ctx, domain.Subscription{
		UserID:           "u1",
		Status:           domain.SubscriptionActive,
		Plan:             "premium",
		CurrentPeriodEnd: testClock.Add(30 * 24 * time.Hour).Format(time.RFC3339),
		UpdatedAt:        testClock.Format(time.RFC3339),
	}))

	p, err := env.Engine.AddPhoto(env.Ctx, w.ID, "u1", "u1", domain.Photo{URL: "https://cdn.example.com/p1.jpg", Caption: "grandfather's watch"})
	require.NoError(t, err)
	assert.NotEmpty(t, p.ID)

	got, err := env.Engine.GetWill(env.Ctx, w.ID, "u1")
	require.NoError(t, err)
	require.Len(t, got.Photos, 1)

	require.NoError(t, env.Engine.RemovePhoto(env.Ctx, w.ID, "u1", "u1", p.ID))
	err = env.Engine.RemovePhoto(env.Ctx, w.ID, "u1", "u1", p.ID)
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func TestChatAppendBumpsWillVersion(t *testing.T) {
	env := newTestEnv(t)
	w, err := env.Engine.CreateWill(env.Ctx, "u1", "CA", "u1")
	require.NoError(t, err)

	later := testClock.Add(time.Hour)
	env.Engine.Now = func() time.Time { return later }
	_, err = env.Engine.AddChatMessage(env.Ctx, w.ID, "u1", "u1", "user", "hello")
	require.NoError(t, err)

	got, err := env.Engine.GetWill(env.Ctx, w.ID, "u1")
	require.NoError(t, err)
	assert.Equal(t, w.Version+1, got.Version)
	assert.Equal(t, later.UTC().Format(time.RFC3339), got.UpdatedAt)
}

func TestPhotoWritesBumpWillVersion(t *testing.T) {
	env := newTestEnv(t)
	w, err := env.Engine.CreateWill(env.Ctx, "u1", "CA", "u1")
	require.NoError(t, err)
	require.NoError(t, env.Engine.Repo.UpsertSubscription(env.Ctx, domain.Subscription{
		UserID:           "u1",
		Status:           domain.SubscriptionActive,
		Plan:             "premium",
		CurrentPeriodEnd: testClock.Add(30 * 24 * time.Hour).Format(time.RFC3339),
		UpdatedAt:        testClock.Format(time.RFC3339),
	}))

	p, err := env.Engine.AddPhoto(env.Ctx, w.ID, "u1", "u1", domain.Photo{URL: "https://cdn.example.com/p1.jpg"})
	require.NoError(t, err)
	got, err := env.Engine.GetWill(env.Ctx, w.ID, "u1")
	require.NoError(t, err)
	assert.Equal(t, w.Version+1, got.Version)

	require.NoError(t, env.Engine.RemovePhoto(env.Ctx, w.ID, "u1", "u1", p.ID))
	got, err = env.Engine.GetWill(env.Ctx, w.ID, "u1")
	require.NoError(t, err)
	assert.Equal(t, w.Version+2, got.Version)
}

func TestEventTimestampsFollowEngineClock(t *testing.T) {
	env := newTestEnv(t)
	w, err := env.Engine.CreateWill(env.Ctx, "u1", "CA", "u1")
	require.NoError(t, err)

	evts, err := env.Engine.Repo.ListEvents(env.Ctx, 10, w.ID)
	require.NoError(t, err)
	require.NotEmpty(t, evts)
	assert.Equal(t, testClock.UTC().Format(time.RFC3339), evts[0].TS)
}

func TestAttachDocument(t *testing.T) {
	env := newTestEnv(t)
	w, err := env.Engine.CreateWill(env.Ctx, "u1", "CA", "u1")
	require.NoError(t, err)

	w, err = env.Engine.AttachDocument(env.Ctx, w.ID, "u1", "u1", "will-pdf",
		domain.DocumentRef{URL: "https://cdn.example.com/will.pdf", Size: 120000})
	require.NoError(t, err)
	require.NotNil(t, w.Documents.WillPDF)
	assert.NotEmpty(t, w.Documents.WillPDF.GeneratedAt)

	// wishes PDF is premium
	_, err = env.Engine.AttachDocument(env.Ctx, w.ID, "u1", "u1", "wishes-pdf",
		domain.DocumentRef{URL: "https://cdn.example.com/wishes.pdf"})
	var prem auth.PremiumRequiredError
	require.ErrorAs(t, err, &prem)

	_, err = env.Engine.AttachDocument(env.Ctx, w.ID, "u1", "u1", "poster", domain.DocumentRef{URL: "x"})
	var verr engine.ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestDeleteWill(t *testing.T) {
	env := newTestEnv(t)
	w, err := env.Engine.CreateWill(env.Ctx, "u1", "CA", "u1")
	require.NoError(t, err)
	require.NoError(t, env.Engine.DeleteWill(env.Ctx, w.ID, "u1", "u1"))
	_, err = env.Engine.GetWill(env.Ctx, w.ID, "u1")
	assert.ErrorIs(t, err, repo.ErrNotFound)
	err = env.Engine.DeleteWill(env.Ctx, w.ID, "u1", "u1")
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func TestListAndSearch(t *testing.T) {
	env := newTestEnv(t)
	w1, err := env.Engine.CreateWill(env.Ctx, "u1", "CA", "u1")
	require.NoError(t, err)
	_, err = env.Engine.CreateWill(env.Ctx, "u1", "NY", "u1")
	require.NoError(t, err)
	_, err = env.Engine.CreateWill(env.Ctx, "u2", "CA", "u2")
	require.NoError(t, err)

	mine, err := env.Engine.ListWills(env.Ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	// editing the older will moves it to the top of the list
	env.Engine.Now = func() time.Time { return testClock.Add(time.Minute) }
	_, err = env.Engine.UpdateSection(env.Ctx, w1.ID, "u1", "u1", "testator", raw(t, testatorPayload()), 0)
	require.NoError(t, err)
	mine, err = env.Engine.ListWills(env.Ctx, "u1")
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, w1.ID, mine[0].ID)

	fillRequired(t, env, w1.ID, "u1")
	completed, total, err := env.Engine.SearchWills(env.Ctx, repo.WillFilters{Status: domain.StatusCompleted})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, completed, 1)
	assert.Equal(t, w1.ID, completed[0].ID)

	_, total, err = env.Engine.SearchWills(env.Ctx, repo.WillFilters{UserID: "u2"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
}

func TestGuardianReferenceCheck(t *testing.T) {
	env := newTestEnv(t)
	w, err := env.Engine.CreateWill(env.Ctx, "u1", "CA", "u1")
	require.NoError(t, err)

	children := []map[string]any{{"first_name": "B", "last_name": "K", "guardian_id": "nope"}}
	_, err = env.Engine.UpdateSection(env.Ctx, w.ID, "u1", "u1", "children", raw(t, children), 0)
	var verr engine.ValidationError
	require.ErrorAs(t, err, &verr)

	updates := map[string]json.RawMessage{
		"guardians": raw(t, []map[string]any{{"id": "g1", "first_name": "G", "last_name": "P"}}),
		"children":  raw(t, []map[string]any{{"first_name": "B", "last_name": "K", "guardian_id": "g1"}}),
	}
	got, err := env.Engine.UpdateSections(env.Ctx, w.ID, "u1", "u1", updates, "", 0)
	require.NoError(t, err)
	assert.Equal(t, "g1", got.Sections.Children[0].GuardianID)
}

func TestProgressNeverTrustsClient(t *testing.T) {
	env := newTestEnv(t)
	w, err := env.Engine.CreateWill(env.Ctx, "u1", "CA", "u1")
	require.NoError(t, err)
	// progress is not a section and cannot be set from outside
	_, err = env.Engine.UpdateSection(env.Ctx, w.ID, "u1", "u1", "progress", json.RawMessage(`{"percent_complete":100}`), 0)
	var verr engine.ValidationError
	require.ErrorAs(t, err, &verr)
}
