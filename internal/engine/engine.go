package engine

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"weekendwill/internal/config"
	"weekendwill/internal/domain"
	"weekendwill/internal/engine/auth"
	"weekendwill/internal/events"
	"weekendwill/internal/progress"
	"weekendwill/internal/repo"
)

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Auth   auth.Service
	Config *config.Config
	Now    func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Auth:   auth.Service{DB: db},
		Config: cfg,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// PreconditionError indicates an operation rejected because the will is not
// in an eligible state. Never retried.
type PreconditionError struct {
	Reason   string
	Blockers []string
}

func (e PreconditionError) Error() string {
	return e.Reason
}

// VersionConflictError indicates an optimistic-lock failure: the caller's
// copy of the will is stale.
type VersionConflictError struct {
	WillID   string
	Expected int
}

func (e VersionConflictError) Error() string {
	return fmt.Sprintf("will %s changed since version %d", e.WillID, e.Expected)
}

// CreateWill starts an empty draft for a user. state defaults to the
// configured product default when blank.
func (e Engine) CreateWill(ctx context.Context, userID, state, actorID string) (domain.Will, error) {
	if userID == "" {
		return domain.Will{}, ValidationError{Field: "user_id", Msg: "required"}
	}
	if state == "" {
		state = e.Config.Product.DefaultState
	}
	if _, ok := e.Config.States[state]; !ok {
		return domain.Will{}, ValidationError{Field: "state_compliance", Msg: fmt.Sprintf("unsupported state %s", state)}
	}
	now := e.now().UTC().Format(time.RFC3339)
	w := domain.Will{
		ID:              uuid.NewString(),
		UserID:          userID,
		Status:          domain.StatusDraft,
		StateCompliance: state,
		Progress:        progress.Compute(domain.Sections{}, progress.StepPersonalInfo),
		Version:         1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	err := e.Repo.RunTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.InsertWill(ctx, tx, w); err != nil {
			return fmt.Errorf("insert will: %w", err)
		}
		return e.eventWriter().Append(ctx, tx, events.WillCreated, w.ID, "will", w.ID, actorID, events.EventPayload{"state": state})
	})
	if err != nil {
		return domain.Will{}, err
	}
	return w, nil
}

// GetWill loads a will with chat and photos, with minor flags recomputed
// for the current clock.
func (e Engine) GetWill(ctx context.Context, id, userID string) (domain.Will, error) {
	w, err := e.Repo.LoadWill(ctx, id, userID)
	if err != nil {
		return domain.Will{}, err
	}
	w.Sections.RefreshMinors(e.now())
	return w, nil
}

func (e Engine) ListWills(ctx context.Context, userID string) ([]domain.Will, error) {
	wills, err := e.Repo.ListWillsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	now := e.now()
	for i := range wills {
		wills[i].Sections.RefreshMinors(now)
	}
	return wills, nil
}

func (e Engine) SearchWills(ctx context.Context, f repo.WillFilters) ([]domain.Will, int, error) {
	wills, total, err := e.Repo.SearchWills(ctx, f)
	if err != nil {
		return nil, 0, err
	}
	now := e.now()
	for i := range wills {
		wills[i].Sections.RefreshMinors(now)
	}
	return wills, total, nil
}

// mutateWill loads the will, applies fn, recomputes progress, bumps the
// version, and writes the whole document back in one transaction. When
// expectedVersion is non-zero the write is rejected if the stored version
// moved. Section content never changes after execution.
// eventWriter returns the audit writer pinned to the engine's clock so
// event timestamps match the will timestamps written in the same tx.
func (e Engine) eventWriter() events.Writer {
	w := e.Events
	if w.Now == nil {
		w.Now = e.Now
	}
	return w
}

// touchWill bumps the will's version and updated_at inside the caller's tx.
// Child-table writes (chat, photos) go through here so they surface to
// If-Match callers and to the updated_at list ordering.
func (e Engine) touchWill(ctx context.Context, tx *sql.Tx, w domain.Will) error {
	loaded := w.Version
	w.Version++
	w.UpdatedAt = e.now().UTC().Format(time.RFC3339)
	if err := e.Repo.UpdateWill(ctx, tx, w, loaded); err != nil {
		if err == repo.ErrVersionConflict {
			return VersionConflictError{WillID: w.ID, Expected: loaded}
		}
		return err
	}
	return nil
}

func (e Engine) mutateWill(ctx context.Context, id, userID, actorID string, expectedVersion int, evtType string, payload events.EventPayload, fn func(w *domain.Will) error) (domain.Will, error) {
	var out domain.Will
	err := e.Repo.RunTx(ctx, func(tx *sql.Tx) error {
		w, err := e.Repo.GetWillTx(ctx, tx, id, userID)
		if err != nil {
			return err
		}
		if expectedVersion > 0 && w.Version != expectedVersion {
			return VersionConflictError{WillID: id, Expected: expectedVersion}
		}
		loaded := w.Version
		if err := fn(&w); err != nil {
			return err
		}
		w.Progress = progress.Compute(w.Sections, w.Progress.CurrentSection)
		completed := false
		if w.Status == domain.StatusDraft && w.Progress.PercentComplete == 100 {
			w.Status = domain.StatusCompleted
			completed = true
		}
		w.Version++
		w.UpdatedAt = e.now().UTC().Format(time.RFC3339)
		if err := e.Repo.UpdateWill(ctx, tx, w, loaded); err != nil {
			if err == repo.ErrVersionConflict {
				return VersionConflictError{WillID: id, Expected: loaded}
			}
			return err
		}
		if err := e.eventWriter().Append(ctx, tx, evtType, w.ID, "will", w.ID, actorID, payload); err != nil {
			return err
		}
		if completed {
			if err := e.eventWriter().Append(ctx, tx, events.WillCompleted, w.ID, "will", w.ID, actorID, nil); err != nil {
				return err
			}
		}
		out = w
		return nil
	})
	if err != nil {
		return domain.Will{}, err
	}
	out.Sections.RefreshMinors(e.now())
	return out, nil
}

func ensureEditable(w domain.Will) error {
	if w.Status == domain.StatusExecuted {
		return PreconditionError{Reason: "will already executed"}
	}
	return nil
}

// UpdateSection replaces exactly one named section wholesale.
func (e Engine) UpdateSection(ctx context.Context, id, userID, actorID, sectionKey string, data json.RawMessage, expectedVersion int) (domain.Will, error) {
	return e.UpdateSections(ctx, id, userID, actorID, map[string]json.RawMessage{sectionKey: data}, "", expectedVersion)
}

// UpdateSections replaces several sections in one atomic document write.
// All payloads are validated before anything is applied; one bad section
// rejects the whole update. currentSection, when set, records where the
// interview left the user.
func (e Engine) UpdateSections(ctx context.Context, id, userID, actorID string, updates map[string]json.RawMessage, currentSection string, expectedVersion int) (domain.Will, error) {
	keys := make([]string, 0, len(updates))
	for key := range updates {
		if !knownSection(key) {
			return domain.Will{}, ValidationError{Field: "section", Msg: fmt.Sprintf("unknown section %s", key)}
		}
		keys = append(keys, key)
	}
	if len(keys) == 0 {
		return domain.Will{}, ValidationError{Field: "sections", Msg: "at least one section required"}
	}
	return e.mutateWill(ctx, id, userID, actorID, expectedVersion, events.WillUpdated, events.EventPayload{"sections": keys}, func(w *domain.Will) error {
		if err := ensureEditable(*w); err != nil {
			return err
		}
		next := w.Sections
		for key, raw := range updates {
			if err := applySection(&next, key, raw); err != nil {
				return err
			}
		}
		if err := validateSections(next); err != nil {
			return err
		}
		w.Sections = next
		if currentSection != "" {
			w.Progress.CurrentSection = currentSection
		}
		return nil
	})
}

// AddPerson appends to the executors or guardians list, assigning an id.
func (e Engine) AddPerson(ctx context.Context, id, userID, actorID, listKey string, p domain.Person) (domain.Will, error) {
	if err := validatePerson(p); err != nil {
		return domain.Will{}, err
	}
	p.ID = uuid.NewString()
	return e.mutateWill(ctx, id, userID, actorID, 0, events.WillUpdated, events.EventPayload{"person_added": listKey}, func(w *domain.Will) error {
		if err := ensureEditable(*w); err != nil {
			return err
		}
		list, err := personList(w, listKey)
		if err != nil {
			return err
		}
		*list = append(*list, p)
		return nil
	})
}

// UpdatePerson replaces a person entry in place. A missing id is an error,
// never an implicit append.
func (e Engine) UpdatePerson(ctx context.Context, id, userID, actorID, listKey string, p domain.Person) (domain.Will, error) {
	if p.ID == "" {
		return domain.Will{}, ValidationError{Field: "id", Msg: "required"}
	}
	if err := validatePerson(p); err != nil {
		return domain.Will{}, err
	}
	return e.mutateWill(ctx, id, userID, actorID, 0, events.WillUpdated, events.EventPayload{"person_updated": listKey}, func(w *domain.Will) error {
		if err := ensureEditable(*w); err != nil {
			return err
		}
		list, err := personList(w, listKey)
		if err != nil {
			return err
		}
		for i := range *list {
			if (*list)[i].ID == p.ID {
				(*list)[i] = p
				return nil
			}
		}
		return repo.ErrNotFound
	})
}

func (e Engine) RemovePerson(ctx context.Context, id, userID, actorID, listKey, personID string) (domain.Will, error) {
	return e.mutateWill(ctx, id, userID, actorID, 0, events.WillUpdated, events.EventPayload{"person_removed": listKey}, func(w *domain.Will) error {
		if err := ensureEditable(*w); err != nil {
			return err
		}
		list, err := personList(w, listKey)
		if err != nil {
			return err
		}
		for i := range *list {
			if (*list)[i].ID == personID {
				*list = append((*list)[:i], (*list)[i+1:]...)
				return nil
			}
		}
		return repo.ErrNotFound
	})
}

func personList(w *domain.Will, listKey string) (*[]domain.Person, error) {
	switch listKey {
	case domain.PersonTypeExecutors:
		return &w.Sections.Executors, nil
	case domain.PersonTypeGuardians:
		return &w.Sections.Guardians, nil
	}
	return nil, ValidationError{Field: "person_type", Msg: fmt.Sprintf("unknown person list %s", listKey)}
}

// AddAsset appends to the real or personal property list.
func (e Engine) AddAsset(ctx context.Context, id, userID, actorID, listKey string, a domain.Asset) (domain.Will, error) {
	if err := validateAsset(a); err != nil {
		return domain.Will{}, err
	}
	a.ID = uuid.NewString()
	return e.mutateWill(ctx, id, userID, actorID, 0, events.WillUpdated, events.EventPayload{"asset_added": listKey}, func(w *domain.Will) error {
		if err := ensureEditable(*w); err != nil {
			return err
		}
		list, err := assetList(w, listKey)
		if err != nil {
			return err
		}
		*list = append(*list, a)
		return nil
	})
}

func (e Engine) UpdateAsset(ctx context.Context, id, userID, actorID, listKey string, a domain.Asset) (domain.Will, error) {
	if a.ID == "" {
		return domain.Will{}, ValidationError{Field: "id", Msg: "required"}
	}
	if err := validateAsset(a); err != nil {
		return domain.Will{}, err
	}
	return e.mutateWill(ctx, id, userID, actorID, 0, events.WillUpdated, events.EventPayload{"asset_updated": listKey}, func(w *domain.Will) error {
		if err := ensureEditable(*w); err != nil {
			return err
		}
		list, err := assetList(w, listKey)
		if err != nil {
			return err
		}
		for i := range *list {
			if (*list)[i].ID == a.ID {
				(*list)[i] = a
				return nil
			}
		}
		return repo.ErrNotFound
	})
}

func (e Engine) RemoveAsset(ctx context.Context, id, userID, actorID, listKey, assetID string) (domain.Will, error) {
	return e.mutateWill(ctx, id, userID, actorID, 0, events.WillUpdated, events.EventPayload{"asset_removed": listKey}, func(w *domain.Will) error {
		if err := ensureEditable(*w); err != nil {
			return err
		}
		list, err := assetList(w, listKey)
		if err != nil {
			return err
		}
		for i := range *list {
			if (*list)[i].ID == assetID {
				*list = append((*list)[:i], (*list)[i+1:]...)
				return nil
			}
		}
		return repo.ErrNotFound
	})
}

func assetList(w *domain.Will, listKey string) (*[]domain.Asset, error) {
	switch listKey {
	case domain.AssetTypeRealProperty:
		return &w.Sections.RealProperty, nil
	case domain.AssetTypePersonalProperty:
		return &w.Sections.PersonalProperty, nil
	}
	return nil, ValidationError{Field: "asset_type", Msg: fmt.Sprintf("unknown asset list %s", listKey)}
}

// AddChatMessage appends to the assistant transcript. The timestamp is
// always assigned server-side.
func (e Engine) AddChatMessage(ctx context.Context, id, userID, actorID, role, content string) (domain.ChatMessage, error) {
	if role != "user" && role != "assistant" {
		return domain.ChatMessage{}, ValidationError{Field: "role", Msg: "must be user or assistant"}
	}
	if content == "" {
		return domain.ChatMessage{}, ValidationError{Field: "content", Msg: "required"}
	}
	m := domain.ChatMessage{
		ID:      uuid.NewString(),
		Role:    role,
		Content: content,
		TS:      e.now().UTC().Format(time.RFC3339),
	}
	err := e.Repo.RunTx(ctx, func(tx *sql.Tx) error {
		w, err := e.Repo.GetWillTx(ctx, tx, id, userID)
		if err != nil {
			return err
		}
		if err := e.Repo.InsertChatMessage(ctx, tx, w.ID, m); err != nil {
			return err
		}
		if err := e.touchWill(ctx, tx, w); err != nil {
			return err
		}
		return e.eventWriter().Append(ctx, tx, events.ChatAppended, w.ID, "chat_message", m.ID, actorID, events.EventPayload{"role": role})
	})
	if err != nil {
		return domain.ChatMessage{}, err
	}
	return m, nil
}

// AddPhoto records an uploaded photo reference. Photos are a premium
// feature.
func (e Engine) AddPhoto(ctx context.Context, id, userID, actorID string, p domain.Photo) (domain.Photo, error) {
	if p.URL == "" {
		return domain.Photo{}, ValidationError{Field: "url", Msg: "required"}
	}
	if e.Config.PremiumFeature("photos") {
		ok, err := e.Auth.ActiveSubscriber(ctx, userID, e.now())
		if err != nil {
			return domain.Photo{}, err
		}
		if !ok {
			return domain.Photo{}, auth.PremiumRequiredError{Feature: "photos"}
		}
	}
	p.ID = uuid.NewString()
	p.UploadedAt = e.now().UTC().Format(time.RFC3339)
	err := e.Repo.RunTx(ctx, func(tx *sql.Tx) error {
		w, err := e.Repo.GetWillTx(ctx, tx, id, userID)
		if err != nil {
			return err
		}
		if err := e.Repo.InsertPhoto(ctx, tx, w.ID, p); err != nil {
			return err
		}
		if err := e.touchWill(ctx, tx, w); err != nil {
			return err
		}
		return e.eventWriter().Append(ctx, tx, events.PhotoAdded, w.ID, "photo", p.ID, actorID, nil)
	})
	if err != nil {
		return domain.Photo{}, err
	}
	return p, nil
}

func (e Engine) RemovePhoto(ctx context.Context, id, userID, actorID, photoID string) error {
	return e.Repo.RunTx(ctx, func(tx *sql.Tx) error {
		w, err := e.Repo.GetWillTx(ctx, tx, id, userID)
		if err != nil {
			return err
		}
		if err := e.Repo.DeletePhoto(ctx, tx, w.ID, photoID); err != nil {
			return err
		}
		if err := e.touchWill(ctx, tx, w); err != nil {
			return err
		}
		return e.eventWriter().Append(ctx, tx, events.WillUpdated, w.ID, "photo", photoID, actorID, events.EventPayload{"photo_removed": true})
	})
}

// AttachDocument records a generated artifact reference produced by the PDF
// collaborator. The wishes PDF is a premium feature.
func (e Engine) AttachDocument(ctx context.Context, id, userID, actorID, kind string, ref domain.DocumentRef) (domain.Will, error) {
	if ref.URL == "" {
		return domain.Will{}, ValidationError{Field: "url", Msg: "required"}
	}
	switch kind {
	case domain.DocumentWillPDF, domain.DocumentWishesPDF, domain.DocumentExecutionCertificate:
	default:
		return domain.Will{}, ValidationError{Field: "kind", Msg: fmt.Sprintf("unknown document kind %s", kind)}
	}
	if kind == domain.DocumentWishesPDF && e.Config.PremiumFeature("wishes-pdf") {
		ok, err := e.Auth.ActiveSubscriber(ctx, userID, e.now())
		if err != nil {
			return domain.Will{}, err
		}
		if !ok {
			return domain.Will{}, auth.PremiumRequiredError{Feature: "wishes-pdf"}
		}
	}
	if ref.GeneratedAt == "" {
		ref.GeneratedAt = e.now().UTC().Format(time.RFC3339)
	}
	return e.mutateWill(ctx, id, userID, actorID, 0, events.DocumentAttached, events.EventPayload{"kind": kind}, func(w *domain.Will) error {
		switch kind {
		case domain.DocumentWillPDF:
			w.Documents.WillPDF = &ref
		case domain.DocumentWishesPDF:
			w.Documents.WishesPDF = &ref
		case domain.DocumentExecutionCertificate:
			w.Documents.ExecutionCertificate = &ref
		}
		return nil
	})
}

// ExecutionBlockers lists what still prevents execution. Empty means
// eligible.
func (e Engine) ExecutionBlockers(ctx context.Context, id, userID string) ([]string, error) {
	w, err := e.Repo.GetWill(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	return executionBlockers(w, e.now()), nil
}

func executionBlockers(w domain.Will, now time.Time) []string {
	var blockers []string
	if w.Status == domain.StatusExecuted {
		return []string{"will already executed"}
	}
	if w.Progress.PercentComplete < 100 {
		for _, key := range progress.Required {
			found := false
			for _, done := range w.Progress.CompletedSections {
				if done == key {
					found = true
					break
				}
			}
			if !found {
				blockers = append(blockers, fmt.Sprintf("section %s incomplete", key))
			}
		}
	}
	if w.Sections.Testator == nil {
		blockers = append(blockers, "testator missing")
	}
	if len(w.Sections.Executors) == 0 {
		blockers = append(blockers, "no executor appointed")
	}
	if w.Sections.HasMinorChildren(now) && len(w.Sections.Guardians) == 0 {
		blockers = append(blockers, "minor children without a guardian")
	}
	return blockers
}

// ExecuteWill performs the completed to executed transition. The predicate
// and the state's witness rule are checked first; on failure nothing is
// written, including the witness payload.
func (e Engine) ExecuteWill(ctx context.Context, id, userID, actorID string, wi domain.WitnessInfo) (domain.Will, error) {
	if wi.ExecutionDate == "" {
		return domain.Will{}, ValidationError{Field: "execution_date", Msg: "required"}
	}
	if _, err := time.Parse("2006-01-02", wi.ExecutionDate); err != nil {
		return domain.Will{}, ValidationError{Field: "execution_date", Msg: "must be YYYY-MM-DD"}
	}
	if wi.Location == "" {
		return domain.Will{}, ValidationError{Field: "location", Msg: "required"}
	}
	for i, witness := range wi.Witnesses {
		if witness.FirstName == "" || witness.LastName == "" {
			return domain.Will{}, ValidationError{Field: fmt.Sprintf("witnesses[%d]", i), Msg: "first and last name required"}
		}
	}
	return e.mutateWill(ctx, id, userID, actorID, 0, events.WillExecuted, events.EventPayload{"witnesses": len(wi.Witnesses)}, func(w *domain.Will) error {
		if !w.CanBeExecuted() {
			return PreconditionError{
				Reason:   "will is not eligible for execution",
				Blockers: executionBlockers(*w, e.now()),
			}
		}
		rule := e.Config.Rule(w.StateCompliance)
		if len(wi.Witnesses) < rule.MinWitnesses {
			return PreconditionError{Reason: fmt.Sprintf("state %s requires at least %d witnesses", w.StateCompliance, rule.MinWitnesses)}
		}
		if rule.RequireNotary && wi.Notary == nil {
			return PreconditionError{Reason: fmt.Sprintf("state %s requires notarization", w.StateCompliance)}
		}
		executedAt := e.now().UTC().Format(time.RFC3339)
		w.Status = domain.StatusExecuted
		w.WitnessInfo = &wi
		w.ExecutedAt = &executedAt
		return nil
	})
}

// DeleteWill removes a will and its dependent rows. Used by the explicit
// document-deletion action only.
func (e Engine) DeleteWill(ctx context.Context, id, userID, actorID string) error {
	return e.Repo.RunTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.DeleteWill(ctx, tx, id, userID); err != nil {
			return err
		}
		return e.eventWriter().Append(ctx, tx, events.WillDeleted, id, "will", id, actorID, nil)
	})
}
