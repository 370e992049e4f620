// Package editor holds the client-side edit session for a product and its
// assessment tree. Structural changes save immediately; text edits are
// batched until a manual save.
package editor

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/exgen-nl/exgen-api/pkg/dto"
	"github.com/exgen-nl/exgen-api/pkg/models"
)

// SaveStatus is the lifecycle tag of one save channel.
type SaveStatus string

const (
	StatusIdle   SaveStatus = "idle"
	StatusDirty  SaveStatus = "dirty"
	StatusSaving SaveStatus = "saving"
	StatusSaved  SaveStatus = "saved"
	StatusError  SaveStatus = "error"
)

// SaveState is a tagged save status; Reason is set only for StatusError.
type SaveState struct {
	Status SaveStatus
	Reason string
}

func (s SaveState) unsaved() bool {
	return s.Status == StatusDirty || s.Status == StatusSaving || s.Status == StatusError
}

// Text edits shorter than this do not flip the dirty flag; it filters out
// accidental keystrokes in an empty field.
const dirtyTextThreshold = 3

type productAPI interface {
	UpdateProduct(ctx context.Context, id string, req dto.UpdateProductRequest) (*models.ExamProduct, error)
	CreateVersion(ctx context.Context, productID string, req dto.CreateVersionRequest) (*dto.DuplicationSummary, error)
}

type assessmentAPI interface {
	AddOnderdeel(ctx context.Context, versionID string, req dto.CreateOnderdeelRequest) (*models.AssessmentOnderdeel, error)
	RenameOnderdeel(ctx context.Context, id string, req dto.UpdateOnderdeelRequest) error
	RemoveOnderdeel(ctx context.Context, id string) error
	AddCriteria(ctx context.Context, onderdeelID string, req dto.CreateCriteriaRequest) (*models.AssessmentCriteria, error)
	UpdateCriteria(ctx context.Context, id string, req dto.UpdateCriteriaRequest) error
	RemoveCriteria(ctx context.Context, id string) error
	UpdateLevel(ctx context.Context, criteriaID, levelID string, req dto.UpdateLevelRequest) error
	ChangeRubricLevels(ctx context.Context, id string, req dto.ChangeRubricLevelsRequest) (*models.Version, error)
	DeleteDocument(ctx context.Context, id string) error
}

// API is the server surface the session needs; *client.Client satisfies it.
type API interface {
	productAPI
	assessmentAPI
}

type levelKey struct {
	CriteriaID string
	LevelID    string
}

// Session is a single-user edit session for one product version. Product
// fields and the assessment tree save independently.
type Session struct {
	api   API
	saver *Saver

	mu        sync.Mutex
	product   models.ExamProduct
	version   models.Version
	tree      []models.AssessmentOnderdeel
	documents []models.Document

	productState    SaveState
	assessmentState SaveState

	dirtyCriteria map[string]string
	dirtyLevels   map[levelKey]string
}

// NewSession starts an edit session from server state.
func NewSession(api API, saver *Saver, product models.ExamProduct, version models.Version) *Session {
	s := &Session{
		api:             api,
		saver:           saver,
		product:         product,
		version:         version,
		tree:            version.Onderdelen,
		documents:       version.Documents,
		productState:    SaveState{Status: StatusIdle},
		assessmentState: SaveState{Status: StatusIdle},
		dirtyCriteria:   make(map[string]string),
		dirtyLevels:     make(map[levelKey]string),
	}
	return s
}

// ProductState returns the product-fields save channel.
func (s *Session) ProductState() SaveState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.productState
}

// AssessmentState returns the assessment-tree save channel.
func (s *Session) AssessmentState() SaveState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.assessmentState
}

// HasUnsavedChanges reports whether either channel holds unsaved work.
func (s *Session) HasUnsavedChanges() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.productState.unsaved() || s.assessmentState.unsaved()
}

// Tree returns the current (optimistic) assessment tree.
func (s *Session) Tree() []models.AssessmentOnderdeel {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tree
}

// EditProduct replaces the product draft fields and marks the channel dirty.
func (s *Session) EditProduct(fields dto.UpdateProductRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.product.Code = fields.Code
	s.product.Title = fields.Title
	s.product.Description = fields.Description
	s.product.Credits = fields.Credits
	s.product.Cohort = fields.Cohort
	s.productState = SaveState{Status: StatusDirty}
}

// SaveProduct pushes the product draft to the server.
func (s *Session) SaveProduct(ctx context.Context) error {
	s.mu.Lock()
	req := dto.UpdateProductRequest{
		Code:        s.product.Code,
		Title:       s.product.Title,
		Description: s.product.Description,
		Credits:     s.product.Credits,
		Cohort:      s.product.Cohort,
	}
	id := s.product.ID
	s.productState = SaveState{Status: StatusSaving}
	s.mu.Unlock()

	updated, err := s.api.UpdateProduct(ctx, id, req)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.productState = SaveState{Status: StatusError, Reason: err.Error()}
		return err
	}
	s.product = *updated
	s.productState = SaveState{Status: StatusSaved}
	return nil
}

// EditCriteriaText applies a text edit locally. The dirty flag flips once the
// trimmed text reaches three characters.
func (s *Session) EditCriteriaText(criteriaID, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applyCriteriaText(criteriaID, text)
	s.dirtyCriteria[criteriaID] = text
	if len(strings.TrimSpace(text)) >= dirtyTextThreshold {
		s.assessmentState = SaveState{Status: StatusDirty}
	}
}

// EditLevelValue applies a rubric level edit locally and marks the tree dirty.
func (s *Session) EditLevelValue(criteriaID, levelID, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applyLevelValue(criteriaID, levelID, value)
	s.dirtyLevels[levelKey{CriteriaID: criteriaID, LevelID: levelID}] = value
	if len(strings.TrimSpace(value)) >= dirtyTextThreshold {
		s.assessmentState = SaveState{Status: StatusDirty}
	}
}

// AddOnderdeel inserts a component optimistically under a temporary ID, then
// saves immediately. The temporary ID is swapped for the server one.
func (s *Session) AddOnderdeel(ctx context.Context, name string) error {
	tempID := models.NewTemporaryID()
	s.mu.Lock()
	s.tree = append(s.tree, models.AssessmentOnderdeel{
		ID:        tempID,
		VersionID: s.version.ID,
		Onderdeel: name,
		Position:  len(s.tree) + 1,
	})
	versionID := s.version.ID
	s.assessmentState = SaveState{Status: StatusSaving}
	s.mu.Unlock()

	var created *models.AssessmentOnderdeel
	err := s.saveNow(ctx, func(ctx context.Context) error {
		var err error
		created, err = s.api.AddOnderdeel(ctx, versionID, dto.CreateOnderdeelRequest{Onderdeel: name})
		return err
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.removeOnderdeelLocal(tempID)
		s.assessmentState = SaveState{Status: StatusError, Reason: err.Error()}
		return err
	}
	for i := range s.tree {
		if s.tree[i].ID == tempID {
			s.tree[i].ID = created.ID
			s.tree[i].Position = created.Position
		}
	}
	s.assessmentState = SaveState{Status: StatusSaved}
	return nil
}

// RemoveOnderdeel deletes a component optimistically, then saves. Components
// that only exist locally are dropped without a server call.
func (s *Session) RemoveOnderdeel(ctx context.Context, id string) error {
	s.mu.Lock()
	removed := s.removeOnderdeelLocal(id)
	s.mu.Unlock()
	if !removed {
		return nil
	}
	if models.IsTemporaryID(id) {
		return nil
	}

	s.setAssessmentState(SaveState{Status: StatusSaving})
	if err := s.saveNow(ctx, func(ctx context.Context) error {
		return s.api.RemoveOnderdeel(ctx, id)
	}); err != nil {
		s.setAssessmentState(SaveState{Status: StatusError, Reason: err.Error()})
		return err
	}
	s.setAssessmentState(SaveState{Status: StatusSaved})
	return nil
}

// AddCriteria inserts a criterion optimistically, then saves immediately.
func (s *Session) AddCriteria(ctx context.Context, onderdeelID, text string) error {
	tempID := models.NewTemporaryID()
	s.mu.Lock()
	for i := range s.tree {
		if s.tree[i].ID == onderdeelID {
			s.tree[i].Criteria = append(s.tree[i].Criteria, models.AssessmentCriteria{
				ID:          tempID,
				OnderdeelID: onderdeelID,
				Criteria:    text,
				Position:    len(s.tree[i].Criteria) + 1,
			})
		}
	}
	s.assessmentState = SaveState{Status: StatusSaving}
	s.mu.Unlock()

	var created *models.AssessmentCriteria
	err := s.saveNow(ctx, func(ctx context.Context) error {
		var err error
		created, err = s.api.AddCriteria(ctx, onderdeelID, dto.CreateCriteriaRequest{Criteria: text})
		return err
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.removeCriteriaLocal(tempID)
		s.assessmentState = SaveState{Status: StatusError, Reason: err.Error()}
		return err
	}
	for i := range s.tree {
		for j := range s.tree[i].Criteria {
			if s.tree[i].Criteria[j].ID == tempID {
				s.tree[i].Criteria[j] = *created
			}
		}
	}
	s.assessmentState = SaveState{Status: StatusSaved}
	return nil
}

// RemoveCriteria deletes a criterion optimistically, then saves.
func (s *Session) RemoveCriteria(ctx context.Context, id string) error {
	s.mu.Lock()
	removed := s.removeCriteriaLocal(id)
	delete(s.dirtyCriteria, id)
	s.mu.Unlock()
	if !removed || models.IsTemporaryID(id) {
		return nil
	}

	s.setAssessmentState(SaveState{Status: StatusSaving})
	if err := s.saveNow(ctx, func(ctx context.Context) error {
		return s.api.RemoveCriteria(ctx, id)
	}); err != nil {
		s.setAssessmentState(SaveState{Status: StatusError, Reason: err.Error()})
		return err
	}
	s.setAssessmentState(SaveState{Status: StatusSaved})
	return nil
}

// ChangeRubricLevels applies a level-count change through the server, then
// replaces the local tree with the returned version.
func (s *Session) ChangeRubricLevels(ctx context.Context, count int, confirm bool) error {
	s.mu.Lock()
	versionID := s.version.ID
	s.assessmentState = SaveState{Status: StatusSaving}
	s.mu.Unlock()

	var version *models.Version
	err := s.saveNow(ctx, func(ctx context.Context) error {
		var err error
		version, err = s.api.ChangeRubricLevels(ctx, versionID, dto.ChangeRubricLevelsRequest{RubricLevels: count, Confirm: confirm})
		return err
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.assessmentState = SaveState{Status: StatusError, Reason: err.Error()}
		return err
	}
	s.version = *version
	s.tree = version.Onderdelen
	s.dirtyCriteria = make(map[string]string)
	s.dirtyLevels = make(map[levelKey]string)
	s.assessmentState = SaveState{Status: StatusSaved}
	return nil
}

// DeleteDocument removes a document optimistically, then saves immediately.
func (s *Session) DeleteDocument(ctx context.Context, id string) error {
	s.mu.Lock()
	kept := s.documents[:0]
	for _, doc := range s.documents {
		if doc.ID != id {
			kept = append(kept, doc)
		}
	}
	s.documents = kept
	s.assessmentState = SaveState{Status: StatusSaving}
	s.mu.Unlock()

	if err := s.saveNow(ctx, func(ctx context.Context) error {
		return s.api.DeleteDocument(ctx, id)
	}); err != nil {
		s.setAssessmentState(SaveState{Status: StatusError, Reason: err.Error()})
		return err
	}
	s.setAssessmentState(SaveState{Status: StatusSaved})
	return nil
}

// SaveAssessment flushes batched text edits through the per-version save
// queue. Temporary IDs are skipped; their content was sent on creation.
func (s *Session) SaveAssessment(ctx context.Context) error {
	s.mu.Lock()
	versionID := s.version.ID
	criteria := make(map[string]string, len(s.dirtyCriteria))
	for id, text := range s.dirtyCriteria {
		if !models.IsTemporaryID(id) {
			criteria[id] = text
		}
	}
	levels := make(map[levelKey]string, len(s.dirtyLevels))
	for key, value := range s.dirtyLevels {
		if !models.IsTemporaryID(key.CriteriaID) && !models.IsTemporaryID(key.LevelID) {
			levels[key] = value
		}
	}
	s.assessmentState = SaveState{Status: StatusSaving}
	s.mu.Unlock()

	err := <-s.saver.Enqueue(ctx, versionID, func(ctx context.Context) error {
		for id, text := range criteria {
			if err := s.api.UpdateCriteria(ctx, id, dto.UpdateCriteriaRequest{Criteria: text}); err != nil {
				return err
			}
		}
		for key, value := range levels {
			if err := s.api.UpdateLevel(ctx, key.CriteriaID, key.LevelID, dto.UpdateLevelRequest{Value: value}); err != nil {
				return err
			}
		}
		return nil
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.assessmentState = SaveState{Status: StatusError, Reason: err.Error()}
		return err
	}
	s.dirtyCriteria = make(map[string]string)
	s.dirtyLevels = make(map[levelKey]string)
	s.assessmentState = SaveState{Status: StatusSaved}
	return nil
}

// DuplicateVersion creates a new version copying the current one and returns
// the server's per-step summary.
func (s *Session) DuplicateVersion(ctx context.Context, versionLabel, releaseDate string) (*dto.DuplicationSummary, error) {
	s.mu.Lock()
	productID := s.product.ID
	s.mu.Unlock()
	return s.api.CreateVersion(ctx, productID, dto.CreateVersionRequest{
		Version:         versionLabel,
		ReleaseDate:     releaseDate,
		DuplicateLatest: true,
	})
}

// ValidationSummary reports the empty-field scan of the session.
type ValidationSummary struct {
	Total            int
	Invalid          int
	FirstInvalidPath string
}

// Validate scans product fields and the assessment tree. A field is invalid
// iff its trimmed value is empty.
func (s *Session) Validate() ValidationSummary {
	s.mu.Lock()
	defer s.mu.Unlock()

	var summary ValidationSummary
	check := func(path, value string) {
		summary.Total++
		if strings.TrimSpace(value) == "" {
			summary.Invalid++
			if summary.FirstInvalidPath == "" {
				summary.FirstInvalidPath = path
			}
		}
	}

	check("product.code", s.product.Code)
	check("product.title", s.product.Title)
	check("product.description", s.product.Description)
	for i, ond := range s.tree {
		check(fmt.Sprintf("onderdelen[%d].onderdeel", i), ond.Onderdeel)
		for j, crit := range ond.Criteria {
			check(fmt.Sprintf("onderdelen[%d].criteria[%d].criteria", i, j), crit.Criteria)
		}
	}
	return summary
}

// saveNow runs an immediate structural save through the per-version queue so
// it lands FIFO behind any manual save already in flight. No retries; the
// caller rolls back its optimistic change on error.
func (s *Session) saveNow(ctx context.Context, fn SaveFunc) error {
	s.mu.Lock()
	versionID := s.version.ID
	s.mu.Unlock()
	return <-s.saver.EnqueueImmediate(ctx, versionID, fn)
}

func (s *Session) setAssessmentState(state SaveState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assessmentState = state
}

func (s *Session) applyCriteriaText(criteriaID, text string) {
	for i := range s.tree {
		for j := range s.tree[i].Criteria {
			if s.tree[i].Criteria[j].ID == criteriaID {
				s.tree[i].Criteria[j].Criteria = text
			}
		}
	}
}

func (s *Session) applyLevelValue(criteriaID, levelID, value string) {
	for i := range s.tree {
		for j := range s.tree[i].Criteria {
			if s.tree[i].Criteria[j].ID != criteriaID {
				continue
			}
			for k := range s.tree[i].Criteria[j].Levels {
				if s.tree[i].Criteria[j].Levels[k].ID == levelID {
					s.tree[i].Criteria[j].Levels[k].Value = value
				}
			}
		}
	}
}

func (s *Session) removeOnderdeelLocal(id string) bool {
	for i := range s.tree {
		if s.tree[i].ID == id {
			s.tree = append(s.tree[:i], s.tree[i+1:]...)
			return true
		}
	}
	return false
}

func (s *Session) removeCriteriaLocal(id string) bool {
	for i := range s.tree {
		for j := range s.tree[i].Criteria {
			if s.tree[i].Criteria[j].ID == id {
				s.tree[i].Criteria = append(s.tree[i].Criteria[:j], s.tree[i].Criteria[j+1:]...)
				return true
			}
		}
	}
	return false
}
