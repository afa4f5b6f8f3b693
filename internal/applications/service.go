package applications

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/brokerdesk/brokerdesk/internal/audit"
	"github.com/brokerdesk/brokerdesk/internal/authz"
	"github.com/brokerdesk/brokerdesk/internal/orgs"
	"github.com/brokerdesk/brokerdesk/internal/platform/httpx"
)

// RepositoryPort defines data access methods for applications.
type RepositoryPort interface {
	Create(ctx context.Context, app Application) (Application, error)
	Get(ctx context.Context, id uuid.UUID) (Application, error)
	Update(ctx context.Context, app Application) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status Status, at time.Time) error
	List(ctx context.Context, filter ListFilter) ([]Application, error)
}

// OrgLookup resolves organizations, used to scope listings by tenant kind.
type OrgLookup interface {
	Find(ctx context.Context, id int64) (orgs.Organization, error)
}

// Draft carries the caller-supplied fields of a new or updated application.
type Draft struct {
	Kind            Kind
	ApplicantName   string
	PropertyAddress string
	CoverageAmount  int64
	Premium         int64
	CarrierOrgIDs   []int64
	Notes           string
}

// Service handles application workflow logic.
type Service struct {
	repo     RepositoryPort
	orgs     OrgLookup
	engine   *authz.Engine
	recorder *audit.Recorder
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort, orgLookup OrgLookup, engine *authz.Engine, recorder *audit.Recorder) *Service {
	return &Service{repo: repo, orgs: orgLookup, engine: engine, recorder: recorder}
}

// Create opens a draft application owned by the acting broker.
func (s *Service) Create(ctx context.Context, actor *authz.Principal, draft Draft) (Application, error) {
	if !ValidKind(draft.Kind) {
		return Application{}, fmt.Errorf("%w: unknown kind %q", httpx.ErrValidation, draft.Kind)
	}
	if actor == nil || actor.OrgID == nil {
		return Application{}, fmt.Errorf("%w: actor has no organization", httpx.ErrForbidden)
	}
	if err := s.engine.Authorize(ctx, actor, "create", authz.TypeRef("application"), authz.Context{}); err != nil {
		return Application{}, err
	}
	now := time.Now().UTC()
	app := Application{
		ID:              uuid.New(),
		Kind:            draft.Kind,
		Status:          StatusDraft,
		ApplicantName:   draft.ApplicantName,
		PropertyAddress: draft.PropertyAddress,
		CoverageAmount:  draft.CoverageAmount,
		Premium:         draft.Premium,
		BrokerID:        actor.ID,
		AgencyOrgID:     *actor.OrgID,
		CarrierOrgIDs:   draft.CarrierOrgIDs,
		Notes:           draft.Notes,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	created, err := s.repo.Create(ctx, app)
	if err != nil {
		return Application{}, err
	}
	s.recorder.RecordCreate(ctx, created)
	return created, nil
}

// Get loads one application after an instance-level read check.
func (s *Service) Get(ctx context.Context, actor *authz.Principal, id uuid.UUID) (Application, error) {
	app, err := s.repo.Get(ctx, id)
	if err != nil {
		return Application{}, err
	}
	if err := s.engine.Authorize(ctx, actor, "read", app, authz.Context{}); err != nil {
		return Application{}, err
	}
	s.recorder.LogAccess(ctx, app.ResourceType(), app.ResourceID(), map[string]any{"number": app.Number})
	return app, nil
}

// List returns the applications visible to the actor. Agency actors see
// their agency's pipeline, carrier actors see applications they were
// invited to, system actors see whatever the filter asks for.
func (s *Service) List(ctx context.Context, actor *authz.Principal, filter ListFilter) ([]Application, error) {
	if actor != nil && !actor.IsSystem() {
		if actor.OrgID == nil {
			return nil, fmt.Errorf("%w: actor has no organization", httpx.ErrForbidden)
		}
		org, err := s.orgs.Find(ctx, *actor.OrgID)
		if err != nil {
			return nil, err
		}
		filter.AgencyOrgID = nil
		filter.CarrierOrgID = nil
		switch org.Kind {
		case orgs.KindCarrier:
			filter.CarrierOrgID = actor.OrgID
		default:
			filter.AgencyOrgID = actor.OrgID
		}
	}
	apps, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	filtered := filter.Status != nil || filter.Kind != nil || filter.BrokerID != nil
	s.recorder.LogListAccess(ctx, "application", len(apps), filtered)
	return apps, nil
}

// Update rewrites the mutable fields of an open application.
func (s *Service) Update(ctx context.Context, actor *authz.Principal, id uuid.UUID, draft Draft) (Application, error) {
	before, err := s.repo.Get(ctx, id)
	if err != nil {
		return Application{}, err
	}
	if err := s.engine.Authorize(ctx, actor, "update", before, authz.Context{}); err != nil {
		return Application{}, err
	}
	if before.Status == StatusApproved || before.Status == StatusRejected {
		return Application{}, fmt.Errorf("%w: application %s is closed", httpx.ErrValidation, before.Number)
	}
	after := before
	after.ApplicantName = draft.ApplicantName
	after.PropertyAddress = draft.PropertyAddress
	after.CoverageAmount = draft.CoverageAmount
	after.Premium = draft.Premium
	after.CarrierOrgIDs = draft.CarrierOrgIDs
	after.Notes = draft.Notes
	if err := s.repo.Update(ctx, after); err != nil {
		return Application{}, err
	}
	s.recorder.RecordUpdate(ctx, before, after)
	return after, nil
}

// Submit moves a draft into review.
func (s *Service) Submit(ctx context.Context, actor *authz.Principal, id uuid.UUID, note string) (Application, error) {
	return s.transition(ctx, actor, id, StatusSubmitted, "update", note)
}

// Approve closes a submitted application as accepted.
func (s *Service) Approve(ctx context.Context, actor *authz.Principal, id uuid.UUID, note string) (Application, error) {
	return s.transition(ctx, actor, id, StatusApproved, "approve", note)
}

// Reject closes a submitted application as declined.
func (s *Service) Reject(ctx context.Context, actor *authz.Principal, id uuid.UUID, note string) (Application, error) {
	return s.transition(ctx, actor, id, StatusRejected, "reject", note)
}

func (s *Service) transition(ctx context.Context, actor *authz.Principal, id uuid.UUID, next Status, action string, note string) (Application, error) {
	app, err := s.repo.Get(ctx, id)
	if err != nil {
		return Application{}, err
	}
	if err := s.engine.Authorize(ctx, actor, action, app, authz.Context{}); err != nil {
		return Application{}, err
	}
	if !app.CanTransition(next) {
		return Application{}, fmt.Errorf("%w: cannot move %s from %s to %s",
			httpx.ErrValidation, app.Number, app.Status, next)
	}
	now := time.Now().UTC()
	if err := s.repo.UpdateStatus(ctx, id, next, now); err != nil {
		return Application{}, err
	}
	from := app.Status
	app.Status = next
	switch next {
	case StatusSubmitted:
		app.SubmittedAt = &now
		s.recorder.LogSubmission(ctx, app, note)
	case StatusApproved:
		app.DecidedAt = &now
		s.recorder.LogApproval(ctx, app, note)
	case StatusRejected:
		app.DecidedAt = &now
		s.recorder.LogRejection(ctx, app, note)
	}
	s.recorder.LogStatusChange(ctx, app, string(from), string(next))
	return app, nil
}
