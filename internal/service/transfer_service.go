package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/transfer-board-api/internal/dto"
	"github.com/noah-isme/transfer-board-api/internal/models"
	"github.com/noah-isme/transfer-board-api/internal/repository"
	appErrors "github.com/noah-isme/transfer-board-api/pkg/errors"
)

// Transition outcomes reported to the metrics recorder.
const (
	TransitionApplied   = "applied"
	TransitionIllegal   = "illegal"
	TransitionForbidden = "forbidden"
	TransitionConflict  = "conflict"
)

const (
	// DefaultCancellationLabel prefixes the reason appended to a cancelled transfer's observation.
	DefaultCancellationLabel = "CANCELLATION REASON: "
	// TransferCachePattern matches every cache entry derived from transfer rows.
	TransferCachePattern = "transfers:*"
	historyDateLayout    = "2006-01-02"
)

type transferStore interface {
	Create(ctx context.Context, transfer *models.Transfer) error
	GetByID(ctx context.Context, id string) (*models.Transfer, error)
	GetStatus(ctx context.Context, id string) (models.TransferStatus, error)
	List(ctx context.Context, filter models.TransferFilter) ([]models.Transfer, int, error)
	ListAll(ctx context.Context, filter models.TransferFilter) ([]models.Transfer, error)
	CountByStatus(ctx context.Context) ([]models.TransferStatusCount, error)
	ConditionalUpdate(ctx context.Context, id string, expected models.TransferStatus, update models.TransferStatusUpdate) error
	Update(ctx context.Context, id string, expected models.TransferStatus, patch models.TransferPatch) error
	Delete(ctx context.Context, id string) error
}

type referenceLookup interface {
	GetSector(ctx context.Context, id string) (*models.Sector, error)
	GetTransferType(ctx context.Context, id string) (*models.TransferType, error)
}

type changePublisher interface {
	Publish(ctx context.Context, event models.ChangeEvent) error
}

type transitionRecorder interface {
	RecordTransition(from, to models.TransferStatus, outcome string)
}

type cacheInvalidator interface {
	Invalidate(ctx context.Context, pattern string) error
}

type auditWriter interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// TransferServiceConfig bounds history page sizes and sets the cancellation label.
type TransferServiceConfig struct {
	HistoryPageSize    int
	HistoryMaxPageSize int
	CancelLabel        string
}

// TransferServiceOption configures optional collaborators.
type TransferServiceOption func(*TransferService)

// WithTransferPublisher broadcasts committed changes.
func WithTransferPublisher(publisher changePublisher) TransferServiceOption {
	return func(s *TransferService) {
		if publisher != nil {
			s.publisher = publisher
		}
	}
}

// WithTransitionRecorder counts transition outcomes.
func WithTransitionRecorder(recorder transitionRecorder) TransferServiceOption {
	return func(s *TransferService) {
		if recorder != nil {
			s.recorder = recorder
		}
	}
}

// WithTransferAudit records every committed mutation in the audit trail.
func WithTransferAudit(audit auditWriter) TransferServiceOption {
	return func(s *TransferService) {
		if audit != nil {
			s.audit = audit
		}
	}
}

// WithTransferCache drops derived cache entries after mutations.
func WithTransferCache(cache cacheInvalidator) TransferServiceOption {
	return func(s *TransferService) {
		if cache != nil {
			s.cache = cache
		}
	}
}

// WithTransferClock overrides the time source.
func WithTransferClock(now func() time.Time) TransferServiceOption {
	return func(s *TransferService) {
		if now != nil {
			s.now = now
		}
	}
}

// TransferService owns the transfer lifecycle: creation, edits, guarded status
// transitions, cancellation, deletion and the board listings.
type TransferService struct {
	repo      transferStore
	refs      referenceLookup
	validate  *validator.Validate
	logger    *zap.Logger
	config    TransferServiceConfig
	publisher changePublisher
	recorder  transitionRecorder
	audit     auditWriter
	cache     cacheInvalidator
	now       func() time.Time
}

// NewTransferService constructs the service with defaults.
func NewTransferService(repo transferStore, refs referenceLookup, validate *validator.Validate, logger *zap.Logger, cfg TransferServiceConfig, opts ...TransferServiceOption) *TransferService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.HistoryPageSize <= 0 {
		cfg.HistoryPageSize = 20
	}
	if cfg.HistoryMaxPageSize <= 0 {
		cfg.HistoryMaxPageSize = 200
	}
	if cfg.CancelLabel == "" {
		cfg.CancelLabel = DefaultCancellationLabel
	}
	svc := &TransferService{
		repo:     repo,
		refs:     refs,
		validate: validate,
		logger:   logger,
		config:   cfg,
		now:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// CreateTransfer inserts a new PENDING transfer on behalf of the session.
func (s *TransferService) CreateTransfer(ctx context.Context, session models.Session, req dto.CreateTransferRequest) (*models.Transfer, error) {
	if !IsAllowed(session.Role, OperationCreate, "") {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "role cannot create transfers")
	}
	if err := s.validate.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid transfer payload")
	}
	name := strings.TrimSpace(req.PatientName)
	if name == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "patient name is required")
	}
	if req.OriginSectorID == req.DestinationSectorID {
		return nil, appErrors.Clone(appErrors.ErrValidation, "origin and destination sectors must differ")
	}
	if err := s.checkReferences(ctx, &req.OriginSectorID, &req.DestinationSectorID, &req.TransferTypeID); err != nil {
		return nil, err
	}

	priority := req.Priority
	if priority == "" {
		priority = models.TransferPriorityMedium
	}
	now := s.now().UTC()
	transfer := &models.Transfer{
		PatientName:          name,
		PatientHistoryNumber: trimmedOrNil(req.PatientHistoryNumber),
		PatientRoom:          trimmedOrNil(req.PatientRoom),
		DestinationRoom:      trimmedOrNil(req.DestinationRoom),
		OriginSectorID:       req.OriginSectorID,
		DestinationSectorID:  req.DestinationSectorID,
		TransferTypeID:       req.TransferTypeID,
		Priority:             priority,
		Status:               models.TransferStatusPending,
		Observation:          trimmedOrNil(req.Observation),
		RequestedAt:          now,
	}
	if session.ActorID != "" {
		actor := session.ActorID
		transfer.RequesterID = &actor
	}
	if err := s.repo.Create(ctx, transfer); err != nil {
		return nil, mapStoreError(err, "failed to create transfer")
	}

	s.afterMutation(ctx, session, models.ChangeTypeInsert, transfer.ID, transfer.Status, models.AuditActionTransferCreate, transfer)
	return s.reload(ctx, transfer.ID, transfer), nil
}

// EditTransfer patches the descriptive fields of an open transfer.
func (s *TransferService) EditTransfer(ctx context.Context, session models.Session, id string, req dto.UpdateTransferRequest) (*models.Transfer, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid transfer payload")
	}
	patch := patchFromRequest(req)
	if patch.PatientName != nil && *patch.PatientName == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "patient name cannot be blank")
	}
	if patch.Empty() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "no fields to update")
	}

	current, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, mapStoreError(err, "failed to load transfer")
	}
	if !IsAllowed(session.Role, OperationEditFields, current.Status) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "role cannot edit transfers")
	}
	if current.Status.Terminal() {
		return nil, appErrors.Clone(appErrors.ErrConflict, "closed transfers cannot be edited")
	}

	origin, destination := current.OriginSectorID, current.DestinationSectorID
	if patch.OriginSectorID != nil {
		origin = *patch.OriginSectorID
	}
	if patch.DestinationSectorID != nil {
		destination = *patch.DestinationSectorID
	}
	if origin == destination {
		return nil, appErrors.Clone(appErrors.ErrValidation, "origin and destination sectors must differ")
	}
	if err := s.checkReferences(ctx, patch.OriginSectorID, patch.DestinationSectorID, patch.TransferTypeID); err != nil {
		return nil, err
	}

	if err := s.repo.Update(ctx, id, current.Status, patch); err != nil {
		if errors.Is(err, repository.ErrStatusMismatch) {
			return nil, appErrors.Clone(appErrors.ErrConcurrentModification, "transfer status changed while editing")
		}
		return nil, mapStoreError(err, "failed to update transfer")
	}

	s.afterMutation(ctx, session, models.ChangeTypeUpdate, id, current.Status, models.AuditActionTransferUpdate, patch)
	return s.reload(ctx, id, current), nil
}

// RequestTransition moves a transfer to the requested status. The write only
// commits if the stored status still equals the one read at the start.
func (s *TransferService) RequestTransition(ctx context.Context, session models.Session, id string, to models.TransferStatus) (*models.Transfer, error) {
	if !to.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown status %q", to))
	}
	if to == models.TransferStatusCancelled {
		return nil, appErrors.Clone(appErrors.ErrValidation, "cancellation requires a reason")
	}

	from, err := s.repo.GetStatus(ctx, id)
	if err != nil {
		return nil, mapStoreError(err, "failed to read transfer status")
	}
	if !ValidTransition(from, to) {
		s.recordTransition(from, to, TransitionIllegal)
		return nil, appErrors.Clone(appErrors.ErrIllegalTransition, fmt.Sprintf("cannot move transfer from %s to %s", from, to))
	}
	op, _ := transitionOperation(to)
	if !IsAllowed(session.Role, op, from) {
		s.recordTransition(from, to, TransitionForbidden)
		return nil, appErrors.Clone(appErrors.ErrForbidden, fmt.Sprintf("role cannot %s transfers", op))
	}

	now := s.now().UTC()
	update := models.TransferStatusUpdate{Status: to}
	switch to {
	case models.TransferStatusInProgress:
		update.AcceptedAt = &now
		if session.ActorID != "" {
			actor := session.ActorID
			update.TransporterID = &actor
		}
		if name := strings.TrimSpace(session.DisplayName); name != "" {
			update.TransporterName = &name
		}
	case models.TransferStatusCompleted:
		update.CompletedAt = &now
	}
	return s.applyTransition(ctx, session, id, from, update, models.AuditActionTransferTransition)
}

// CancelTransfer closes an open transfer, appending the reason to its observation.
func (s *TransferService) CancelTransfer(ctx context.Context, session models.Session, id, reason string) (*models.Transfer, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "cancellation reason is required")
	}

	current, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, mapStoreError(err, "failed to load transfer")
	}
	to := models.TransferStatusCancelled
	if !ValidTransition(current.Status, to) {
		s.recordTransition(current.Status, to, TransitionIllegal)
		return nil, appErrors.Clone(appErrors.ErrIllegalTransition, fmt.Sprintf("cannot cancel a %s transfer", current.Status))
	}
	if !IsAllowed(session.Role, OperationCancel, current.Status) {
		s.recordTransition(current.Status, to, TransitionForbidden)
		return nil, appErrors.Clone(appErrors.ErrForbidden, "role cannot cancel transfers")
	}

	observation := AppendCancellationReason(s.config.CancelLabel, current.Observation, reason)
	update := models.TransferStatusUpdate{
		Status:              to,
		Observation:         &observation,
		GuardObservation:    true,
		ExpectedObservation: current.Observation,
	}
	return s.applyTransition(ctx, session, id, current.Status, update, models.AuditActionTransferCancel)
}

// DeleteTransfer permanently removes a transfer.
func (s *TransferService) DeleteTransfer(ctx context.Context, session models.Session, id string) error {
	if !IsAllowed(session.Role, OperationDelete, "") {
		return appErrors.Clone(appErrors.ErrForbidden, "only admins can delete transfers")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return mapStoreError(err, "failed to delete transfer")
	}
	s.afterMutation(ctx, session, models.ChangeTypeDelete, id, "", models.AuditActionTransferDelete, nil)
	return nil
}

// GetTransfer returns a single transfer with its reference names.
func (s *TransferService) GetTransfer(ctx context.Context, session models.Session, id string) (*models.Transfer, error) {
	if !IsAllowed(session.Role, OperationViewDetails, "") {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "role cannot view transfers")
	}
	transfer, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, mapStoreError(err, "failed to load transfer")
	}
	return transfer, nil
}

// ListActive returns the live board: every non-terminal transfer, latest first, with per-status counters.
func (s *TransferService) ListActive(ctx context.Context, session models.Session) (*dto.ActiveBoardResponse, error) {
	if !IsAllowed(session.Role, OperationViewDetails, "") {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "role cannot view transfers")
	}
	transfers, err := s.repo.ListAll(ctx, models.TransferFilter{Statuses: models.ActiveTransferStatuses})
	if err != nil {
		return nil, mapStoreError(err, "failed to list active transfers")
	}
	counts, err := s.repo.CountByStatus(ctx)
	if err != nil {
		return nil, mapStoreError(err, "failed to count transfers")
	}
	return &dto.ActiveBoardResponse{Transfers: transfers, Counts: counts}, nil
}

// ListHistory returns a filtered, paginated view over all transfers. Admin only.
func (s *TransferService) ListHistory(ctx context.Context, session models.Session, query dto.TransferHistoryQuery) ([]models.Transfer, *models.Pagination, error) {
	if !IsAllowed(session.Role, OperationViewHistory, "") {
		return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "only admins can view transfer history")
	}
	filter, err := BuildTransferFilter(query.Search, query.Status, query.Date)
	if err != nil {
		return nil, nil, err
	}
	page := query.Page
	if page <= 0 {
		page = 1
	}
	size := query.PageSize
	if size <= 0 {
		size = s.config.HistoryPageSize
	}
	if size > s.config.HistoryMaxPageSize {
		size = s.config.HistoryMaxPageSize
	}
	filter.Limit = size
	filter.Offset = (page - 1) * size

	transfers, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, mapStoreError(err, "failed to list transfer history")
	}
	return transfers, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// BuildTransferFilter validates the history filter inputs. date uses YYYY-MM-DD.
func BuildTransferFilter(search string, status *models.TransferStatus, date string) (models.TransferFilter, error) {
	filter := models.TransferFilter{Search: strings.TrimSpace(search)}
	if status != nil && *status != "" {
		if !status.Valid() {
			return filter, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown status %q", *status))
		}
		filter.Statuses = []models.TransferStatus{*status}
	}
	if date = strings.TrimSpace(date); date != "" {
		day, err := time.Parse(historyDateLayout, date)
		if err != nil {
			return filter, appErrors.Clone(appErrors.ErrValidation, "date must use YYYY-MM-DD")
		}
		filter.Date = &day
	}
	return filter, nil
}

// AppendCancellationReason keeps the previous observation and adds a labeled
// reason block after a blank line.
func AppendCancellationReason(label string, previous *string, reason string) string {
	block := label + reason
	if previous == nil || strings.TrimSpace(*previous) == "" {
		return block
	}
	return *previous + "\n\n" + block
}

func (s *TransferService) applyTransition(ctx context.Context, session models.Session, id string, from models.TransferStatus, update models.TransferStatusUpdate, action string) (*models.Transfer, error) {
	if err := s.repo.ConditionalUpdate(ctx, id, from, update); err != nil {
		if errors.Is(err, repository.ErrStatusMismatch) {
			s.recordTransition(from, update.Status, TransitionConflict)
			return nil, appErrors.Clone(appErrors.ErrConcurrentModification, "transfer was modified by another session; reload and retry")
		}
		return nil, mapStoreError(err, "failed to update transfer status")
	}
	s.recordTransition(from, update.Status, TransitionApplied)

	s.afterMutation(ctx, session, models.ChangeTypeUpdate, id, update.Status, action, map[string]interface{}{
		"from": from,
		"to":   update.Status,
	})
	fallback := &models.Transfer{
		ID:              id,
		Status:          update.Status,
		AcceptedAt:      update.AcceptedAt,
		CompletedAt:     update.CompletedAt,
		Observation:     update.Observation,
		TransporterID:   update.TransporterID,
		TransporterName: update.TransporterName,
	}
	return s.reload(ctx, id, fallback), nil
}

// reload re-reads a committed row; the write already succeeded so a failed
// read falls back to what the caller knows.
func (s *TransferService) reload(ctx context.Context, id string, fallback *models.Transfer) *models.Transfer {
	transfer, err := s.repo.GetByID(ctx, id)
	if err != nil {
		s.logger.Warn("failed to reload transfer after write", zap.String("transfer_id", id), zap.Error(err))
		return fallback
	}
	return transfer
}

func (s *TransferService) afterMutation(ctx context.Context, session models.Session, change models.ChangeType, id string, status models.TransferStatus, action string, payload interface{}) {
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, TransferCachePattern); err != nil {
			s.logger.Warn("failed to invalidate transfer cache", zap.Error(err))
		}
	}
	if s.publisher != nil {
		event := models.ChangeEvent{
			Type:       change,
			TransferID: id,
			Status:     status,
			ActorRole:  session.Role,
			OccurredAt: s.now().UTC(),
		}
		if err := s.publisher.Publish(ctx, event); err != nil {
			s.logger.Warn("failed to publish transfer change", zap.String("transfer_id", id), zap.Error(err))
		}
	}
	if s.audit != nil {
		s.emitAudit(ctx, session, action, id, payload)
	}
}

func (s *TransferService) emitAudit(ctx context.Context, session models.Session, action, id string, payload interface{}) {
	var values []byte
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err == nil {
			values = encoded
		}
	}
	resourceID := id
	entry := &models.AuditLog{
		Role:       string(session.Role),
		Action:     action,
		Resource:   "transfer",
		ResourceID: &resourceID,
		NewValues:  values,
		CreatedAt:  s.now().UTC(),
	}
	if session.ActorID != "" {
		actor := session.ActorID
		entry.UserID = &actor
	}
	if err := s.audit.CreateAuditLog(ctx, entry); err != nil {
		s.logger.Warn("failed to write transfer audit log", zap.String("action", action), zap.Error(err))
	}
}

func (s *TransferService) recordTransition(from, to models.TransferStatus, outcome string) {
	if s.recorder != nil {
		s.recorder.RecordTransition(from, to, outcome)
	}
}

func (s *TransferService) checkReferences(ctx context.Context, origin, destination, transferType *string) error {
	for _, id := range []*string{origin, destination} {
		if id == nil {
			continue
		}
		if _, err := s.refs.GetSector(ctx, *id); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown sector %q", *id))
			}
			return mapStoreError(err, "failed to load sector")
		}
	}
	if transferType != nil {
		if _, err := s.refs.GetTransferType(ctx, *transferType); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown transfer type %q", *transferType))
			}
			return mapStoreError(err, "failed to load transfer type")
		}
	}
	return nil
}

func patchFromRequest(req dto.UpdateTransferRequest) models.TransferPatch {
	patch := models.TransferPatch{
		PatientHistoryNumber: req.PatientHistoryNumber,
		PatientRoom:          req.PatientRoom,
		DestinationRoom:      req.DestinationRoom,
		OriginSectorID:       req.OriginSectorID,
		DestinationSectorID:  req.DestinationSectorID,
		TransferTypeID:       req.TransferTypeID,
		Priority:             req.Priority,
		Observation:          req.Observation,
	}
	if req.PatientName != nil {
		name := strings.TrimSpace(*req.PatientName)
		patch.PatientName = &name
	}
	return patch
}

func trimmedOrNil(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

// mapStoreError turns repository failures into the transfer error taxonomy.
func mapStoreError(err error, message string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrLookup, "transfer not found")
	}
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, message)
}
