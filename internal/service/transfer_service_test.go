package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/transfer-board-api/internal/dto"
	"github.com/noah-isme/transfer-board-api/internal/models"
	"github.com/noah-isme/transfer-board-api/internal/repository"
	appErrors "github.com/noah-isme/transfer-board-api/pkg/errors"
)

type transferStoreStub struct {
	mu        sync.Mutex
	transfers map[string]*models.Transfer
	writes    int
	created   int
	lastList  models.TransferFilter
	readErr   error
	barrier   *sync.WaitGroup
	counts    []models.TransferStatusCount
	// beforeWrite runs under the lock ahead of each conditional write.
	beforeWrite func(t *models.Transfer)
}

func newTransferStoreStub(transfers ...models.Transfer) *transferStoreStub {
	stub := &transferStoreStub{transfers: make(map[string]*models.Transfer)}
	for i := range transfers {
		t := transfers[i]
		stub.transfers[t.ID] = &t
	}
	return stub
}

func (s *transferStoreStub) Create(ctx context.Context, transfer *models.Transfer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if transfer.ID == "" {
		transfer.ID = "t-new"
	}
	copy := *transfer
	s.transfers[transfer.ID] = &copy
	s.created++
	return nil
}

func (s *transferStoreStub) GetByID(ctx context.Context, id string) (*models.Transfer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readErr != nil {
		return nil, s.readErr
	}
	t, ok := s.transfers[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copy := *t
	return &copy, nil
}

func (s *transferStoreStub) GetStatus(ctx context.Context, id string) (models.TransferStatus, error) {
	s.mu.Lock()
	if s.readErr != nil {
		s.mu.Unlock()
		return "", s.readErr
	}
	t, ok := s.transfers[id]
	var status models.TransferStatus
	if ok {
		status = t.Status
	}
	barrier := s.barrier
	s.mu.Unlock()
	if !ok {
		return "", sql.ErrNoRows
	}
	if barrier != nil {
		barrier.Done()
		barrier.Wait()
	}
	return status, nil
}

func (s *transferStoreStub) List(ctx context.Context, filter models.TransferFilter) ([]models.Transfer, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastList = filter
	out := make([]models.Transfer, 0, len(s.transfers))
	for _, t := range s.transfers {
		out = append(out, *t)
	}
	return out, len(out), nil
}

func (s *transferStoreStub) ListAll(ctx context.Context, filter models.TransferFilter) ([]models.Transfer, error) {
	out, _, err := s.List(ctx, filter)
	return out, err
}

func (s *transferStoreStub) CountByStatus(ctx context.Context) ([]models.TransferStatusCount, error) {
	return s.counts, nil
}

func (s *transferStoreStub) ConditionalUpdate(ctx context.Context, id string, expected models.TransferStatus, update models.TransferStatusUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.transfers[id]
	if !ok {
		return sql.ErrNoRows
	}
	if s.beforeWrite != nil {
		s.beforeWrite(t)
	}
	if t.Status != expected {
		return repository.ErrStatusMismatch
	}
	if update.GuardObservation && !sameObservation(t.Observation, update.ExpectedObservation) {
		return repository.ErrStatusMismatch
	}
	t.Status = update.Status
	if update.AcceptedAt != nil {
		t.AcceptedAt = update.AcceptedAt
	}
	if update.CompletedAt != nil {
		t.CompletedAt = update.CompletedAt
	}
	if update.Observation != nil {
		t.Observation = update.Observation
	}
	if update.TransporterID != nil {
		t.TransporterID = update.TransporterID
	}
	if update.TransporterName != nil {
		t.TransporterName = update.TransporterName
	}
	s.writes++
	return nil
}

func sameObservation(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func (s *transferStoreStub) Update(ctx context.Context, id string, expected models.TransferStatus, patch models.TransferPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.transfers[id]
	if !ok {
		return sql.ErrNoRows
	}
	if t.Status != expected {
		return repository.ErrStatusMismatch
	}
	if patch.PatientName != nil {
		t.PatientName = *patch.PatientName
	}
	if patch.OriginSectorID != nil {
		t.OriginSectorID = *patch.OriginSectorID
	}
	if patch.DestinationSectorID != nil {
		t.DestinationSectorID = *patch.DestinationSectorID
	}
	if patch.Priority != nil {
		t.Priority = *patch.Priority
	}
	s.writes++
	return nil
}

func (s *transferStoreStub) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.transfers[id]; !ok {
		return sql.ErrNoRows
	}
	delete(s.transfers, id)
	s.writes++
	return nil
}

func (s *transferStoreStub) status(id string) models.TransferStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transfers[id].Status
}

type referenceStub struct{}

func (referenceStub) GetSector(ctx context.Context, id string) (*models.Sector, error) {
	if strings.HasPrefix(id, "sec-") {
		return &models.Sector{ID: id, Name: id}, nil
	}
	return nil, sql.ErrNoRows
}

func (referenceStub) GetTransferType(ctx context.Context, id string) (*models.TransferType, error) {
	if strings.HasPrefix(id, "type-") {
		return &models.TransferType{ID: id, Name: id}, nil
	}
	return nil, sql.ErrNoRows
}

type publisherStub struct {
	mu     sync.Mutex
	events []models.ChangeEvent
	err    error
}

func (p *publisherStub) Publish(ctx context.Context, event models.ChangeEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

type recorderStub struct {
	mu       sync.Mutex
	outcomes []string
}

func (r *recorderStub) RecordTransition(from, to models.TransferStatus, outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, outcome)
}

type invalidatorStub struct {
	patterns []string
}

func (i *invalidatorStub) Invalidate(ctx context.Context, pattern string) error {
	i.patterns = append(i.patterns, pattern)
	return nil
}

var (
	adminSession       = models.Session{ActorID: "admin-1", Role: models.RoleAdmin, DisplayName: "Ana"}
	requesterSession   = models.Session{ActorID: "req-1", Role: models.RoleRequesterSector, DisplayName: "Ward 3"}
	transporterSession = models.Session{ActorID: "tr-1", Role: models.RoleTransporter, DisplayName: "Luis"}
	imagingSession     = models.Session{ActorID: "img-1", Role: models.RoleImagingSector}
)

func pendingTransfer(id string) models.Transfer {
	return models.Transfer{
		ID:                  id,
		PatientName:         "Maria Garcia",
		OriginSectorID:      "sec-er",
		DestinationSectorID: "sec-img",
		TransferTypeID:      "type-bed",
		Priority:            models.TransferPriorityMedium,
		Status:              models.TransferStatusPending,
		RequestedAt:         time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC),
	}
}

func assertCode(t *testing.T, err error, expected *appErrors.Error) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, expected.Code, appErrors.FromError(err).Code)
}

func newTestTransferService(store *transferStoreStub, opts ...TransferServiceOption) *TransferService {
	fixed := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	opts = append([]TransferServiceOption{WithTransferClock(func() time.Time { return fixed })}, opts...)
	return NewTransferService(store, referenceStub{}, nil, nil, TransferServiceConfig{}, opts...)
}

func TestRequestTransitionAcceptSetsAcceptedAt(t *testing.T) {
	store := newTransferStoreStub(pendingTransfer("t-1"))
	publisher := &publisherStub{}
	recorder := &recorderStub{}
	cache := &invalidatorStub{}
	svc := newTestTransferService(store, WithTransferPublisher(publisher), WithTransitionRecorder(recorder), WithTransferCache(cache))

	transfer, err := svc.RequestTransition(context.Background(), transporterSession, "t-1", models.TransferStatusInProgress)
	require.NoError(t, err)
	require.Equal(t, models.TransferStatusInProgress, transfer.Status)
	require.NotNil(t, transfer.AcceptedAt)
	require.Nil(t, transfer.CompletedAt)
	require.Equal(t, "tr-1", *transfer.TransporterID)
	require.Equal(t, "Luis", *transfer.TransporterName)

	require.Len(t, publisher.events, 1)
	assert.Equal(t, models.ChangeTypeUpdate, publisher.events[0].Type)
	assert.Equal(t, models.TransferStatusInProgress, publisher.events[0].Status)
	assert.Equal(t, []string{TransitionApplied}, recorder.outcomes)
	assert.Equal(t, []string{TransferCachePattern}, cache.patterns)
}

func TestRequestTransitionCompleteSetsCompletedAt(t *testing.T) {
	accepted := time.Date(2026, 3, 14, 8, 10, 0, 0, time.UTC)
	transfer := pendingTransfer("t-1")
	transfer.Status = models.TransferStatusInProgress
	transfer.AcceptedAt = &accepted
	store := newTransferStoreStub(transfer)
	svc := newTestTransferService(store)

	updated, err := svc.RequestTransition(context.Background(), transporterSession, "t-1", models.TransferStatusCompleted)
	require.NoError(t, err)
	require.Equal(t, models.TransferStatusCompleted, updated.Status)
	require.Equal(t, accepted, *updated.AcceptedAt)
	require.NotNil(t, updated.CompletedAt)
}

func TestRequestTransitionPendingToCompletedIsIllegal(t *testing.T) {
	store := newTransferStoreStub(pendingTransfer("t-1"))
	recorder := &recorderStub{}
	svc := newTestTransferService(store, WithTransitionRecorder(recorder))

	_, err := svc.RequestTransition(context.Background(), transporterSession, "t-1", models.TransferStatusCompleted)
	assertCode(t, err, appErrors.ErrIllegalTransition)
	assert.True(t, appErrors.RequiresRefresh(err))
	assert.Equal(t, 0, store.writes)
	assert.Equal(t, models.TransferStatusPending, store.status("t-1"))
	assert.Equal(t, []string{TransitionIllegal}, recorder.outcomes)
}

func TestRequestTransitionIntoReservedStatusIsIllegal(t *testing.T) {
	store := newTransferStoreStub(pendingTransfer("t-1"))
	svc := newTestTransferService(store)

	_, err := svc.RequestTransition(context.Background(), adminSession, "t-1", models.TransferStatusInAdjudication)
	assertCode(t, err, appErrors.ErrIllegalTransition)
	assert.Equal(t, 0, store.writes)
}

func TestRequestTransitionForbiddenForNonTransporter(t *testing.T) {
	store := newTransferStoreStub(pendingTransfer("t-1"))
	svc := newTestTransferService(store)

	_, err := svc.RequestTransition(context.Background(), adminSession, "t-1", models.TransferStatusInProgress)
	assertCode(t, err, appErrors.ErrForbidden)
	assert.Equal(t, 0, store.writes)
}

func TestRequestTransitionRejectsCancelWithoutReason(t *testing.T) {
	store := newTransferStoreStub(pendingTransfer("t-1"))
	svc := newTestTransferService(store)

	_, err := svc.RequestTransition(context.Background(), adminSession, "t-1", models.TransferStatusCancelled)
	assertCode(t, err, appErrors.ErrValidation)

	_, err = svc.RequestTransition(context.Background(), adminSession, "t-1", models.TransferStatus("ARCHIVED"))
	assertCode(t, err, appErrors.ErrValidation)
	assert.Equal(t, 0, store.writes)
}

func TestRequestTransitionLookupFailures(t *testing.T) {
	store := newTransferStoreStub()
	svc := newTestTransferService(store)

	_, err := svc.RequestTransition(context.Background(), transporterSession, "missing", models.TransferStatusInProgress)
	assertCode(t, err, appErrors.ErrLookup)

	store.readErr = errors.New("connection refused")
	_, err = svc.RequestTransition(context.Background(), transporterSession, "missing", models.TransferStatusInProgress)
	assertCode(t, err, appErrors.ErrStoreUnavailable)
}

func TestConcurrentAcceptExactlyOneWins(t *testing.T) {
	store := newTransferStoreStub(pendingTransfer("t-1"))
	store.barrier = &sync.WaitGroup{}
	store.barrier.Add(2)
	recorder := &recorderStub{}
	svc := newTestTransferService(store, WithTransitionRecorder(recorder))

	sessions := []models.Session{
		transporterSession,
		{ActorID: "tr-2", Role: models.RoleTransporter, DisplayName: "Rosa"},
	}
	errs := make([]error, len(sessions))
	var wg sync.WaitGroup
	for i := range sessions {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.RequestTransition(context.Background(), sessions[i], "t-1", models.TransferStatusInProgress)
		}(i)
	}
	wg.Wait()

	var succeeded, conflicted int
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		if appErrors.FromError(err).Code == appErrors.ErrConcurrentModification.Code {
			conflicted++
			assert.True(t, appErrors.RequiresRefresh(err))
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, conflicted)
	assert.Equal(t, 1, store.writes)
	assert.Equal(t, models.TransferStatusInProgress, store.status("t-1"))
	assert.ElementsMatch(t, []string{TransitionApplied, TransitionConflict}, recorder.outcomes)
}

func TestCancelTransferAppendsReason(t *testing.T) {
	transfer := pendingTransfer("t-1")
	previous := "needs wheelchair"
	transfer.Observation = &previous
	store := newTransferStoreStub(transfer)
	svc := newTestTransferService(store)

	cancelled, err := svc.CancelTransfer(context.Background(), adminSession, "t-1", "  patient refused ")
	require.NoError(t, err)
	require.Equal(t, models.TransferStatusCancelled, cancelled.Status)
	require.Equal(t, "needs wheelchair\n\nCANCELLATION REASON: patient refused", *cancelled.Observation)
	require.Less(t, strings.Index(*cancelled.Observation, previous), strings.Index(*cancelled.Observation, "patient refused"))
}

func TestCancelTransferRejectsConcurrentObservationEdit(t *testing.T) {
	transfer := pendingTransfer("t-1")
	previous := "needs wheelchair"
	transfer.Observation = &previous
	store := newTransferStoreStub(transfer)
	edited := "needs wheelchair and oxygen"
	store.beforeWrite = func(t *models.Transfer) {
		t.Observation = &edited
	}
	recorder := &recorderStub{}
	svc := newTestTransferService(store, WithTransitionRecorder(recorder))

	_, err := svc.CancelTransfer(context.Background(), adminSession, "t-1", "patient refused")
	assertCode(t, err, appErrors.ErrConcurrentModification)
	assert.Equal(t, models.TransferStatusPending, store.status("t-1"))
	assert.Equal(t, edited, *store.transfers["t-1"].Observation)
	assert.Zero(t, store.writes)
	assert.Equal(t, []string{TransitionConflict}, recorder.outcomes)
}

func TestCancelTransferUsesConfiguredLabel(t *testing.T) {
	store := newTransferStoreStub(pendingTransfer("t-1"))
	svc := NewTransferService(store, referenceStub{}, nil, nil, TransferServiceConfig{CancelLabel: "MOTIVO: "})

	cancelled, err := svc.CancelTransfer(context.Background(), adminSession, "t-1", "duplicado")
	require.NoError(t, err)
	require.Equal(t, "MOTIVO: duplicado", *cancelled.Observation)
}

func TestCancelTransferWithoutPreviousObservation(t *testing.T) {
	transfer := pendingTransfer("t-1")
	transfer.Status = models.TransferStatusInProgress
	store := newTransferStoreStub(transfer)
	svc := newTestTransferService(store)

	cancelled, err := svc.CancelTransfer(context.Background(), requesterSession, "t-1", "duplicate request")
	require.NoError(t, err)
	require.Equal(t, "CANCELLATION REASON: duplicate request", *cancelled.Observation)
}

func TestCancelTransferEmptyReasonDoesNotWrite(t *testing.T) {
	store := newTransferStoreStub(pendingTransfer("t-1"))
	svc := newTestTransferService(store)

	_, err := svc.CancelTransfer(context.Background(), adminSession, "t-1", "   ")
	assertCode(t, err, appErrors.ErrValidation)
	assert.Equal(t, 0, store.writes)
	assert.Equal(t, models.TransferStatusPending, store.status("t-1"))
}

func TestCancelTransferTerminalAndForbidden(t *testing.T) {
	completed := pendingTransfer("t-done")
	completed.Status = models.TransferStatusCompleted
	store := newTransferStoreStub(pendingTransfer("t-1"), completed)
	svc := newTestTransferService(store)

	_, err := svc.CancelTransfer(context.Background(), adminSession, "t-done", "too late")
	assertCode(t, err, appErrors.ErrIllegalTransition)

	_, err = svc.CancelTransfer(context.Background(), transporterSession, "t-1", "not mine")
	assertCode(t, err, appErrors.ErrForbidden)

	_, err = svc.CancelTransfer(context.Background(), imagingSession, "t-1", "not mine")
	assertCode(t, err, appErrors.ErrForbidden)
	assert.Equal(t, 0, store.writes)
}

func TestCreateTransferDefaultsAndPublishes(t *testing.T) {
	store := newTransferStoreStub()
	publisher := &publisherStub{}
	svc := newTestTransferService(store, WithTransferPublisher(publisher))

	created, err := svc.CreateTransfer(context.Background(), requesterSession, dto.CreateTransferRequest{
		PatientName:         "  Maria Garcia ",
		OriginSectorID:      "sec-er",
		DestinationSectorID: "sec-img",
		TransferTypeID:      "type-bed",
	})
	require.NoError(t, err)
	require.Equal(t, "Maria Garcia", created.PatientName)
	require.Equal(t, models.TransferStatusPending, created.Status)
	require.Equal(t, models.TransferPriorityMedium, created.Priority)
	require.Equal(t, "req-1", *created.RequesterID)
	require.Nil(t, created.AcceptedAt)
	require.Len(t, publisher.events, 1)
	assert.Equal(t, models.ChangeTypeInsert, publisher.events[0].Type)
}

func TestCreateTransferSameSectorsRejected(t *testing.T) {
	store := newTransferStoreStub()
	svc := newTestTransferService(store)

	_, err := svc.CreateTransfer(context.Background(), imagingSession, dto.CreateTransferRequest{
		PatientName:         "Maria Garcia",
		OriginSectorID:      "sec-er",
		DestinationSectorID: "sec-er",
		TransferTypeID:      "type-bed",
	})
	assertCode(t, err, appErrors.ErrValidation)
	assert.Equal(t, 0, store.created)
}

func TestCreateTransferValidation(t *testing.T) {
	store := newTransferStoreStub()
	svc := newTestTransferService(store)

	_, err := svc.CreateTransfer(context.Background(), adminSession, dto.CreateTransferRequest{
		OriginSectorID:      "sec-er",
		DestinationSectorID: "sec-img",
		TransferTypeID:      "type-bed",
	})
	assertCode(t, err, appErrors.ErrValidation)

	_, err = svc.CreateTransfer(context.Background(), adminSession, dto.CreateTransferRequest{
		PatientName:         "Maria Garcia",
		OriginSectorID:      "ward-x",
		DestinationSectorID: "sec-img",
		TransferTypeID:      "type-bed",
	})
	assertCode(t, err, appErrors.ErrValidation)

	_, err = svc.CreateTransfer(context.Background(), transporterSession, dto.CreateTransferRequest{
		PatientName:         "Maria Garcia",
		OriginSectorID:      "sec-er",
		DestinationSectorID: "sec-img",
		TransferTypeID:      "type-bed",
	})
	assertCode(t, err, appErrors.ErrForbidden)
	assert.Equal(t, 0, store.created)
}

func TestEditTransferRules(t *testing.T) {
	closed := pendingTransfer("t-closed")
	closed.Status = models.TransferStatusCancelled
	store := newTransferStoreStub(pendingTransfer("t-1"), closed)
	svc := newTestTransferService(store)

	name := "Maria G. Garcia"
	updated, err := svc.EditTransfer(context.Background(), imagingSession, "t-1", dto.UpdateTransferRequest{PatientName: &name})
	require.NoError(t, err)
	require.Equal(t, name, updated.PatientName)

	_, err = svc.EditTransfer(context.Background(), imagingSession, "t-1", dto.UpdateTransferRequest{})
	assertCode(t, err, appErrors.ErrValidation)

	sameAsOrigin := "sec-er"
	_, err = svc.EditTransfer(context.Background(), imagingSession, "t-1", dto.UpdateTransferRequest{DestinationSectorID: &sameAsOrigin})
	assertCode(t, err, appErrors.ErrValidation)

	_, err = svc.EditTransfer(context.Background(), transporterSession, "t-1", dto.UpdateTransferRequest{PatientName: &name})
	assertCode(t, err, appErrors.ErrForbidden)

	_, err = svc.EditTransfer(context.Background(), adminSession, "t-closed", dto.UpdateTransferRequest{PatientName: &name})
	assertCode(t, err, appErrors.ErrConflict)

	_, err = svc.EditTransfer(context.Background(), adminSession, "missing", dto.UpdateTransferRequest{PatientName: &name})
	assertCode(t, err, appErrors.ErrLookup)
}

func TestDeleteTransferAdminOnly(t *testing.T) {
	store := newTransferStoreStub(pendingTransfer("t-1"))
	publisher := &publisherStub{}
	svc := newTestTransferService(store, WithTransferPublisher(publisher))

	err := svc.DeleteTransfer(context.Background(), requesterSession, "t-1")
	assertCode(t, err, appErrors.ErrForbidden)
	assert.Equal(t, 0, store.writes)

	require.NoError(t, svc.DeleteTransfer(context.Background(), adminSession, "t-1"))
	require.Len(t, publisher.events, 1)
	assert.Equal(t, models.ChangeTypeDelete, publisher.events[0].Type)

	err = svc.DeleteTransfer(context.Background(), adminSession, "t-1")
	assertCode(t, err, appErrors.ErrLookup)
}

func TestPublishFailureDoesNotFailMutation(t *testing.T) {
	store := newTransferStoreStub(pendingTransfer("t-1"))
	publisher := &publisherStub{err: errors.New("bus down")}
	svc := newTestTransferService(store, WithTransferPublisher(publisher))

	_, err := svc.RequestTransition(context.Background(), transporterSession, "t-1", models.TransferStatusInProgress)
	require.NoError(t, err)
	assert.Equal(t, models.TransferStatusInProgress, store.status("t-1"))
}

func TestListActiveUsesNonTerminalStatuses(t *testing.T) {
	store := newTransferStoreStub(pendingTransfer("t-1"))
	store.counts = []models.TransferStatusCount{{Status: models.TransferStatusPending, Count: 1}}
	svc := newTestTransferService(store)

	board, err := svc.ListActive(context.Background(), transporterSession)
	require.NoError(t, err)
	require.Len(t, board.Transfers, 1)
	require.Len(t, board.Counts, 1)
	assert.Equal(t, models.ActiveTransferStatuses, store.lastList.Statuses)
	assert.Zero(t, store.lastList.Limit)

	_, err = svc.ListActive(context.Background(), models.Session{Role: "guest"})
	assertCode(t, err, appErrors.ErrForbidden)
}

func TestListHistoryFiltersAndPaging(t *testing.T) {
	store := newTransferStoreStub(pendingTransfer("t-1"))
	svc := newTestTransferService(store)

	status := models.TransferStatusCompleted
	transfers, pagination, err := svc.ListHistory(context.Background(), adminSession, dto.TransferHistoryQuery{
		Search:   " garcia ",
		Status:   &status,
		Date:     "2026-03-14",
		Page:     3,
		PageSize: 500,
	})
	require.NoError(t, err)
	require.Len(t, transfers, 1)
	assert.Equal(t, 200, pagination.PageSize)
	assert.Equal(t, 3, pagination.Page)
	assert.Equal(t, 400, store.lastList.Offset)
	assert.Equal(t, "garcia", store.lastList.Search)
	assert.Equal(t, []models.TransferStatus{models.TransferStatusCompleted}, store.lastList.Statuses)
	require.NotNil(t, store.lastList.Date)
	assert.Equal(t, "2026-03-14", store.lastList.Date.Format("2006-01-02"))

	_, _, err = svc.ListHistory(context.Background(), requesterSession, dto.TransferHistoryQuery{})
	assertCode(t, err, appErrors.ErrForbidden)

	_, _, err = svc.ListHistory(context.Background(), adminSession, dto.TransferHistoryQuery{Date: "14/03/2026"})
	assertCode(t, err, appErrors.ErrValidation)
}

func TestAppendCancellationReason(t *testing.T) {
	empty := ""
	previous := "stretcher"
	assert.Equal(t, "CANCELLATION REASON: x", AppendCancellationReason(DefaultCancellationLabel, nil, "x"))
	assert.Equal(t, "CANCELLATION REASON: x", AppendCancellationReason(DefaultCancellationLabel, &empty, "x"))
	assert.Equal(t, "stretcher\n\nREASON: x", AppendCancellationReason("REASON: ", &previous, "x"))
}
