package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/transfer-board-api/internal/models"
)

// ErrStatusMismatch is returned by conditional writes when the row exists but
// its status no longer equals the expected one.
var ErrStatusMismatch = errors.New("transfer status changed")

const transferSelect = `SELECT t.id, t.patient_name, t.patient_history_number, t.patient_room, t.destination_room,
       t.origin_sector_id, t.destination_sector_id, t.transfer_type_id, t.priority, t.status, t.observation,
       t.requester_id, t.transporter_id, t.transporter_name, t.requested_at, t.accepted_at, t.completed_at, t.updated_at,
       os.name AS origin_sector_name, ds.name AS destination_sector_name, tt.name AS transfer_type_name
FROM transfers t
LEFT JOIN sectors os ON os.id = t.origin_sector_id
LEFT JOIN sectors ds ON ds.id = t.destination_sector_id
LEFT JOIN transfer_types tt ON tt.id = t.transfer_type_id`

// TransferRepository persists transfers and performs the conditional status writes.
type TransferRepository struct {
	db *sqlx.DB
}

// NewTransferRepository constructs the repository.
func NewTransferRepository(db *sqlx.DB) *TransferRepository {
	return &TransferRepository{db: db}
}

// Create inserts a new transfer row.
func (r *TransferRepository) Create(ctx context.Context, transfer *models.Transfer) error {
	if transfer.ID == "" {
		transfer.ID = uuid.NewString()
	}
	if transfer.Status == "" {
		transfer.Status = models.TransferStatusPending
	}
	if transfer.Priority == "" {
		transfer.Priority = models.TransferPriorityMedium
	}
	if transfer.RequestedAt.IsZero() {
		transfer.RequestedAt = time.Now().UTC()
	}
	transfer.UpdatedAt = transfer.RequestedAt
	const query = `INSERT INTO transfers
	(id, patient_name, patient_history_number, patient_room, destination_room, origin_sector_id, destination_sector_id,
	 transfer_type_id, priority, status, observation, requester_id, transporter_id, transporter_name, requested_at,
	 accepted_at, completed_at, updated_at)
	VALUES (:id, :patient_name, :patient_history_number, :patient_room, :destination_room, :origin_sector_id, :destination_sector_id,
	 :transfer_type_id, :priority, :status, :observation, :requester_id, :transporter_id, :transporter_name, :requested_at,
	 :accepted_at, :completed_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, transfer); err != nil {
		return fmt.Errorf("create transfer: %w", err)
	}
	return nil
}

// GetByID fetches a transfer with its joined reference names.
func (r *TransferRepository) GetByID(ctx context.Context, id string) (*models.Transfer, error) {
	query := transferSelect + " WHERE t.id = $1"
	var transfer models.Transfer
	if err := r.db.GetContext(ctx, &transfer, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get transfer: %w", err)
	}
	return &transfer, nil
}

// GetStatus reads only the persisted status of a transfer.
func (r *TransferRepository) GetStatus(ctx context.Context, id string) (models.TransferStatus, error) {
	const query = `SELECT status FROM transfers WHERE id = $1`
	var status models.TransferStatus
	if err := r.db.GetContext(ctx, &status, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", err
		}
		return "", fmt.Errorf("get transfer status: %w", err)
	}
	return status, nil
}

// List returns a page of transfers matching the filter (latest first) and the total match count.
func (r *TransferRepository) List(ctx context.Context, filter models.TransferFilter) ([]models.Transfer, int, error) {
	where, args := buildTransferWhere(filter)

	var total int
	countQuery := "SELECT COUNT(*) FROM transfers t" + where
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count transfers: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	query := transferSelect + where + fmt.Sprintf(" ORDER BY t.requested_at DESC LIMIT %d OFFSET %d", limit, offset)

	transfers := make([]models.Transfer, 0)
	if err := r.db.SelectContext(ctx, &transfers, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list transfers: %w", err)
	}
	return transfers, total, nil
}

// ListAll returns every transfer matching the filter, latest first, ignoring pagination.
func (r *TransferRepository) ListAll(ctx context.Context, filter models.TransferFilter) ([]models.Transfer, error) {
	where, args := buildTransferWhere(filter)
	query := transferSelect + where + " ORDER BY t.requested_at DESC"

	transfers := make([]models.Transfer, 0)
	if err := r.db.SelectContext(ctx, &transfers, query, args...); err != nil {
		return nil, fmt.Errorf("list all transfers: %w", err)
	}
	return transfers, nil
}

// CountByStatus returns the number of transfers per status.
func (r *TransferRepository) CountByStatus(ctx context.Context) ([]models.TransferStatusCount, error) {
	const query = `SELECT status, COUNT(*) AS count FROM transfers GROUP BY status ORDER BY status`
	counts := make([]models.TransferStatusCount, 0, len(models.TransferStatuses))
	if err := r.db.SelectContext(ctx, &counts, query); err != nil {
		return nil, fmt.Errorf("count transfers by status: %w", err)
	}
	return counts, nil
}

// ConditionalUpdate writes the status together with its dependent fields only
// if the stored status still equals expected. When GuardObservation is set the
// stored observation must also equal ExpectedObservation. It returns
// sql.ErrNoRows when the row is gone and ErrStatusMismatch when another writer
// got there first.
func (r *TransferRepository) ConditionalUpdate(ctx context.Context, id string, expected models.TransferStatus, update models.TransferStatusUpdate) error {
	setParts := []string{
		"status = :status",
		"updated_at = :updated_at",
	}
	if update.AcceptedAt != nil {
		setParts = append(setParts, "accepted_at = :accepted_at")
	}
	if update.CompletedAt != nil {
		setParts = append(setParts, "completed_at = :completed_at")
	}
	if update.Observation != nil {
		setParts = append(setParts, "observation = :observation")
	}
	if update.TransporterID != nil {
		setParts = append(setParts, "transporter_id = :transporter_id")
	}
	if update.TransporterName != nil {
		setParts = append(setParts, "transporter_name = :transporter_name")
	}
	query := fmt.Sprintf("UPDATE transfers SET %s WHERE id = :id AND status = :expected_status", strings.Join(setParts, ", "))
	params := map[string]interface{}{
		"id":               id,
		"expected_status":  expected,
		"status":           update.Status,
		"updated_at":       time.Now().UTC(),
		"accepted_at":      update.AcceptedAt,
		"completed_at":     update.CompletedAt,
		"observation":      update.Observation,
		"transporter_id":   update.TransporterID,
		"transporter_name": update.TransporterName,
	}
	if update.GuardObservation {
		query += " AND observation IS NOT DISTINCT FROM :expected_observation"
		params["expected_observation"] = update.ExpectedObservation
	}
	result, err := r.db.NamedExecContext(ctx, query, params)
	if err != nil {
		return fmt.Errorf("update transfer status: %w", err)
	}
	return r.checkConditionalWrite(ctx, id, result)
}

// Update applies a field patch under the same status guard as ConditionalUpdate.
func (r *TransferRepository) Update(ctx context.Context, id string, expected models.TransferStatus, patch models.TransferPatch) error {
	setParts := []string{"updated_at = :updated_at"}
	params := map[string]interface{}{
		"id":              id,
		"expected_status": expected,
		"updated_at":      time.Now().UTC(),
	}
	add := func(column string, value interface{}) {
		setParts = append(setParts, fmt.Sprintf("%s = :%s", column, column))
		params[column] = value
	}
	if patch.PatientName != nil {
		add("patient_name", *patch.PatientName)
	}
	if patch.PatientHistoryNumber != nil {
		add("patient_history_number", *patch.PatientHistoryNumber)
	}
	if patch.PatientRoom != nil {
		add("patient_room", *patch.PatientRoom)
	}
	if patch.DestinationRoom != nil {
		add("destination_room", *patch.DestinationRoom)
	}
	if patch.OriginSectorID != nil {
		add("origin_sector_id", *patch.OriginSectorID)
	}
	if patch.DestinationSectorID != nil {
		add("destination_sector_id", *patch.DestinationSectorID)
	}
	if patch.TransferTypeID != nil {
		add("transfer_type_id", *patch.TransferTypeID)
	}
	if patch.Priority != nil {
		add("priority", *patch.Priority)
	}
	if patch.Observation != nil {
		add("observation", *patch.Observation)
	}

	query := fmt.Sprintf("UPDATE transfers SET %s WHERE id = :id AND status = :expected_status", strings.Join(setParts, ", "))
	result, err := r.db.NamedExecContext(ctx, query, params)
	if err != nil {
		return fmt.Errorf("update transfer: %w", err)
	}
	return r.checkConditionalWrite(ctx, id, result)
}

// Delete removes a transfer permanently.
func (r *TransferRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM transfers WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete transfer: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check transfer delete rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (r *TransferRepository) checkConditionalWrite(ctx context.Context, id string, result sql.Result) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check transfer update rows: %w", err)
	}
	if rows > 0 {
		return nil
	}
	if _, err := r.GetStatus(ctx, id); err != nil {
		return err
	}
	return ErrStatusMismatch
}

func buildTransferWhere(filter models.TransferFilter) (string, []interface{}) {
	args := make([]interface{}, 0, 4)
	conditions := make([]string, 0, 3)

	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, fmt.Sprintf("t.status IN (%s)", strings.Join(placeholders, ",")))
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		args = append(args, "%"+escapeLike(strings.ToLower(search))+"%")
		pos := len(args)
		conditions = append(conditions, fmt.Sprintf("(LOWER(t.patient_name) LIKE $%d OR LOWER(COALESCE(t.patient_history_number, '')) LIKE $%d)", pos, pos))
	}
	if filter.Date != nil {
		args = append(args, filter.Date.UTC().Format("2006-01-02"))
		conditions = append(conditions, fmt.Sprintf("(t.requested_at AT TIME ZONE 'UTC')::date = $%d", len(args)))
	}

	if len(conditions) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}

func escapeLike(raw string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(raw)
}
