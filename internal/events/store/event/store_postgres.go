package event

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"esocial/internal/events/models"
	id "esocial/pkg/domain"
	"esocial/pkg/platform/sentinel"
	txcontext "esocial/pkg/platform/tx"
)

const eventColumns = `id, employer_id, event_type, payload, status, protocol, receipt_number,
	submitted_at, processed_at, cancelled_at, cancel_reason, attempts, error_details,
	created_at, updated_at, version`

// PostgresStore persists events in the compliance_events table. Statements
// join the transaction carried by ctx when there is one.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Save(ctx context.Context, event *models.ComplianceEvent) error {
	details, err := json.Marshal(nonNilDetails(event.ErrorDetails))
	if err != nil {
		return fmt.Errorf("marshal error details: %w", err)
	}
	if event.Version == 0 {
		return s.insert(ctx, event, details)
	}
	return s.update(ctx, event, details)
}

func (s *PostgresStore) insert(ctx context.Context, event *models.ComplianceEvent, details []byte) error {
	query := `
		INSERT INTO compliance_events (` + eventColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, 1)
		ON CONFLICT (id) DO NOTHING
	`
	res, err := txcontext.ExecutorFrom(ctx, s.db).ExecContext(ctx, query,
		event.ID.String(),
		event.EmployerID.String(),
		string(event.Type),
		string(event.Payload),
		string(event.Status),
		event.Protocol,
		event.ReceiptNumber,
		nullTime(event.SubmittedAt),
		nullTime(event.ProcessedAt),
		nullTime(event.CancelledAt),
		event.CancelReason,
		event.Attempts,
		string(details),
		event.CreatedAt,
		event.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert compliance event: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("insert compliance event: %w", err)
	} else if n == 0 {
		return sentinel.ErrConflict
	}
	event.Version = 1
	return nil
}

func (s *PostgresStore) update(ctx context.Context, event *models.ComplianceEvent, details []byte) error {
	query := `
		UPDATE compliance_events SET
			payload = $2, status = $3, protocol = $4, receipt_number = $5,
			submitted_at = $6, processed_at = $7, cancelled_at = $8, cancel_reason = $9,
			attempts = $10, error_details = $11, updated_at = $12, version = version + 1
		WHERE id = $1 AND version = $13
	`
	exec := txcontext.ExecutorFrom(ctx, s.db)
	res, err := exec.ExecContext(ctx, query,
		event.ID.String(),
		string(event.Payload),
		string(event.Status),
		event.Protocol,
		event.ReceiptNumber,
		nullTime(event.SubmittedAt),
		nullTime(event.ProcessedAt),
		nullTime(event.CancelledAt),
		event.CancelReason,
		event.Attempts,
		string(details),
		event.UpdatedAt,
		event.Version,
	)
	if err != nil {
		return fmt.Errorf("update compliance event: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update compliance event: %w", err)
	}
	if n == 0 {
		var exists bool
		if err := exec.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM compliance_events WHERE id = $1)`, event.ID.String(),
		).Scan(&exists); err != nil {
			return fmt.Errorf("check compliance event: %w", err)
		}
		if !exists {
			return sentinel.ErrNotFound
		}
		return sentinel.ErrConflict
	}
	event.Version++
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, eventID id.EventID) (*models.ComplianceEvent, error) {
	query := `SELECT ` + eventColumns + ` FROM compliance_events WHERE id = $1`
	row := txcontext.ExecutorFrom(ctx, s.db).QueryRowContext(ctx, query, eventID.String())
	event, err := scanEvent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find compliance event: %w", err)
	}
	return event, nil
}

// ListBy returns matching events oldest first.
func (s *PostgresStore) ListBy(ctx context.Context, filter models.ListFilter) ([]*models.ComplianceEvent, error) {
	filter = filter.WithDefaults()
	where, args := buildWhere(filter)
	args = append(args, filter.Limit, filter.Offset)
	query := `SELECT ` + eventColumns + ` FROM compliance_events` + where +
		` ORDER BY created_at, id LIMIT $` + strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))

	rows, err := txcontext.ExecutorFrom(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list compliance events: %w", err)
	}
	defer rows.Close()

	events := make([]*models.ComplianceEvent, 0)
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan compliance event: %w", err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate compliance events: %w", err)
	}
	return events, nil
}

func buildWhere(filter models.ListFilter) (string, []any) {
	var clauses []string
	var args []any
	add := func(clause string, arg any) {
		args = append(args, arg)
		clauses = append(clauses, strings.ReplaceAll(clause, "?", "$"+strconv.Itoa(len(args))))
	}

	if !filter.EmployerID.IsNil() {
		add("employer_id = ?", filter.EmployerID.String())
	}
	if len(filter.Types) > 0 {
		types := make([]string, len(filter.Types))
		for i, t := range filter.Types {
			types[i] = string(t)
		}
		add("event_type = ANY(?::text[])", pq.Array(types))
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, st := range filter.Statuses {
			statuses[i] = string(st)
		}
		add("status = ANY(?::text[])", pq.Array(statuses))
	}
	if filter.CreatedFrom != nil {
		add("created_at >= ?", *filter.CreatedFrom)
	}
	if filter.CreatedTo != nil {
		add("created_at < ?", *filter.CreatedTo)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(row scanner) (*models.ComplianceEvent, error) {
	var (
		e                                     models.ComplianceEvent
		eventID, employerID                   uuid.UUID
		eventType, status                     string
		payload, details                      []byte
		submittedAt, processedAt, cancelledAt sql.NullTime
	)
	if err := row.Scan(
		&eventID, &employerID, &eventType, &payload, &status, &e.Protocol, &e.ReceiptNumber,
		&submittedAt, &processedAt, &cancelledAt, &e.CancelReason, &e.Attempts, &details,
		&e.CreatedAt, &e.UpdatedAt, &e.Version,
	); err != nil {
		return nil, err
	}
	e.ID = id.EventID(eventID)
	e.EmployerID = id.EmployerID(employerID)
	e.Type = models.EventType(eventType)
	e.Status = models.Status(status)
	e.Payload = json.RawMessage(payload)
	e.SubmittedAt = timePtr(submittedAt)
	e.ProcessedAt = timePtr(processedAt)
	e.CancelledAt = timePtr(cancelledAt)
	if len(details) > 0 {
		if err := json.Unmarshal(details, &e.ErrorDetails); err != nil {
			return nil, fmt.Errorf("decode error details: %w", err)
		}
	}
	if len(e.ErrorDetails) == 0 {
		e.ErrorDetails = nil
	}
	return &e, nil
}

func nonNilDetails(d []models.ErrorDetail) []models.ErrorDetail {
	if d == nil {
		return []models.ErrorDetail{}
	}
	return d
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}
