package requests

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/guichet-civil/guichet/internal/platform/db"
	"github.com/guichet-civil/guichet/internal/platform/httpx"
)

// Repository defines persistence for requests and their event log.
type Repository interface {
	Create(ctx context.Context, ownerID string, input CreateInput) (*Request, error)
	Get(ctx context.Context, id string) (*Request, error)
	GetForCitizen(ctx context.Context, id, citizenID string) (*Request, error)
	ListForCitizen(ctx context.Context, citizenID string) ([]Request, error)
	ListAll(ctx context.Context, filter ListFilter) ([]Request, int, error)
	ApplyStatus(ctx context.Context, requestID string, newStatus Status, actorID string, comment *string) (*Event, error)
	Assign(ctx context.Context, requestID, agentID string) error
	UpdateNotes(ctx context.Context, requestID, notes string) error
	Events(ctx context.Context, requestID string) ([]Event, error)
	CountByStatus(ctx context.Context) ([]StatusCount, error)
}

// PGRepository implements Repository on PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

var foldTransformer = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Fold lowercases and strips diacritics so "Hélène" matches "helene".
func Fold(s string) string {
	folded, _, err := transform.String(foldTransformer, s)
	if err != nil {
		folded = s
	}
	return strings.ToLower(folded)
}

const requestColumns = `r.id, r.citizen_id, r.type_of_act, r.person_fullname,
	r.father_name, r.mother_name, r.date_of_birth, r.place_of_birth,
	r.number_of_copies, r.purpose, r.status, r.attachments, r.assigned_to,
	r.notes, r.created_at, r.updated_at, COALESCE(p.full_name, '')`

// Create inserts a new pending request owned by citizenID.
func (r *PGRepository) Create(ctx context.Context, ownerID string, input CreateInput) (*Request, error) {
	id := uuid.NewString()
	attachments := input.Attachments
	if attachments == nil {
		attachments = []Attachment{}
	}
	attachmentsJSON, err := json.Marshal(attachments)
	if err != nil {
		return nil, err
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO requests (
			id, citizen_id, type_of_act, person_fullname, person_fullname_folded,
			father_name, mother_name, date_of_birth, place_of_birth,
			number_of_copies, purpose, status, attachments
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		id, ownerID, input.TypeOfAct, input.PersonFullname, Fold(input.PersonFullname),
		input.FatherName, input.MotherName, input.DateOfBirth, input.PlaceOfBirth,
		input.NumberOfCopies, input.Purpose, StatusPending, attachmentsJSON)
	if err != nil {
		return nil, fmt.Errorf("requests: insert: %w", err)
	}
	return r.Get(ctx, id)
}

// Get fetches a request by id.
func (r *PGRepository) Get(ctx context.Context, id string) (*Request, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+requestColumns+`
		FROM requests r
		LEFT JOIN profiles p ON p.id = r.citizen_id
		WHERE r.id = $1`, id)
	return scanRequest(row)
}

// GetForCitizen fetches a request only when owned by citizenID. A foreign
// request reads as not found, never as forbidden.
func (r *PGRepository) GetForCitizen(ctx context.Context, id, citizenID string) (*Request, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+requestColumns+`
		FROM requests r
		LEFT JOIN profiles p ON p.id = r.citizen_id
		WHERE r.id = $1 AND r.citizen_id = $2`, id, citizenID)
	return scanRequest(row)
}

// ListForCitizen returns all requests owned by citizenID, newest first.
func (r *PGRepository) ListForCitizen(ctx context.Context, citizenID string) ([]Request, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+requestColumns+`
		FROM requests r
		LEFT JOIN profiles p ON p.id = r.citizen_id
		WHERE r.citizen_id = $1
		ORDER BY r.created_at DESC`, citizenID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRequests(rows)
}

// searchConditionSQL matches the folded search pattern against the stored
// folded person name, the owner name unaccented on the database side, and
// the id prefix. Both name comparisons must be diacritic-insensitive.
const searchConditionSQL = "(r.person_fullname_folded LIKE $%d OR LOWER(unaccent(p.full_name)) LIKE $%d OR r.id::text LIKE $%d)"

// ListAll returns the staff queue with optional filters, newest first.
func (r *PGRepository) ListAll(ctx context.Context, filter ListFilter) ([]Request, int, error) {
	var conditions []string
	var args []any
	argPos := 1

	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("r.status = $%d", argPos))
		args = append(args, *filter.Status)
		argPos++
	}
	if filter.Type != nil {
		conditions = append(conditions, fmt.Sprintf("r.type_of_act = $%d", argPos))
		args = append(args, *filter.Type)
		argPos++
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		pattern := "%" + Fold(search) + "%"
		conditions = append(conditions, fmt.Sprintf(searchConditionSQL, argPos, argPos, argPos+1))
		args = append(args, pattern, Fold(search)+"%")
		argPos += 2
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	countQuery := fmt.Sprintf(`
		SELECT COUNT(*) FROM requests r
		LEFT JOIN profiles p ON p.id = r.citizen_id
		%s`, whereClause)
	var total int
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	perPage := filter.PerPage
	if perPage <= 0 {
		perPage = 20
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}

	query := fmt.Sprintf(`
		SELECT `+requestColumns+`
		FROM requests r
		LEFT JOIN profiles p ON p.id = r.citizen_id
		%s
		ORDER BY r.created_at DESC
		LIMIT $%d OFFSET $%d`, whereClause, argPos, argPos+1)
	args = append(args, perPage, (page-1)*perPage)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	items, err := collectRequests(rows)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// ApplyStatus sets the new status and appends the audit event in a single
// transaction. The previous status is re-read under row lock so the event
// records the state immediately before this change.
func (r *PGRepository) ApplyStatus(ctx context.Context, requestID string, newStatus Status, actorID string, comment *string) (*Event, error) {
	event := Event{
		ID:        uuid.NewString(),
		RequestID: requestID,
		NewStatus: newStatus,
		Comment:   comment,
	}
	if actorID != "" {
		event.ActorID = &actorID
	}

	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var previous Status
		err := tx.QueryRow(ctx,
			`SELECT status FROM requests WHERE id = $1 FOR UPDATE`, requestID).Scan(&previous)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return httpx.ErrNotFound
			}
			return err
		}
		event.PreviousStatus = &previous

		if _, err := tx.Exec(ctx,
			`UPDATE requests SET status = $2, updated_at = NOW() WHERE id = $1`,
			requestID, newStatus); err != nil {
			return err
		}

		return tx.QueryRow(ctx, `
			INSERT INTO request_events (id, request_id, actor_id, previous_status, new_status, comment)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING created_at`,
			event.ID, event.RequestID, event.ActorID, event.PreviousStatus, event.NewStatus, event.Comment,
		).Scan(&event.CreatedAt)
	})
	if err != nil {
		return nil, err
	}
	return &event, nil
}

// Assign sets the assigned_to reference.
func (r *PGRepository) Assign(ctx context.Context, requestID, agentID string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE requests SET assigned_to = $2, updated_at = NOW() WHERE id = $1`,
		requestID, agentID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return httpx.ErrNotFound
	}
	return nil
}

// UpdateNotes replaces the staff-only free-text notes, independent of status.
func (r *PGRepository) UpdateNotes(ctx context.Context, requestID, notes string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE requests SET notes = $2, updated_at = NOW() WHERE id = $1`,
		requestID, notes)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return httpx.ErrNotFound
	}
	return nil
}

// Events lists the audit trail of a request, newest first.
func (r *PGRepository) Events(ctx context.Context, requestID string) ([]Event, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, request_id, actor_id, previous_status, new_status, comment, created_at
		FROM request_events
		WHERE request_id = $1
		ORDER BY created_at DESC`, requestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var ev Event
		var actorID, comment pgtype.Text
		var previous pgtype.Text
		var createdAt pgtype.Timestamptz
		if err := rows.Scan(&ev.ID, &ev.RequestID, &actorID, &previous, &ev.NewStatus, &comment, &createdAt); err != nil {
			return nil, err
		}
		if actorID.Valid {
			ev.ActorID = &actorID.String
		}
		if previous.Valid {
			s := Status(previous.String)
			ev.PreviousStatus = &s
		}
		if comment.Valid {
			ev.Comment = &comment.String
		}
		ev.CreatedAt = createdAt.Time
		events = append(events, ev)
	}
	return events, rows.Err()
}

// CountByStatus returns queue sizes for the back-office dashboard.
func (r *PGRepository) CountByStatus(ctx context.Context) ([]StatusCount, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT status, COUNT(*) FROM requests GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byStatus := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		byStatus[status] = count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	counts := make([]StatusCount, 0, len(AllStatuses()))
	for _, s := range AllStatuses() {
		counts = append(counts, StatusCount{Status: s, Count: byStatus[s]})
	}
	return counts, nil
}

func scanRequest(row pgx.Row) (*Request, error) {
	var req Request
	var fatherName, motherName, placeOfBirth, purpose, assignedTo, notes pgtype.Text
	var dateOfBirth pgtype.Date
	var attachmentsJSON []byte
	var createdAt, updatedAt pgtype.Timestamptz

	err := row.Scan(
		&req.ID, &req.CitizenID, &req.TypeOfAct, &req.PersonFullname,
		&fatherName, &motherName, &dateOfBirth, &placeOfBirth,
		&req.NumberOfCopies, &purpose, &req.Status, &attachmentsJSON, &assignedTo,
		&notes, &createdAt, &updatedAt, &req.OwnerName,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, httpx.ErrNotFound
		}
		return nil, err
	}

	if fatherName.Valid {
		req.FatherName = &fatherName.String
	}
	if motherName.Valid {
		req.MotherName = &motherName.String
	}
	if dateOfBirth.Valid {
		d := dateOfBirth.Time
		req.DateOfBirth = &d
	}
	if placeOfBirth.Valid {
		req.PlaceOfBirth = &placeOfBirth.String
	}
	if purpose.Valid {
		req.Purpose = &purpose.String
	}
	if assignedTo.Valid {
		req.AssignedTo = &assignedTo.String
	}
	if notes.Valid {
		req.Notes = &notes.String
	}
	if len(attachmentsJSON) > 0 {
		if err := json.Unmarshal(attachmentsJSON, &req.Attachments); err != nil {
			return nil, fmt.Errorf("requests: decode attachments: %w", err)
		}
	}
	req.CreatedAt = createdAt.Time
	req.UpdatedAt = updatedAt.Time
	return &req, nil
}

func collectRequests(rows pgx.Rows) ([]Request, error) {
	var items []Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *req)
	}
	return items, rows.Err()
}

var _ Repository = (*PGRepository)(nil)
