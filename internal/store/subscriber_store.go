package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/webberzone/gluelink/internal/domain"
)

// Store operation errors.
var (
	// ErrDuplicateEmail is returned when an insert or update would violate
	// the unique email constraint. An insert that loses a race to a
	// concurrent writer also surfaces this, so callers can retry as an
	// update instead of failing.
	ErrDuplicateEmail = errors.New("subscriber email already exists")
	ErrNotFound       = errors.New("subscriber not found")
	ErrMissingID      = errors.New("subscriber id is required")
)

const pgUniqueViolation = "23505"

const subscriberColumns = "id, email, first_name, last_name, fields, tags, forms, status, created, modified"

// InsertSubscriber inserts a new record and returns its assigned id.
// An existing record with the same email yields ErrDuplicateEmail.
func (s *PostgresStore) InsertSubscriber(ctx context.Context, sub *domain.Subscriber) (int64, error) {
	if err := sub.Validate(); err != nil {
		return 0, err
	}

	status := sub.Status
	if status == "" {
		status = domain.StatusActive
	}

	err := s.pool.QueryRow(ctx, `
		INSERT INTO gluelink_subscribers (email, first_name, last_name, fields, tags, forms, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created, modified
	`, sub.Email, sub.FirstName, sub.LastName,
		domain.EncodeFields(sub.Fields), domain.JoinIDs(sub.Tags), domain.JoinIDs(sub.Forms), status,
	).Scan(&sub.ID, &sub.Created, &sub.Modified)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, ErrDuplicateEmail
		}
		return 0, fmt.Errorf("inserting subscriber: %w", err)
	}
	sub.Status = status

	s.cache.InvalidateSubscriber(ctx, sub.ID, sub.Email)
	return sub.ID, nil
}

// UpdateSubscriber merges sub's array-valued fields into the stored record
// and writes the result. The target id must exist and the email must not
// belong to a different record.
func (s *PostgresStore) UpdateSubscriber(ctx context.Context, sub *domain.Subscriber) error {
	if sub.ID == 0 {
		return ErrMissingID
	}
	if err := sub.Validate(); err != nil {
		return err
	}

	taken, err := s.GetSubscriberByEmail(ctx, sub.Email)
	if err != nil {
		return err
	}
	if taken != nil && taken.ID != sub.ID {
		return ErrDuplicateEmail
	}

	existing, err := s.GetSubscriber(ctx, sub.ID)
	if err != nil {
		return err
	}
	if existing == nil {
		return ErrNotFound
	}

	sub.Merge(existing)
	if sub.Status == "" {
		sub.Status = existing.Status
	}
	sub.Created = existing.Created

	err = s.pool.QueryRow(ctx, `
		UPDATE gluelink_subscribers
		SET email = $1, first_name = $2, last_name = $3, fields = $4, tags = $5, forms = $6, status = $7, modified = NOW()
		WHERE id = $8
		RETURNING modified
	`, sub.Email, sub.FirstName, sub.LastName,
		domain.EncodeFields(sub.Fields), domain.JoinIDs(sub.Tags), domain.JoinIDs(sub.Forms), sub.Status,
		sub.ID,
	).Scan(&sub.Modified)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("updating subscriber %d: %w", sub.ID, err)
	}

	s.cache.InvalidateSubscriber(ctx, sub.ID, existing.Email, sub.Email)
	return nil
}

// GetSubscriber returns the record with the given id, or nil when absent.
func (s *PostgresStore) GetSubscriber(ctx context.Context, id int64) (*domain.Subscriber, error) {
	if sub := s.cache.GetSubscriberByID(ctx, id); sub != nil {
		return sub, nil
	}

	row := s.pool.QueryRow(ctx,
		"SELECT "+subscriberColumns+" FROM gluelink_subscribers WHERE id = $1", id)
	sub, err := scanSubscriber(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying subscriber %d: %w", id, err)
	}

	s.cache.SetSubscriber(ctx, sub)
	return sub, nil
}

// GetSubscriberByEmail returns the record with the given email, or nil
// when absent.
func (s *PostgresStore) GetSubscriberByEmail(ctx context.Context, email string) (*domain.Subscriber, error) {
	if sub := s.cache.GetSubscriberByEmail(ctx, email); sub != nil {
		return sub, nil
	}

	row := s.pool.QueryRow(ctx,
		"SELECT "+subscriberColumns+" FROM gluelink_subscribers WHERE email = $1", email)
	sub, err := scanSubscriber(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying subscriber %s: %w", email, err)
	}

	s.cache.SetSubscriber(ctx, sub)
	return sub, nil
}

// DeleteSubscriber removes one record.
func (s *PostgresStore) DeleteSubscriber(ctx context.Context, id int64) error {
	existing, err := s.GetSubscriber(ctx, id)
	if err != nil {
		return err
	}
	if existing == nil {
		return ErrNotFound
	}

	if _, err := s.pool.Exec(ctx, "DELETE FROM gluelink_subscribers WHERE id = $1", id); err != nil {
		return fmt.Errorf("deleting subscriber %d: %w", id, err)
	}

	s.cache.InvalidateSubscriber(ctx, id, existing.Email)
	return nil
}

// DeleteSubscribers removes a batch of records by id.
func (s *PostgresStore) DeleteSubscribers(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return fmt.Errorf("no subscriber ids provided")
	}

	// Fetch emails first so the per-email cache entries can be dropped.
	rows, err := s.pool.Query(ctx,
		"SELECT id, email FROM gluelink_subscribers WHERE id = ANY($1)", ids)
	if err != nil {
		return fmt.Errorf("querying subscribers for delete: %w", err)
	}
	emails := make(map[int64]string, len(ids))
	for rows.Next() {
		var id int64
		var email string
		if err := rows.Scan(&id, &email); err != nil {
			rows.Close()
			return fmt.Errorf("scanning subscriber for delete: %w", err)
		}
		emails[id] = email
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("reading subscribers for delete: %w", err)
	}

	if _, err := s.pool.Exec(ctx, "DELETE FROM gluelink_subscribers WHERE id = ANY($1)", ids); err != nil {
		return fmt.Errorf("deleting subscribers: %w", err)
	}

	for id, email := range emails {
		s.cache.InvalidateSubscriber(ctx, id, email)
	}
	return nil
}

// ListSubscribers returns one page of records matching the filter.
func (s *PostgresStore) ListSubscribers(ctx context.Context, filter SubscriberFilter) ([]domain.Subscriber, error) {
	where, args := filter.whereClause()
	limit, offset := filter.limits()
	args = append(args, limit, offset)

	query := fmt.Sprintf("SELECT %s FROM gluelink_subscribers %s %s LIMIT $%d OFFSET $%d",
		subscriberColumns, where, filter.orderClause(), len(args)-1, len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying subscribers: %w", err)
	}
	defer rows.Close()

	subscribers := []domain.Subscriber{}
	for rows.Next() {
		sub, err := scanSubscriber(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning subscriber: %w", err)
		}
		subscribers = append(subscribers, *sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading subscribers: %w", err)
	}

	return subscribers, nil
}

// CountSubscribers returns the number of records matching the filter.
func (s *PostgresStore) CountSubscribers(ctx context.Context, filter SubscriberFilter) (int, error) {
	where, args := filter.whereClause()

	var count int
	err := s.pool.QueryRow(ctx,
		fmt.Sprintf("SELECT COUNT(*) FROM gluelink_subscribers %s", where), args...,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting subscribers: %w", err)
	}
	return count, nil
}

// SubscriberCountsByStatus returns record counts grouped by status.
func (s *PostgresStore) SubscriberCountsByStatus(ctx context.Context) (map[string]int, error) {
	if counts := s.cache.GetCounts(ctx); counts != nil {
		return counts, nil
	}

	rows, err := s.pool.Query(ctx,
		"SELECT status, COUNT(*) FROM gluelink_subscribers GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("querying subscriber counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scanning subscriber count: %w", err)
		}
		counts[status] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading subscriber counts: %w", err)
	}

	s.cache.SetCounts(ctx, counts)
	return counts, nil
}

func scanSubscriber(row pgx.Row) (*domain.Subscriber, error) {
	var sub domain.Subscriber
	var fields, tags, forms string

	err := row.Scan(&sub.ID, &sub.Email, &sub.FirstName, &sub.LastName,
		&fields, &tags, &forms, &sub.Status, &sub.Created, &sub.Modified)
	if err != nil {
		return nil, err
	}

	sub.Fields = domain.DecodeFields(fields)
	sub.Tags = domain.ParseIDList(tags)
	sub.Forms = domain.ParseIDList(forms)
	return &sub, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
