package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"aiotts_gateway/internal/retry"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"
)

// ErrNotFound is returned when no record matches the lookup key.
var ErrNotFound = errors.New("not found")

const (
	PasswordDefault = "default"
	PasswordChanged = "changed"
)

// Querier is the subset of *pgxpool.Pool used by Store.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

var psql = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

// Store answers the personnel, uuid and label lookups.
type Store struct {
	db           Querier
	queryTimeout time.Duration
	retry        retry.Config
}

// NewStore wraps a pool. queryTimeout bounds each query; zero means no timeout.
func NewStore(db Querier, queryTimeout time.Duration, retryConfig retry.Config) *Store {
	return &Store{
		db:           db,
		queryTimeout: queryTimeout,
		retry:        retryConfig,
	}
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.queryTimeout > 0 {
		return context.WithTimeout(ctx, s.queryTimeout)
	}
	return ctx, func() {}
}

func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.db.Ping(ctx)
}

// queryRow runs a squirrel select and scans the single result row.
// pgx.ErrNoRows becomes ErrNotFound and is not retried.
func (s *Store) queryRow(ctx context.Context, query squirrel.SelectBuilder, dest ...any) error {
	sql, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}

	_, err = retry.WithRetry(ctx, s.retry, func(ctx context.Context) (struct{}, error) {
		ctx, cancel := s.withTimeout(ctx)
		defer cancel()

		err := s.db.QueryRow(ctx, sql, args...).Scan(dest...)
		if errors.Is(err, pgx.ErrNoRows) {
			return struct{}{}, retry.Permanent(ErrNotFound)
		}
		return struct{}{}, err
	})
	return err
}

// Label is the scanned payload stored for a tracking id.
type Label struct {
	TrackingID string          `json:"tracking_id"`
	Data       json.RawMessage `json:"data"`
}

// LabelByTrackingID returns the "data" member of the label's scanned_info document.
func (s *Store) LabelByTrackingID(ctx context.Context, trackingID string) (*Label, error) {
	var raw []byte
	err := s.queryRow(ctx,
		psql.Select("scanned_info").
			From("label_info").
			Where(squirrel.Eq{"tracking_id": trackingID}).
			Limit(1),
		&raw,
	)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		log.Error().Err(err).Str("tracking_id", trackingID).Msg("Failed to look up label")
		return nil, fmt.Errorf("get label: %w", err)
	}

	label := &Label{TrackingID: trackingID, Data: json.RawMessage("null")}
	if len(raw) == 0 {
		return label, nil
	}

	var info struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &info); err != nil {
		return nil, fmt.Errorf("decode scanned_info for %s: %w", trackingID, err)
	}
	if len(info.Data) > 0 {
		label.Data = info.Data
	}
	return label, nil
}

// UUIDExists reports whether value is a registered client uuid.
func (s *Store) UUIDExists(ctx context.Context, value string) (bool, error) {
	var one int
	err := s.queryRow(ctx,
		psql.Select("1").
			From("uuid").
			Where(squirrel.Eq{"value": value}).
			Limit(1),
		&one,
	)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		log.Error().Err(err).Msg("Failed to look up uuid")
		return false, fmt.Errorf("get uuid: %w", err)
	}
	return true, nil
}

// PasswordStatus returns PasswordDefault or PasswordChanged for a personnel email.
func (s *Store) PasswordStatus(ctx context.Context, email string) (string, error) {
	var isDefault *bool
	err := s.queryRow(ctx,
		psql.Select("is_default_password").
			From("personnel").
			Where(squirrel.Eq{"email": email}).
			Limit(1),
		&isDefault,
	)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", ErrNotFound
		}
		log.Error().Err(err).Str("email", email).Msg("Failed to look up personnel")
		return "", fmt.Errorf("get personnel: %w", err)
	}

	if isDefault != nil && *isDefault {
		return PasswordDefault, nil
	}
	return PasswordChanged, nil
}
