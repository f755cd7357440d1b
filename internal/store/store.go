// Package store is the typed document store client used by the services.
// Every failure is returned as an application error: missing rows are
// NOT_FOUND, unique violations are DUPLICATE_SUBMISSION and anything else is
// an UPSTREAM_FAILURE.
package store

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	apperrors "realtyportal/pkg/errors"
)

// Client wraps a gorm handle, either the root connection or a transaction.
type Client struct {
	db *gorm.DB
}

// New creates a client over db.
func New(db *gorm.DB) *Client {
	return &Client{db: db}
}

// DB returns the underlying handle bound to ctx.
func (c *Client) DB(ctx context.Context) *gorm.DB {
	return c.db.WithContext(ctx)
}

// Transaction runs fn in a database transaction. fn must only use the client
// it is given.
func (c *Client) Transaction(ctx context.Context, fn func(tx *Client) error) error {
	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Client{db: tx})
	})
	if err == nil {
		return nil
	}
	if _, ok := apperrors.As(err); ok {
		return err
	}
	return apperrors.Upstream("transaction failed", err)
}

// Fetch loads the document of type T with the given id. entity names the
// document in a NOT_FOUND error.
func Fetch[T any](ctx context.Context, c *Client, entity, id string, preload ...string) (*T, error) {
	if id == "" {
		return nil, apperrors.NotFound(entity)
	}
	q := c.DB(ctx)
	for _, p := range preload {
		q = q.Preload(p)
	}
	var v T
	if err := q.Where("id = ?", id).First(&v).Error; err != nil {
		return nil, translate(entity, err)
	}
	return &v, nil
}

// FindOne loads the first document of type T matching query.
func FindOne[T any](ctx context.Context, c *Client, entity string, query string, args ...any) (*T, error) {
	var v T
	if err := c.DB(ctx).Where(query, args...).First(&v).Error; err != nil {
		return nil, translate(entity, err)
	}
	return &v, nil
}

// Exists reports whether any document of type T matches query.
func Exists[T any](ctx context.Context, c *Client, query string, args ...any) (bool, error) {
	var count int64
	if err := c.DB(ctx).Model(new(T)).Where(query, args...).Limit(1).Count(&count).Error; err != nil {
		return false, apperrors.Upstream("query failed", err)
	}
	return count > 0, nil
}

// List loads every document of type T matching the optional query, newest
// first. Filtering beyond that is left to the caller.
func List[T any](ctx context.Context, c *Client, query string, args ...any) ([]T, error) {
	return ListWith[T](ctx, c, nil, query, args...)
}

// ListWith is List with associations preloaded.
func ListWith[T any](ctx context.Context, c *Client, preload []string, query string, args ...any) ([]T, error) {
	q := c.DB(ctx).Order("created_at DESC")
	for _, p := range preload {
		q = q.Preload(p)
	}
	if query != "" {
		q = q.Where(query, args...)
	}
	var out []T
	if err := q.Find(&out).Error; err != nil {
		return nil, apperrors.Upstream("query failed", err)
	}
	return out, nil
}

// Create inserts v without touching its associations.
func Create[T any](ctx context.Context, c *Client, v *T) error {
	if err := c.DB(ctx).Omit(clause.Associations).Create(v).Error; err != nil {
		if IsDuplicate(err) {
			return apperrors.Wrap(apperrors.ErrCodeDuplicateSubmission, "document already exists", err)
		}
		return apperrors.Upstream("insert failed", err)
	}
	return nil
}

// Patch updates fields of the document with the given id.
func Patch[T any](ctx context.Context, c *Client, entity, id string, fields map[string]any) error {
	res := c.DB(ctx).Model(new(T)).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		if IsDuplicate(res.Error) {
			return apperrors.Wrap(apperrors.ErrCodeDuplicateSubmission, "document already exists", res.Error)
		}
		return apperrors.Upstream("update failed", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperrors.NotFound(entity)
	}
	return nil
}

// PatchIfStatus updates fields only while the document still has status
// expected. It reports false when the document changed underneath the caller.
func PatchIfStatus[T any](ctx context.Context, c *Client, id, expected string, fields map[string]any) (bool, error) {
	res := c.DB(ctx).Model(new(T)).Where("id = ? AND status = ?", id, expected).Updates(fields)
	if res.Error != nil {
		if IsDuplicate(res.Error) {
			return false, apperrors.Wrap(apperrors.ErrCodeDuplicateSubmission, "document already exists", res.Error)
		}
		return false, apperrors.Upstream("update failed", res.Error)
	}
	return res.RowsAffected == 1, nil
}

// IsDuplicate reports whether err is a unique constraint violation.
func IsDuplicate(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value") ||
		strings.Contains(msg, "SQLSTATE 23505")
}

func translate(entity string, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperrors.NotFound(entity)
	}
	return apperrors.Upstream("query failed", err)
}
