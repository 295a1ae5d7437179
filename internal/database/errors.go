package database

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/nikhilbhutani/toolate/internal/apperr"
)

const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
	codeCheckViolation      = "23514"
	codeInvalidText         = "22P02"
	codeInsufficientPriv    = "42501"
)

// ErrPolicyDenied marks writes the row-level policies silently filtered out.
var ErrPolicyDenied = errors.New("row-level security policy rejected the write")

// Classify maps a storage error onto the user-facing taxonomy. notFound is the
// sentence used when the query matched no row.
func Classify(err error, notFound string) error {
	if err == nil {
		return nil
	}

	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return err
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.Wrap(apperr.NotFound, notFound, err)
	}
	if errors.Is(err, ErrPolicyDenied) {
		return apperr.Wrap(apperr.PermissionDenied, "You do not have permission to perform this action", err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeUniqueViolation:
			return apperr.Wrap(apperr.Conflict, "This record already exists", err)
		case codeInsufficientPriv:
			return apperr.Wrap(apperr.PermissionDenied, "You do not have permission to perform this action", err)
		case codeForeignKeyViolation:
			return apperr.Wrap(apperr.NotFound, notFound, err)
		case codeCheckViolation, codeInvalidText:
			return apperr.Wrap(apperr.Validation, "One of the values provided is not valid", err)
		}
		if strings.Contains(pgErr.Message, "row-level security") {
			return apperr.Wrap(apperr.PermissionDenied, "You do not have permission to perform this action", err)
		}
	}

	return apperr.Wrap(apperr.Internal, "database error", err)
}

// IsUniqueViolation reports whether err is a unique-constraint failure on the
// named constraint or index; an empty name matches any.
func IsUniqueViolation(err error, name string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != codeUniqueViolation {
		return false
	}
	return name == "" || pgErr.ConstraintName == name
}

// CheckAffected turns a zero-row UPDATE or DELETE into either NotFound (the
// row is not visible) or ErrPolicyDenied (visible, but the policy refused the
// write). existsSQL must select one boolean for the given args.
func CheckAffected(ctx context.Context, tx pgx.Tx, tag pgconn.CommandTag, existsSQL string, args ...any) error {
	if tag.RowsAffected() > 0 {
		return nil
	}
	var exists bool
	if err := tx.QueryRow(ctx, existsSQL, args...).Scan(&exists); err != nil {
		return fmt.Errorf("check row visibility: %w", err)
	}
	if exists {
		return ErrPolicyDenied
	}
	return pgx.ErrNoRows
}
