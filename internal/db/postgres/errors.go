package postgres

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/leafsii/postboard-backend/internal/posts"
)

// SQLSTATE codes the repository distinguishes.
const (
	codeUniqueViolation      = "23505"
	codeForeignKeyViolation  = "23503"
	codeCheckViolation       = "23514"
	codeNotNullViolation     = "23502"
	codeStringTooLong        = "22001"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeTooManyConnections   = "53300"
	codeAdminShutdown        = "57P01"
	codeCrashShutdown        = "57P02"
	codeCannotConnectNow     = "57P03"
	classConnectionException = "08"
)

func classify(op string, err error) error {
	if errors.Is(err, posts.ErrValidation) {
		return err
	}

	var pgErr *pgconn.PgError
	var connErr *pgconn.ConnectError
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return posts.NewStoreError(op, posts.ErrNotFound, err)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return posts.NewStoreError(op, posts.ErrTransient, err)
	case errors.As(err, &pgErr):
		return posts.NewStoreError(op, kindOf(pgErr.Code), err)
	case errors.As(err, &connErr), pgconn.Timeout(err), pgconn.SafeToRetry(err):
		return posts.NewStoreError(op, posts.ErrTransient, err)
	}
	return posts.NewStoreError(op, posts.ErrInternal, err)
}

func kindOf(code string) error {
	switch code {
	case codeUniqueViolation, codeForeignKeyViolation:
		return posts.ErrConflict
	case codeCheckViolation, codeNotNullViolation, codeStringTooLong:
		return posts.ErrValidation
	case codeSerializationFailure, codeDeadlockDetected, codeTooManyConnections,
		codeAdminShutdown, codeCrashShutdown, codeCannotConnectNow:
		return posts.ErrTransient
	}
	if strings.HasPrefix(code, classConnectionException) {
		return posts.ErrTransient
	}
	return posts.ErrInternal
}
