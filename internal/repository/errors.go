package repository

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrDuplicateDispatch indica que la pregunta ya fue despachada en esa corrida.
var ErrDuplicateDispatch = errors.New("question already dispatched")

// ErrDuplicateAnswer indica que la pregunta ya tiene respuesta en esa corrida.
var ErrDuplicateAnswer = errors.New("question already answered")

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
