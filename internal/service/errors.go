package service

import (
	"errors"

	"github.com/d60-Lab/livesync/internal/repository"
)

var (
	ErrNotFound     = repository.ErrNotFound
	ErrForbidden    = errors.New("forbidden")
	ErrInvalid      = errors.New("invalid request")
	ErrBadLogin     = errors.New("invalid user id or password")
	ErrChatClosed   = errors.New("this conversation has been closed by the administrator")
	ErrInvalidToken = errors.New("invalid token")
)
