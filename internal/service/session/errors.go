package session

import "github.com/pkg/errors"

var (
	ErrInvalidSession   = errors.New("invalid session")
	ErrNotFound         = errors.New("session not found")
	ErrVersionConflict  = errors.New("session version conflict")
	ErrInvalidConfig    = errors.New("invalid session store configuration")
	ErrInvalidStoreType = errors.New("invalid session store type")
	ErrClosed           = errors.New("session store closed")
)
