package core

import "errors"

var (
	ErrNotFound = errors.New("not found")
	// ErrConflict se retorna al violar una restricción de unicidad
	// (email, username, o el par provider/provider_user_id).
	ErrConflict = errors.New("conflict")
)
