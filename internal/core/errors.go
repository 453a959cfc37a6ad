package core

import "errors"

// Error kinds shared by the catalog, the stats cache, and the relay client.
// Callers classify with errors.Is; producers wrap with fmt.Errorf and %w.
var (
	ErrValidation = errors.New("validation failed")
	ErrDuplicate  = errors.New("already exists")
	ErrNotFound   = errors.New("not found")
	ErrRemote     = errors.New("relay error")
	ErrNetwork    = errors.New("network error")
	ErrStorage    = errors.New("storage error")
)
