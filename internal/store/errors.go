package store

import "github.com/aipp-workbench/engine/internal/engineerr"

// ErrNotFound is returned by Get/lookup methods when no row matches.
var ErrNotFound = engineerr.New(engineerr.KindNotFound, "store: not found")

// ErrAlreadyExists is the sentinel for a primary-key conflict. The SQLite
// Create methods do not return it; a conflict surfaces as the driver's error.
var ErrAlreadyExists = engineerr.New(engineerr.KindValidation, "store: already exists")
