package org

import "errors"

var (
	ErrNotFound     = errors.New("org: not found")
	ErrConflict     = errors.New("org: already exists")
	ErrInvalidInput = errors.New("org: invalid input")
	ErrLastAdmin    = errors.New("org: cannot demote the last admin")
)
