package domain

import "errors"

var (
	ErrNotFound     = errors.New("not found")
	ErrReorgTooDeep = errors.New("reorg deeper than retained journal window")
)
