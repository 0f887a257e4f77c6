package service

import "errors"

var (
	ErrStoreNil     = errors.New("task store is nil")
	ErrPipelineNil  = errors.New("intake pipeline is nil")
	ErrSchedulerNil = errors.New("reminder scheduler is nil")
	ErrInvalidInput = errors.New("invalid input")
)
