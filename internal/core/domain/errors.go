package domain

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrNoCredential     = errors.New("no stored credential")
	ErrEmptyCredential  = errors.New("credential is empty")
	ErrNoLessons        = errors.New("course has no lessons")
	ErrLessonNotFound   = errors.New("lesson not found")
	ErrPlayerClosed     = errors.New("lesson player closed")
	ErrAlreadyCompleted = errors.New("lesson already completed")
	ErrNotAuthenticated = errors.New("not authenticated")
)
