package service

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrAlreadyFinished = errors.New("generation already finished")
	ErrNoActiveProfile = errors.New("no active profile")
	ErrInvalidPlaylist = errors.New("invalid playlist")
)
