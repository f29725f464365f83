package models

import "errors"

var (
	// ErrFileFormat marks a metadata file that cannot be parsed as a structured object.
	ErrFileFormat = errors.New("file format error")
	// ErrIO marks a missing or unreadable path.
	ErrIO = errors.New("io error")
	// ErrConfiguration marks an invalid model, device, batch size or splitter setting.
	ErrConfiguration = errors.New("configuration error")
)
