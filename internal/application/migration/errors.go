package migration

import "errors"

var (
	ErrInvalidUpload  = errors.New("invalid upload")
	ErrStoreUpload    = errors.New("failed to store upload")
	ErrCreateJob      = errors.New("failed to create migration job")
	ErrUploadTimeout  = errors.New("upload timed out")
	ErrInvalidPage    = errors.New("invalid page")
	ErrQueryMigration = errors.New("failed to query migration state")
)
