package apperrors

import "errors"

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")

	// ErrInvalidSourceURL is returned when a data source URL does not match its provider's pattern.
	ErrInvalidSourceURL = errors.New("invalid source url")
	// ErrUnknownProvider is returned when no crawler is registered (or enabled) for a provider name.
	ErrUnknownProvider = errors.New("unknown provider")
	// ErrProviderFetchFailure is returned when a provider request fails mid-crawl.
	ErrProviderFetchFailure = errors.New("provider fetch failure")
	// ErrAlreadyRunning is returned when an ingestion lock is already held for a data source.
	ErrAlreadyRunning = errors.New("ingestion already running")
	// ErrLockNotFound is returned when releasing a lock row that was never created.
	ErrLockNotFound = errors.New("resource lock not found")
	// ErrMultipleRecordsFound is returned when a lookup expected to be unique matches several rows.
	ErrMultipleRecordsFound = errors.New("multiple records found")
)
