package kbase

import "errors"

var (
	// ErrCollectionBusy is returned when an operation needs a collection
	// with no queued, running or failed ingestion tasks.
	ErrCollectionBusy = errors.New("collection has ingestion tasks in progress")

	// ErrRefreshDataRequired is returned when refreshing a file or note
	// source without new content. URL sources are fetched again instead.
	ErrRefreshDataRequired = errors.New("refresh requires new content")
)
