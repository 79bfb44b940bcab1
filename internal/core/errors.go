package core

import "github.com/git-pkgs/gemindex/client"

// ErrNotFound is returned when a package or version is not found upstream.
var ErrNotFound = client.ErrNotFound

type (
	HTTPError      = client.HTTPError
	NotFoundError  = client.NotFoundError
	RateLimitError = client.RateLimitError
)
