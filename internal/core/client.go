package core

import (
	"github.com/git-pkgs/gemindex/client"
)

// Type aliases so registry implementations only import core.
type (
	Client     = client.Client
	Option     = client.Option
	URLBuilder = client.URLBuilder
)

var (
	DefaultClient  = client.DefaultClient
	NewClient      = client.NewClient
	WithTimeout    = client.WithTimeout
	WithMaxRetries = client.WithMaxRetries
	GemFilename    = client.GemFilename
	SplitPlatform  = client.SplitPlatform
)
