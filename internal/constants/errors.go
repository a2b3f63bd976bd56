package constants

import "errors"

// Configuration errors.
var (
	ErrNoAPIEndpoint        = errors.New("no API endpoint configured, use --api or set api in the config file")
	ErrUnknownOutputFormat  = errors.New("unknown output format")
	ErrSecretPromptNoTTY    = errors.New("client secret is required and stdin is not a terminal")
	ErrInvalidParameterFile = errors.New("parameters file must contain a mapping")
)

// Required field errors.
var (
	ErrSpaceSelectorRequired = errors.New("either --space-guid or both --org and --space are required")
	ErrUserIDRequired        = errors.New("--user-id flag is required")
	ErrNoJobToWait           = errors.New("create request returned no job to wait for")
)
