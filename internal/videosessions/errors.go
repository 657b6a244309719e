package videosessions

import "errors"

var (
	ErrNotFound           = errors.New("video session not found")
	ErrAlreadyEnded       = errors.New("video session already ended")
	ErrProvisioningFailed = errors.New("video session provisioning failed")
)
