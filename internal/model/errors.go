package model

import "errors"

var (
	// ErrLicenseNotFound is returned when a license key does not exist.
	ErrLicenseNotFound = errors.New("license not found")

	// ErrLicenseInvalid is returned when a key cannot be used: unknown,
	// banned, or bound to too many machines.
	ErrLicenseInvalid = errors.New("license invalid")

	// ErrLicenseExpired is returned when a key is past its expiry.
	ErrLicenseExpired = errors.New("license expired")

	// ErrHardwareLimit is returned when binding one more machine would exceed the limit.
	ErrHardwareLimit = errors.New("hardware limit reached")

	// ErrUnknownKind is returned when issuing a license of an unknown kind.
	ErrUnknownKind = errors.New("unknown license kind")
)
