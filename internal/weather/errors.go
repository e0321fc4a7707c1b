package weather

import "errors"

var (
	// ErrNetwork is returned when the provider could not be reached.
	ErrNetwork = errors.New("network error")
	// ErrProvider is returned when the provider answered with a failure status.
	ErrProvider = errors.New("provider error")
	// ErrNotFound is returned when the provider does not recognise a city name.
	ErrNotFound = errors.New("city not found")
)
