package storage

// ValidateSize checks a measured payload size against the configured maximum.
// A size of zero or below (-1 means unknown) is treated as an empty upload.
func ValidateSize(size, limit int64) error {
	if size > limit {
		return &TooLargeError{Size: size, Limit: limit}
	}
	if size <= 0 {
		return ErrEmpty
	}
	return nil
}
