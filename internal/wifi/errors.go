package wifi

import "errors"

// ErrInvalidPassphrase is returned when a password is neither a WPA
// passphrase (8 to 63 printable ASCII characters) nor a 64-digit hex PSK.
var ErrInvalidPassphrase = errors.New("wifi: invalid passphrase")
