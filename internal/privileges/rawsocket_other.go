//go:build !unix

package privileges

import "errors"

func canOpenRawSocket() error {
	return errors.New("raw sockets not supported on this platform")
}
