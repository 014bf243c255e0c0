package circuit

import "errors"

var ErrOpen = errors.New("circuit open")
