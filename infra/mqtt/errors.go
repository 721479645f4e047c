package mqtt

import "errors"

var errBufferFull = errors.New("feed buffer full")
