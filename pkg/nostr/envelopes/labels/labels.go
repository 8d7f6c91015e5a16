// Package labels holds the first element of each NIP-01 message array.
package labels

const (
	EVENT  = "EVENT"
	EOSE   = "EOSE"
	REQ    = "REQ"
	CLOSE  = "CLOSE"
	CLOSED = "CLOSED"
	NOTICE = "NOTICE"
	OK     = "OK"
	AUTH   = "AUTH"
	COUNT  = "COUNT"
)
