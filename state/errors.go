package state

import "errors"

var (
	ErrUnresolvedNonce = errors.New("status update references a nonce with no transfer")
	ErrTransferInvalid = errors.New("transfer is invalid")
	ErrPairInvalid     = errors.New("pair is invalid")
	ErrNetworkInvalid  = errors.New("network is invalid")
	ErrStatusInvalid   = errors.New("transfer status is invalid")
)
