package triples

import (
	"errors"

	"github.com/cormorant-db/triples/kv"
)

// wrapKvError translates an error from the kv package into this package's
// tagged *Error type, so callers only ever see one error taxonomy.
func wrapKvError(err error) error {
	if err == nil {
		return nil
	}

	var own *Error
	if errors.As(err, &own) {
		return err
	}

	var kerr *kv.Error
	if !errors.As(err, &kerr) {
		return newError(KvFailure, "kv store error", err)
	}

	switch kerr.Kind {
	case kv.TransactionTooLong:
		return newError(TransactionTooLong, kerr.Message, kerr.Err)
	case kv.TransactionTooLarge:
		return newError(TransactionTooLarge, kerr.Message, kerr.Err)
	case kv.MaxRetriesExceeded:
		return newError(MaxRetriesExceeded, kerr.Message, kerr.Err)
	case kv.InternalError:
		return newError(InternalError, kerr.Message, kerr.Err)
	default:
		return newError(KvFailure, kerr.Message, kerr.Err)
	}
}
