package trustchain

import (
	"errors"
	"fmt"
)

// ErrorKind tags a verification failure so callers can distinguish
// cryptographic, structural, and policy rejections without string
// matching.
type ErrorKind string

const (
	KindSignature      ErrorKind = "signature_invalid"
	KindShape          ErrorKind = "shape_invalid"
	KindTenantMismatch ErrorKind = "tenant_mismatch"
	KindAppMismatch    ErrorKind = "app_id_mismatch"
	KindAudience       ErrorKind = "bad_audience"
)

// VerifyError is a tagged trust-chain verification failure.
type VerifyError struct {
	Kind  ErrorKind
	Msg   string
	Cause error
}

func (e *VerifyError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *VerifyError) Unwrap() error { return e.Cause }

func newVerifyError(kind ErrorKind, msg string, cause error) *VerifyError {
	return &VerifyError{Kind: kind, Msg: msg, Cause: cause}
}

// AsVerifyError unwraps err into a *VerifyError, if it is one.
func AsVerifyError(err error) (*VerifyError, bool) {
	var verr *VerifyError
	if errors.As(err, &verr) {
		return verr, true
	}
	return nil, false
}

// IsKind reports whether err is a VerifyError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	verr, ok := AsVerifyError(err)
	return ok && verr.Kind == kind
}
