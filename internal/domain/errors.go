package domain

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	KindTokenMissing         Kind = "TOKEN_MISSING"
	KindTokenInvalid         Kind = "TOKEN_INVALID"
	KindTokenExpired         Kind = "TOKEN_EXPIRED"
	KindTokenNotYetValid     Kind = "TOKEN_NOT_YET_VALID"
	KindWrongTokenType       Kind = "WRONG_TOKEN_TYPE"
	KindUserNotFound         Kind = "USER_NOT_FOUND"
	KindAccountDeactivated   Kind = "ACCOUNT_DEACTIVATED"
	KindAccountLocked        Kind = "ACCOUNT_LOCKED"
	KindInvalidCredentials   Kind = "INVALID_CREDENTIALS"
	KindUnauthorized         Kind = "UNAUTHORIZED"
	KindForbidden            Kind = "FORBIDDEN"
	KindDocumentAccessDenied Kind = "DOCUMENT_ACCESS_DENIED"
	KindAlreadyGranted       Kind = "ALREADY_GRANTED"
	KindAlreadyRevoked       Kind = "ALREADY_REVOKED"
	KindPermissionNotFound   Kind = "PERMISSION_NOT_FOUND"
	KindSessionNotFound      Kind = "SESSION_NOT_FOUND"
	KindDocumentNotFound     Kind = "DOCUMENT_NOT_FOUND"
	KindDocumentRejected     Kind = "DOCUMENT_REJECTED"
	KindValidationFailed     Kind = "VALIDATION_FAILED"
	KindStorageUnavailable   Kind = "STORAGE_UNAVAILABLE"
)

func (k Kind) HTTPStatus() int {
	switch k {
	case KindTokenMissing, KindTokenInvalid, KindTokenExpired, KindTokenNotYetValid, KindWrongTokenType,
		KindInvalidCredentials, KindUnauthorized:
		return http.StatusUnauthorized
	case KindAccountDeactivated, KindForbidden, KindDocumentAccessDenied:
		return http.StatusForbidden
	case KindAccountLocked:
		return http.StatusLocked
	case KindUserNotFound, KindPermissionNotFound, KindSessionNotFound, KindDocumentNotFound:
		return http.StatusNotFound
	case KindAlreadyGranted, KindAlreadyRevoked:
		return http.StatusConflict
	case KindDocumentRejected, KindValidationFailed:
		return http.StatusBadRequest
	case KindStorageUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Error carries a Kind so callers can branch with errors.Is against the
// sentinels below while still attaching a message and details.
type Error struct {
	Kind    Kind
	Message string
	Details map[string]any
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func NewError(kind Kind, message string, details map[string]any) *Error {
	return &Error{Kind: kind, Message: message, Details: details}
}

func WrapError(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

var (
	ErrTokenMissing         = &Error{Kind: KindTokenMissing, Message: "missing access token"}
	ErrTokenInvalid         = &Error{Kind: KindTokenInvalid, Message: "invalid token"}
	ErrTokenExpired         = &Error{Kind: KindTokenExpired, Message: "token expired"}
	ErrTokenNotYetValid     = &Error{Kind: KindTokenNotYetValid, Message: "token not yet valid"}
	ErrWrongTokenType       = &Error{Kind: KindWrongTokenType, Message: "wrong token type"}
	ErrUserNotFound         = &Error{Kind: KindUserNotFound, Message: "user not found"}
	ErrAccountDeactivated   = &Error{Kind: KindAccountDeactivated, Message: "account is deactivated"}
	ErrAccountLocked        = &Error{Kind: KindAccountLocked, Message: "account is locked"}
	ErrInvalidCredentials   = &Error{Kind: KindInvalidCredentials, Message: "invalid credentials"}
	ErrUnauthorized         = &Error{Kind: KindUnauthorized, Message: "authentication required"}
	ErrForbidden            = &Error{Kind: KindForbidden, Message: "insufficient role"}
	ErrDocumentAccessDenied = &Error{Kind: KindDocumentAccessDenied, Message: "document access denied"}
	ErrAlreadyGranted       = &Error{Kind: KindAlreadyGranted, Message: "permission already granted"}
	ErrAlreadyRevoked       = &Error{Kind: KindAlreadyRevoked, Message: "permission already revoked"}
	ErrPermissionNotFound   = &Error{Kind: KindPermissionNotFound, Message: "permission not found"}
	ErrSessionNotFound      = &Error{Kind: KindSessionNotFound, Message: "session not found"}
	ErrDocumentNotFound     = &Error{Kind: KindDocumentNotFound, Message: "document not found"}
	ErrDocumentRejected     = &Error{Kind: KindDocumentRejected, Message: "document rejected"}
	ErrValidationFailed     = &Error{Kind: KindValidationFailed, Message: "validation failed"}
	ErrStorageUnavailable   = &Error{Kind: KindStorageUnavailable, Message: "storage unavailable"}
)
