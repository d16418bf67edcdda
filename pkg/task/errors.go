// Package task is the shell around every pipeline handler: admission control,
// the abort taxonomy, and the dispatcher that drains queued work against the
// local task endpoints.
package task

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/webcomponents/catalog/pkg/fetch"
)

// ErrorCode identifies a permanent ingestion failure. Never delete or reuse
// values, they are persisted on entities.
type ErrorCode int

const (
	CodeLibraryParseMetadata       ErrorCode = 1
	CodeLibraryParseContributors   ErrorCode = 2
	CodeLibraryParseStats          ErrorCode = 3
	CodeLibraryParseBower          ErrorCode = 4
	CodeLibraryLicense             ErrorCode = 5
	CodeLibraryCollectionParseTags ErrorCode = 6
	CodeLibraryCollectionMaster    ErrorCode = 7
	CodeLibraryElementParseTags    ErrorCode = 8
	CodeLibraryNoVersion           ErrorCode = 9
	CodeVersionUTF                 ErrorCode = 10
	CodeVersionParseBower          ErrorCode = 11
	CodeVersionMissingBower        ErrorCode = 12
	CodeLibraryParseRegistry       ErrorCode = 13
	CodeLibraryNoPackage           ErrorCode = 14
	CodeLibraryNoGithub            ErrorCode = 15
)

// PermanentError aborts a task for good: the condition will not clear on its
// own, so the queue must not redeliver. Handlers still commit entity state
// before returning one.
type PermanentError struct {
	Code    ErrorCode
	Message string
}

func (e *PermanentError) Error() string {
	return e.Message
}

// JSON renders the code and message the way they are persisted on entities.
func (e *PermanentError) JSON() string {
	encoded, _ := json.Marshal(map[string]interface{}{"code": e.Code, "message": e.Message})
	return string(encoded)
}

// Permanent builds a PermanentError.
func Permanent(code ErrorCode, format string, args ...interface{}) *PermanentError {
	return &PermanentError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// RetryError aborts a task transiently: state so far is committed and the
// queue redelivers later.
type RetryError struct {
	Message string
}

func (e *RetryError) Error() string {
	return e.Message
}

// Retry builds a RetryError.
func Retry(format string, args ...interface{}) *RetryError {
	return &RetryError{Message: fmt.Sprintf(format, args...)}
}

// IsAbort reports whether err is one of the controlled abort kinds. Aborted
// transactions still commit whatever the handler wrote before bailing out,
// unlike genuinely unexpected errors.
func IsAbort(err error) bool {
	var permanent *PermanentError
	var retry *RetryError
	var quota *fetch.QuotaError
	return errors.As(err, &permanent) || errors.As(err, &retry) || errors.As(err, &quota)
}
