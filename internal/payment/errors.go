/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package payment

import "errors"

// Error codes surfaced in PaymentResult.ErrorCode
const (
	CodeValidation          = "validation"
	CodeWalletNotFound      = "wallet_not_found"
	CodeInsufficientFunds   = "insufficient_funds"
	CodeLimitExceeded       = "limit_exceeded"
	CodeDuplicateRequest    = "duplicate_request"
	CodeDispatch            = "dispatch_failed"
	CodeAmbiguousSubmission = "ambiguous_submission"
	CodeCancelled           = "cancelled"
	CodeInternal            = "internal"
)

var (
	ErrValidation          = errors.New("validation failed")
	ErrWalletNotFound      = errors.New("wallet not found")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrLimitExceeded       = errors.New("spending limit exceeded")
	ErrDuplicateRequest    = errors.New("duplicate request")
	ErrDispatch            = errors.New("dispatch failed")
	ErrAmbiguousSubmission = errors.New("ambiguous submission")
	ErrCancelled           = errors.New("request cancelled")
	ErrInternal            = errors.New("internal error")
)

var codeSentinels = map[string]error{
	CodeValidation:          ErrValidation,
	CodeWalletNotFound:      ErrWalletNotFound,
	CodeInsufficientFunds:   ErrInsufficientFunds,
	CodeLimitExceeded:       ErrLimitExceeded,
	CodeDuplicateRequest:    ErrDuplicateRequest,
	CodeDispatch:            ErrDispatch,
	CodeAmbiguousSubmission: ErrAmbiguousSubmission,
	CodeCancelled:           ErrCancelled,
	CodeInternal:            ErrInternal,
}

// Error is a payment failure with a caller-safe message. errors.Is matches
// both the sentinel for its Code and the wrapped cause.
type Error struct {
	Code    string
	Message string
	Err     error
}

func newError(code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Err: cause}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	return codeSentinels[e.Code] == target
}

// asPaymentError returns err as *Error, collapsing anything unexpected into
// an internal error whose message hides the cause.
func asPaymentError(err error) *Error {
	var perr *Error
	if errors.As(err, &perr) {
		return perr
	}
	return newError(CodeInternal, "internal error", err)
}
