// Copyright 2025 samber.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// https://github.com/samber/ro/blob/main/licenses/LICENSE.apache.md
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package xerrors provides the small error-composition helpers used across
// the node graph: joining several teardown/finalizer errors into one, and
// turning a recovered panic value into an error.
package xerrors

import (
	"errors"
	"fmt"
)

// joinError holds multiple errors produced by independent, unordered
// operations (e.g. several finalizers run during deactivation). Its Unwrap
// form satisfies errors.Is/errors.As against any of the wrapped errors.
type joinError struct {
	errs []error
}

func (j *joinError) Error() string {
	if len(j.errs) == 1 {
		return j.errs[0].Error()
	}

	msg := fmt.Sprintf("%d errors occurred:", len(j.errs))
	for _, e := range j.errs {
		msg += "\n\t* " + e.Error()
	}

	return msg
}

func (j *joinError) Unwrap() []error {
	return j.errs
}

// Join combines non-nil errors into a single error. It returns nil if every
// argument is nil, the single error unwrapped if only one is non-nil, and a
// *joinError otherwise.
func Join(errs ...error) error {
	var nonNil []error
	for _, e := range errs {
		if e != nil {
			nonNil = append(nonNil, e)
		}
	}

	switch len(nonNil) {
	case 0:
		return nil
	case 1:
		return nonNil[0]
	default:
		return &joinError{errs: nonNil}
	}
}

// RecoverValueToError converts a value recovered via recover() into an
// error, wrapping it if it is not already one.
func RecoverValueToError(v any) error {
	if v == nil {
		return nil
	}

	if err, ok := v.(error); ok {
		return err
	}

	return fmt.Errorf("%v", v)
}

// Is is re-exported so callers need not import the standard errors package
// solely to probe a kind sentinel returned from this package.
func Is(err, target error) bool {
	return errors.Is(err, target)
}
