// Copyright 2025 Screentape, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package errors

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNoConfig         = errors.New("missing config")
	ErrSessionStarted   = errors.New("session has already been started")
	ErrWriterNotIdle    = errors.New("writer has already been started")
	ErrWriterNotWriting = errors.New("writer is not writing")
	ErrFinalizeTimeout  = errors.New("timed out waiting for file finalization")
	ErrProfileNotFound  = errors.New("profile not found")
)

func New(err string) error {
	return errors.New(err)
}

func Is(err, target error) bool {
	return errors.Is(err, target)
}

func As(err error, target any) bool {
	return errors.As(err, target)
}

type FatalError struct {
	err error
}

// Fatal marks an error as unrecoverable for the session.
func Fatal(err error) error {
	return &FatalError{err}
}

func (f *FatalError) Error() string {
	return "FATAL: " + f.err.Error()
}

func (f *FatalError) Unwrap() error {
	return f.err
}

func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	if _, ok := err.(*FatalError); ok {
		return true
	}
	if w := errors.Unwrap(err); w != nil {
		return IsFatal(w)
	}
	return false
}

type ErrArray struct {
	errs []error
}

func (e *ErrArray) AppendErr(err error) {
	if err != nil {
		e.errs = append(e.errs, err)
	}
}

func (e *ErrArray) ToError() error {
	if len(e.errs) == 0 {
		return nil
	}
	msgs := make([]string, 0, len(e.errs))
	for _, err := range e.errs {
		msgs = append(msgs, err.Error())
	}
	return errors.New(strings.Join(msgs, "\n"))
}

func ErrCouldNotParseConfig(err error) error {
	return fmt.Errorf("could not parse config: %v", err)
}

func ErrNotSupported(feature string) error {
	return fmt.Errorf("%s is not yet supported", feature)
}

func ErrIncompatible(container, codec interface{}) error {
	return fmt.Errorf("container %v incompatible with codec %v", container, codec)
}

func ErrInvalidInput(field string) error {
	return fmt.Errorf("missing or invalid field: %s", field)
}

func ErrCaptureFailed(kind interface{}, err error) error {
	return fmt.Errorf("%v capture failed: %v", kind, err)
}

func ErrResourceExhausted(resource string) error {
	return fmt.Errorf("insufficient %s to start session", resource)
}

func ErrElementFailed(element string, err error) error {
	return fmt.Errorf("could not create %s: %v", element, err)
}

func ErrGstPipelineError(err error) error {
	return Fatal(fmt.Errorf("gstreamer error: %v", err))
}

func ErrPadLinkFailed(src, sink, status string) error {
	return fmt.Errorf("failed to link %s to %s: %s", src, sink, status)
}

func ErrUploadFailed(location string, err error) error {
	return fmt.Errorf("%s upload failed: %v", location, err)
}
