/*
 * Copyright 2025 Google LLC
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *    https://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */
package database

import (
	"errors"
	"fmt"
)

// ErrTaskNotFound is returned by LookupTaskID when nothing is running the statement.
var ErrTaskNotFound = errors.New("no running task found for statement")

// ErrUnknownColumnType is returned by MapDataType for type names without a mapping.
var ErrUnknownColumnType = errors.New("unknown column type")

// ErrDatabaseConnection represents errors that occur during database connection attempts
type ErrDatabaseConnection struct {
	Msg string
	Err error
}

// ErrTaskLookup represents a failure to query the server's process list
type ErrTaskLookup struct {
	Msg string
	Err error
}

// ErrKillFailed represents a failed attempt to terminate a task
type ErrKillFailed struct {
	TaskID string
	Err    error
}

// ErrInvalidTaskID is returned when a task id cannot be used in a kill statement
type ErrInvalidTaskID struct {
	TaskID string
}

// ErrCancelled represents errors when an operation is cancelled
type ErrCancelled struct {
	Msg string
	Err error
}

func (e *ErrDatabaseConnection) Error() string {
	return fmt.Sprintf("database connection error: %s: %v", e.Msg, e.Err)
}

func (e *ErrDatabaseConnection) Unwrap() error {
	return e.Err
}

func (e *ErrTaskLookup) Error() string {
	return fmt.Sprintf("task lookup error: %s: %v", e.Msg, e.Err)
}

func (e *ErrTaskLookup) Unwrap() error {
	return e.Err
}

func (e *ErrKillFailed) Error() string {
	return fmt.Sprintf("failed to kill task %s: %v", e.TaskID, e.Err)
}

func (e *ErrKillFailed) Unwrap() error {
	return e.Err
}

func (e *ErrInvalidTaskID) Error() string {
	return fmt.Sprintf("invalid task id %q", e.TaskID)
}

func (e *ErrCancelled) Error() string {
	return fmt.Sprintf("operation cancelled: %s: %v", e.Msg, e.Err)
}

func (e *ErrCancelled) Unwrap() error {
	return e.Err
}
