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
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

const killAttemptTimeout = 30 * time.Second

type watchdogState int32

const (
	watchdogIdle watchdogState = iota
	watchdogArmed
	watchdogCompleted
	watchdogFiring
)

// watchdog cancels one statement on the server once its time budget runs out.
// Exactly one of Complete and the timer wins the Armed state.
type watchdog struct {
	sqlText string
	timeout time.Duration
	killer  TaskKiller
	retry   RetryOptions
	metrics *Metrics
	logger  *zap.Logger

	state atomic.Int32
	timer *time.Timer
	fired chan struct{}
}

func newWatchdog(sqlText string, timeout time.Duration, killer TaskKiller, retry RetryOptions, metrics *Metrics, logger *zap.Logger) *watchdog {
	return &watchdog{
		sqlText: sqlText,
		timeout: timeout,
		killer:  killer,
		retry:   retry,
		metrics: metrics,
		logger:  logger,
		fired:   make(chan struct{}),
	}
}

// Arm starts the timer. The returned channel is closed after the kill rounds
// of a fired watchdog have finished.
func (w *watchdog) Arm() <-chan struct{} {
	if !w.state.CompareAndSwap(int32(watchdogIdle), int32(watchdogArmed)) {
		return w.fired
	}
	w.timer = time.AfterFunc(w.timeout, w.fire)
	return w.fired
}

// Complete disarms the watchdog. It returns false if the timer already fired.
func (w *watchdog) Complete() bool {
	if !w.state.CompareAndSwap(int32(watchdogArmed), int32(watchdogCompleted)) {
		return false
	}
	w.timer.Stop()
	return true
}

func (w *watchdog) fire() {
	if !w.state.CompareAndSwap(int32(watchdogArmed), int32(watchdogFiring)) {
		return
	}
	defer close(w.fired)

	w.logger.Warn("Statement exceeded its time budget, killing it",
		zap.Duration("timeout", w.timeout),
		zap.String("sql", w.sqlText))
	w.killTask(context.Background())
}

// killTask runs bounded rounds of lookup then kill. Each round looks the task
// up again, so a task that finished in between ends the loop.
func (w *watchdog) killTask(ctx context.Context) {
	_, err := withRetry(ctx, w.retry, w.logger, func(ctx context.Context) (string, error) {
		ctx, cancel := context.WithTimeout(ctx, killAttemptTimeout)
		defer cancel()

		id, err := w.killer.LookupTaskID(ctx, w.sqlText)
		if errors.Is(err, ErrTaskNotFound) {
			w.metrics.killAttempt(killOutcomeNotFound)
			return "", err
		}
		if err != nil {
			w.metrics.killAttempt(killOutcomeLookupError)
			return "", err
		}

		if err := w.killer.KillTask(ctx, id); err != nil {
			w.metrics.killAttempt(killOutcomeFailed)
			w.logger.Warn("Failed to kill task", zap.String("task_id", id), zap.Error(err))
			return "", err
		}
		w.metrics.killAttempt(killOutcomeKilled)
		w.logger.Info("Killed task", zap.String("task_id", id))
		return id, nil
	})

	switch {
	case err == nil:
	case errors.Is(err, ErrTaskNotFound):
		w.logger.Info("No running task left for statement", zap.String("sql", w.sqlText))
	default:
		w.logger.Warn("Giving up killing statement", zap.String("sql", w.sqlText), zap.Error(err))
	}
}
