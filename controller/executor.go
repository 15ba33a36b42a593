// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package controller

// Executor runs slow cryptographic work off the consensus thread. Task
// results are re-admitted to the consensus thread through the controller's
// completion queue before they touch state.
type Executor interface {
	Execute(task func())
}

// GoExecutor runs each task on its own goroutine.
type GoExecutor struct{}

func (GoExecutor) Execute(task func()) {
	go task()
}
