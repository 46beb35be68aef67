// Package runctx carries the logger of a run alongside its context, so that every job logs
// with the fields of the run it belongs to.
package runctx

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Context is a context.Context that also carries the run's logger.
type Context struct {
	context.Context
	Log *logrus.Entry
}

// Background logs to the standard logger and is never cancelled.
func Background() *Context {
	return New(context.Background(), logrus.NewEntry(logrus.StandardLogger()))
}

func New(ctx context.Context, log *logrus.Entry) *Context {
	return &Context{
		Context: ctx,
		Log:     log,
	}
}

// WithCancel is context.WithCancel keeping the logger of parent.
func WithCancel(parent *Context) (*Context, context.CancelFunc) {
	c, cancel := context.WithCancel(parent.Context)
	return New(c, parent.Log), cancel
}

// WithLogFields returns a copy of parent whose logger has fields added.
func WithLogFields(parent *Context, fields logrus.Fields) *Context {
	return New(parent.Context, parent.Log.WithFields(fields))
}

// WithJob returns a copy of parent for running one job: its logger names the job and its submission index.
func WithJob(parent *Context, job fmt.Stringer, index int) *Context {
	return WithLogFields(parent, logrus.Fields{"job": job.String(), "index": index})
}

// ErrGroup is errgroup.WithContext keeping the logger of ctx.
func ErrGroup(ctx *Context) (*errgroup.Group, *Context) {
	group, goctx := errgroup.WithContext(ctx)
	return group, New(goctx, ctx.Log)
}
