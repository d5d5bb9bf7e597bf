// Copyright The Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

// Package logging provides the structured logger interface used
// throughout this module, with a logrus-backed standard implementation
// plus a no-op implementation for callers that don't want output.
package logging

import (
	"context"
	"io"

	"github.com/sirupsen/logrus"
)

// Level is a logging severity level.
type Level int

const (
	// Error error log level
	Error Level = iota
	// Warn warn log level
	Warn
	// Info info log level
	Info
	// Debug debug log level
	Debug
)

// Logger provides the interface for logger implementations used by this
// module.
type Logger interface {
	Debug(fmt string, a ...interface{})
	Info(fmt string, a ...interface{})
	Error(fmt string, a ...interface{})
	Warn(fmt string, a ...interface{})

	WithFields(fields map[string]interface{}) Logger
	GetFields() map[string]interface{}

	GetLevel() Level
	SetLevel(level Level)
}

// StandardLogger is the default logrus-backed logger implementation.
type StandardLogger struct {
	logger *logrus.Logger
	fields map[string]interface{}
}

// New returns a new standard logger.
func New() *StandardLogger {
	std := logrus.New()
	std.SetLevel(logrus.InfoLevel)
	return &StandardLogger{logger: std}
}

// SetOutput sets the destination the logger writes to.
func (l *StandardLogger) SetOutput(w io.Writer) {
	l.logger.SetOutput(w)
}

// SetFormatter sets the logrus formatter used to render log lines.
func (l *StandardLogger) SetFormatter(formatter logrus.Formatter) {
	l.logger.SetFormatter(formatter)
}

// WithFields provides additional fields to include in log output.
func (l *StandardLogger) WithFields(fields map[string]interface{}) Logger {
	cp := &StandardLogger{logger: l.logger}
	merged := make(map[string]interface{}, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	cp.fields = merged
	return cp
}

// GetFields returns the additional fields configured on this logger.
func (l *StandardLogger) GetFields() map[string]interface{} {
	return l.fields
}

func (l *StandardLogger) entry() *logrus.Entry {
	return l.logger.WithFields(l.fields)
}

// Debug logs at debug level.
func (l *StandardLogger) Debug(f string, a ...interface{}) {
	l.entry().Debugf(f, a...)
}

// Info logs at info level.
func (l *StandardLogger) Info(f string, a ...interface{}) {
	l.entry().Infof(f, a...)
}

// Error logs at error level.
func (l *StandardLogger) Error(f string, a ...interface{}) {
	l.entry().Errorf(f, a...)
}

// Warn logs at warn level.
func (l *StandardLogger) Warn(f string, a ...interface{}) {
	l.entry().Warnf(f, a...)
}

// GetLevel gets the standard logger's level.
func (l *StandardLogger) GetLevel() Level {
	switch l.logger.GetLevel() {
	case logrus.ErrorLevel:
		return Error
	case logrus.WarnLevel:
		return Warn
	case logrus.DebugLevel:
		return Debug
	default:
		return Info
	}
}

// SetLevel sets the standard logger's level.
func (l *StandardLogger) SetLevel(level Level) {
	switch level {
	case Error: // reports warnings as well as errors
		l.logger.SetLevel(logrus.WarnLevel)
	case Warn:
		l.logger.SetLevel(logrus.WarnLevel)
	case Debug:
		l.logger.SetLevel(logrus.DebugLevel)
	default:
		l.logger.SetLevel(logrus.InfoLevel)
	}
}

var globalLogger = New()

// Get returns the standard logger used throughout this module.
//
// Deprecated. Do not rely on the global logger.
func Get() *StandardLogger {
	return globalLogger
}

// NoOpLogger is a logging implementation that does nothing.
type NoOpLogger struct {
	fields map[string]interface{}
}

// NewNoOpLogger instantiates a new NoOpLogger.
func NewNoOpLogger() *NoOpLogger {
	return &NoOpLogger{}
}

func (*NoOpLogger) Debug(string, ...interface{}) {}
func (*NoOpLogger) Info(string, ...interface{})  {}
func (*NoOpLogger) Error(string, ...interface{}) {}
func (*NoOpLogger) Warn(string, ...interface{})  {}

// WithFields returns a copy of this logger carrying the given fields.
func (l *NoOpLogger) WithFields(fields map[string]interface{}) Logger {
	cp := &NoOpLogger{fields: make(map[string]interface{}, len(l.fields)+len(fields))}
	for k, v := range l.fields {
		cp.fields[k] = v
	}
	for k, v := range fields {
		cp.fields[k] = v
	}
	return cp
}

// GetFields returns the additional fields configured on this logger.
func (l *NoOpLogger) GetFields() map[string]interface{} {
	return l.fields
}

// GetLevel always reports Debug, since a no-op logger discards every level.
func (*NoOpLogger) GetLevel() Level { return Debug }

// SetLevel is a no-op.
func (*NoOpLogger) SetLevel(Level) {}

// RequestContext represents the request context used to store data related
// to a request that could be attached to logs.
type RequestContext struct {
	ClientAddr         string
	ReqID              uint64
	ReqMethod          string
	ReqPath            string
	HTTPRequestContext HTTPRequestContext
}

// HTTPRequestContext carries HTTP-specific request metadata.
type HTTPRequestContext struct {
	Header map[string][]string
}

// Fields returns the RequestContext's fields in the form expected by
// Logger.WithFields.
func (rctx RequestContext) Fields() map[string]interface{} {
	return map[string]interface{}{
		"client_addr": rctx.ClientAddr,
		"req_id":      rctx.ReqID,
		"req_method":  rctx.ReqMethod,
		"req_path":    rctx.ReqPath,
	}
}

type requestContextKey string

const (
	reqCtxKey        = requestContextKey("request-context")
	httpReqCtxKey    = requestContextKey("http-request-context")
	decisionIDCtxKey = requestContextKey("decision-id")
)

// NewContext returns a copy of parent with an associated RequestContext.
func NewContext(parent context.Context, val *RequestContext) context.Context {
	return context.WithValue(parent, reqCtxKey, val)
}

// FromContext returns the RequestContext associated with ctx, if any.
func FromContext(ctx context.Context) (*RequestContext, bool) {
	val, ok := ctx.Value(reqCtxKey).(*RequestContext)
	return val, ok
}

// WithHTTPRequestContext returns a copy of parent with an associated
// HTTPRequestContext.
func WithHTTPRequestContext(parent context.Context, val *HTTPRequestContext) context.Context {
	return context.WithValue(parent, httpReqCtxKey, val)
}

// HTTPRequestContextFromContext returns the HTTPRequestContext associated
// with ctx, if any.
func HTTPRequestContextFromContext(ctx context.Context) (*HTTPRequestContext, bool) {
	val, ok := ctx.Value(httpReqCtxKey).(*HTTPRequestContext)
	return val, ok
}

// WithDecisionID returns a copy of parent with the given decision ID
// attached.
func WithDecisionID(parent context.Context, id string) context.Context {
	return context.WithValue(parent, decisionIDCtxKey, id)
}

// DecisionIDFromContext returns the decision ID associated with ctx, if any.
func DecisionIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(decisionIDCtxKey).(string)
	return id, ok
}
