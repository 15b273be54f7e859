// Package logger provides opinionated logging capabilities for the relay
package logger

import (
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options controls where and how log lines are written.
type Options struct {
	// Debug lowers the level to debug.
	Debug bool

	// JSON switches to the JSON encoder, used by the serverless entry point
	// where logs are collected by the platform.
	JSON bool

	// Writer defaults to stdout. The MCP stdio server points this at stderr
	// because stdout carries the protocol.
	Writer io.Writer
}

// NewLogger returns a colored console logger on stdout.
func NewLogger(debug bool) *zap.Logger {
	return New(Options{Debug: debug})
}

// New builds a logger from opts.
func New(opts Options) *zap.Logger {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "time"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	if opts.JSON {
		encoderConfig.EncodeLevel = zapcore.LowercaseLevelEncoder
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	} else {
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	}

	level := zap.InfoLevel
	if opts.Debug {
		level = zap.DebugLevel
	}

	w := opts.Writer
	if w == nil {
		w = os.Stdout
	}

	core := zapcore.NewCore(encoder, zapcore.AddSync(w), level)

	return zap.New(core, zap.AddCaller())
}
