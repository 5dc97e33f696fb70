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

package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config controls log output. The zero value logs nothing.
type Config struct {
	Level   string `yaml:"level"`    // debug, info, warn, or error
	JSON    bool   `yaml:"json"`     // json encoding instead of console
	File    string `yaml:"file"`     // also write logs to this file
	MaxSize int    `yaml:"max_size"` // max log file size in MB before rotation
	MaxAge  int    `yaml:"max_age"`  // max log file age in days
}

type Logger interface {
	Debugw(msg string, keysAndValues ...interface{})
	Infow(msg string, keysAndValues ...interface{})
	Warnw(msg string, err error, keysAndValues ...interface{})
	Errorw(msg string, err error, keysAndValues ...interface{})
	WithValues(keysAndValues ...interface{}) Logger
	WithName(name string) Logger
}

var (
	defaultLogger Logger = &zapLogger{l: zap.NewNop().Sugar()}

	// pkgLogger carries an extra caller skip for the package-level helpers
	pkgLogger Logger = defaultLogger
)

// Init builds the process logger. Safe to call more than once, last wins.
func Init(conf *Config, name string) error {
	if conf == nil {
		conf = &Config{}
	}

	level := zapcore.InfoLevel
	if conf.Level != "" {
		if err := level.UnmarshalText([]byte(conf.Level)); err != nil {
			return err
		}
	}

	var encoder zapcore.Encoder
	if conf.JSON {
		encoder = zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	} else {
		encoderConf := zap.NewDevelopmentEncoderConfig()
		encoderConf.EncodeTime = zapcore.ISO8601TimeEncoder
		encoder = zapcore.NewConsoleEncoder(encoderConf)
	}

	core := zapcore.NewCore(encoder, zapcore.AddSync(os.Stderr), level)
	if conf.File != "" {
		fileWriter := zapcore.AddSync(&lumberjack.Logger{
			Filename: conf.File,
			MaxSize:  conf.MaxSize,
			MaxAge:   conf.MaxAge,
		})
		fileCore := zapcore.NewCore(
			zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
			fileWriter, level,
		)
		core = zapcore.NewTee(core, fileCore)
	}

	l := zap.New(core, zap.AddCaller()).Named(name)
	defaultLogger = &zapLogger{l: l.Sugar()}
	pkgLogger = &zapLogger{l: l.WithOptions(zap.AddCallerSkip(1)).Sugar()}
	return nil
}

func GetLogger() Logger {
	return defaultLogger
}

func Debugw(msg string, keysAndValues ...interface{}) {
	pkgLogger.Debugw(msg, keysAndValues...)
}

func Infow(msg string, keysAndValues ...interface{}) {
	pkgLogger.Infow(msg, keysAndValues...)
}

func Warnw(msg string, err error, keysAndValues ...interface{}) {
	pkgLogger.Warnw(msg, err, keysAndValues...)
}

func Errorw(msg string, err error, keysAndValues ...interface{}) {
	pkgLogger.Errorw(msg, err, keysAndValues...)
}

type zapLogger struct {
	l *zap.SugaredLogger
}

func (z *zapLogger) Debugw(msg string, keysAndValues ...interface{}) {
	z.l.Debugw(msg, keysAndValues...)
}

func (z *zapLogger) Infow(msg string, keysAndValues ...interface{}) {
	z.l.Infow(msg, keysAndValues...)
}

func (z *zapLogger) Warnw(msg string, err error, keysAndValues ...interface{}) {
	if err != nil {
		keysAndValues = append([]interface{}{"error", err}, keysAndValues...)
	}
	z.l.Warnw(msg, keysAndValues...)
}

func (z *zapLogger) Errorw(msg string, err error, keysAndValues ...interface{}) {
	if err != nil {
		keysAndValues = append([]interface{}{"error", err}, keysAndValues...)
	}
	z.l.Errorw(msg, keysAndValues...)
}

func (z *zapLogger) WithValues(keysAndValues ...interface{}) Logger {
	return &zapLogger{l: z.l.With(keysAndValues...)}
}

func (z *zapLogger) WithName(name string) Logger {
	return &zapLogger{l: z.l.Named(name)}
}
