/*
 * Copyright 2023 Comcast Cable Communications Management, LLC
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package logger

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	logger      *zap.Logger
	atomicLevel = zap.NewAtomicLevel()
)

// LoggerConfig selects the log level, encoding and an optional extra destination.
type LoggerConfig struct {
	LogLevel string
	// LogFormat is json or console
	LogFormat string
	// LogMethod is empty, file or vector
	LogMethod      string
	LogFile        LogFile
	VectorEndpoint string
}

// LogFile describes the rotating log file used when LogMethod is file.
type LogFile struct {
	Path       string
	MaxSize    int
	MaxBackups int
	MaxAge     int
}

// Initialize builds the global zap logger. Logs always go to stderr, stdout is kept
// for the status lines of the command.
func Initialize(svc, hostname string, c LoggerConfig) error {
	atomicLevel.SetLevel(parseLevel(c.LogLevel))

	encoder := zapcore.NewJSONEncoder(ProdEncoderConf())
	if c.LogFormat == "console" {
		encoder = zapcore.NewConsoleEncoder(ProdEncoderConf())
	}

	cores := []zapcore.Core{
		zapcore.NewCore(encoder, zapcore.Lock(os.Stderr), atomicLevel),
	}

	switch c.LogMethod {
	case "":
	case "file":
		ljWriteSyncer := zapcore.AddSync(&lumberjack.Logger{
			Filename:   filepath.Join(c.LogFile.Path, svc+".log"),
			MaxSize:    c.LogFile.MaxSize, // megabytes
			MaxBackups: c.LogFile.MaxBackups,
			MaxAge:     c.LogFile.MaxAge, // days
		})
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(ProdEncoderConf()), ljWriteSyncer, atomicLevel))
	case "vector":
		u, err := url.Parse(c.VectorEndpoint)
		if err != nil {
			return fmt.Errorf("invalid vector endpoint %q: %w", c.VectorEndpoint, err)
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(ProdEncoderConf()), zapcore.AddSync(newVectorSink(u)), atomicLevel))
	default:
		return fmt.Errorf("unknown log method %q", c.LogMethod)
	}

	logger = zap.New(zapcore.NewTee(cores...), zap.AddCaller(),
		zap.Fields(
			zap.String("app", svc),
			zap.String("host", hostname),
		))

	zap.ReplaceGlobals(logger)

	return nil
}

func Flush() {
	if logger != nil {
		logger.Sync()
	}
}

func SetLevel(l string) {
	atomicLevel.SetLevel(parseLevel(l))
}

func GetLevel() string {
	return atomicLevel.Level().String()
}

func parseLevel(l string) zapcore.Level {
	switch strings.ToLower(l) {
	case "debug":
		return zap.DebugLevel
	case "info":
		return zap.InfoLevel
	case "warn":
		return zap.WarnLevel
	case "error":
		return zap.ErrorLevel
	default:
		return zap.InfoLevel
	}
}

func ProdEncoderConf() zapcore.EncoderConfig {
	encConf := zap.NewProductionEncoderConfig()
	encConf.EncodeTime = zapcore.RFC3339TimeEncoder

	return encConf
}
