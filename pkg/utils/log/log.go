// Copyright Coingro Ltd and/or licensed to Coingro Ltd under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

package log

import (
	"flag"
	"log/syslog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/coreos/go-systemd/v22/journal"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
	klog "k8s.io/klog/v2"
	crlog "sigs.k8s.io/controller-runtime/pkg/log"
	crzap "sigs.k8s.io/controller-runtime/pkg/log/zap"

	"github.com/coingro/coingro-controller/pkg/about"
)

const (
	FlagName = "log-verbosity"

	// DefaultLogFileName is the file the "default" logfile target resolves to,
	// relative to <user_data_dir>/logs.
	DefaultLogFileName = "coingro-controller.log"

	logFileMaxSizeMB = 10
	logFileBackups   = 10
)

var verbosity = flag.Int(FlagName, 0, "Verbosity level of logs (-2=Error, -1=Warn, 0=Info, >0=Debug)")

// Log is the default logger. Valid once InitLogger has been called.
var Log = crlog.Log

// The level and destination stay adjustable after the first InitLogger call,
// so that configuration loaded later (or re-read on reload) can still change
// them. The controller-runtime delegating logger can only be fulfilled once.
var (
	mu          sync.Mutex
	initialized bool
	atomicLevel = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	sink        = &switchableSyncer{ws: zapcore.Lock(os.Stderr)}
)

// BindFlags attaches logging flags to the given flag set.
func BindFlags(flags *pflag.FlagSet) {
	flags.AddGoFlag(flag.Lookup(FlagName))
}

type logBuilder struct {
	verbosity   *int
	logFile     string
	userDataDir string
}

// Option represents log configuration options.
type Option func(*logBuilder)

// WithVerbosity sets the log verbosity level.
// Verbosity levels from 2 are custom levels that increase the verbosity as the value increases.
// Standard levels are as follows:
// level | Zap level | name
// -------------------------
//
//	 1    | -1        | Debug
//	 0    |  0        | Info
//	-1    |  1        | Warn
//	-2    |  2        | Error
func WithVerbosity(verbosity int) Option {
	return func(lb *logBuilder) {
		lb.verbosity = &verbosity
	}
}

// WithLogFile adds a secondary log sink. Supported targets are a plain file
// path, "default" (a rotated file below the user data dir), "journald" and
// "syslog[:addr[:port]]".
func WithLogFile(target, userDataDir string) Option {
	return func(lb *logBuilder) {
		lb.logFile = target
		lb.userDataDir = userDataDir
	}
}

// InitLogger initializes the global logger. Calling it again adjusts the
// verbosity and the log destination of the already installed logger.
func InitLogger(opts ...Option) error {
	lb := &logBuilder{
		verbosity: verbosity,
	}

	for _, opt := range opts {
		opt(lb)
	}

	return setLogger(lb)
}

func setLogger(lb *logBuilder) error {
	mu.Lock()
	defer mu.Unlock()

	zapLevel := determineLogLevel(lb.verbosity)

	// if the zap custom level is less than debug (verbosity level 2 and above) set the klog level to the same level
	if zapLevel.Level() < zap.DebugLevel {
		flagset := flag.NewFlagSet("", flag.ContinueOnError)
		klog.InitFlags(flagset)
		_ = flagset.Set("v", strconv.Itoa(int(zapLevel.Level())*-1))
	}

	target, omitTimestamp, err := buildSink(lb)
	if err != nil {
		return err
	}
	atomicLevel.SetLevel(zapLevel.Level())
	sink.swap(target)

	if initialized {
		return nil
	}
	initialized = true

	opts := []zap.Option{
		zap.Fields(
			zap.String("service.version", about.GetBuildInfo().VersionString()),
		),
	}

	encoderConf := zap.NewProductionEncoderConfig()
	encoderConf.MessageKey = "message"
	encoderConf.TimeKey = "@timestamp"
	encoderConf.LevelKey = "log.level"
	encoderConf.NameKey = "log.logger"
	encoderConf.StacktraceKey = "error.stack_trace"
	encoderConf.EncodeTime = zapcore.ISO8601TimeEncoder
	if omitTimestamp {
		// syslog and journald stamp records themselves, and identical
		// messages allow the daemon to reduce repetitions
		encoderConf.TimeKey = zapcore.OmitKey
	}
	encoder := zapcore.NewJSONEncoder(encoderConf)

	stackTraceLevel := zap.NewAtomicLevelAt(zapcore.ErrorLevel)
	logger := crzap.New(func(o *crzap.Options) {
		o.DestWriter = sink
		o.Level = &atomicLevel
		o.StacktraceLevel = &stackTraceLevel
		o.Encoder = encoder
		o.ZapOpts = opts
	})
	crlog.SetLogger(logger)
	klog.SetLogger(logger.WithName("klog"))
	return nil
}

// switchableSyncer lets the log destination change while the logger is live.
type switchableSyncer struct {
	rw sync.RWMutex
	ws zapcore.WriteSyncer
}

func (s *switchableSyncer) Write(p []byte) (int, error) {
	s.rw.RLock()
	defer s.rw.RUnlock()
	return s.ws.Write(p)
}

func (s *switchableSyncer) Sync() error {
	s.rw.RLock()
	defer s.rw.RUnlock()
	return s.ws.Sync()
}

func (s *switchableSyncer) swap(ws zapcore.WriteSyncer) {
	s.rw.Lock()
	defer s.rw.Unlock()
	s.ws = ws
}

// buildSink combines stderr with the optional secondary log target. The
// returned bool indicates that the target keeps its own timestamps.
func buildSink(lb *logBuilder) (zapcore.WriteSyncer, bool, error) {
	stderr := zapcore.Lock(os.Stderr)
	switch {
	case lb.logFile == "":
		return stderr, false, nil
	case lb.logFile == "journald":
		if !journal.Enabled() {
			return nil, false, errors.New("journald is not available on this system")
		}
		return zapcore.NewMultiWriteSyncer(stderr, zapcore.AddSync(journalWriter{})), true, nil
	case lb.logFile == "syslog" || strings.HasPrefix(lb.logFile, "syslog:"):
		w, err := syslogWriter(lb.logFile)
		if err != nil {
			return nil, false, errors.Wrap(err, "failed to connect to syslog")
		}
		return zapcore.NewMultiWriteSyncer(stderr, zapcore.AddSync(w)), true, nil
	default:
		path := lb.logFile
		if path == "default" {
			path = filepath.Join(lb.userDataDir, "logs", DefaultLogFileName)
		}
		rotated := &lumberjack.Logger{
			Filename:   path,
			MaxSize:    logFileMaxSizeMB,
			MaxBackups: logFileBackups,
		}
		return zapcore.NewMultiWriteSyncer(stderr, zapcore.AddSync(rotated)), false, nil
	}
}

// syslogWriter connects to a syslog daemon. The target is either plain
// "syslog" (local daemon), "syslog:<socket path>" (unix domain socket) or
// "syslog:<host>:<port>" (UDP).
func syslogWriter(target string) (*syslog.Writer, error) {
	const tag = "coingro-controller"
	parts := strings.SplitN(target, ":", 3)
	switch len(parts) {
	case 1:
		return syslog.New(syslog.LOG_INFO|syslog.LOG_USER, tag)
	case 2:
		return syslog.Dial("unixgram", parts[1], syslog.LOG_INFO|syslog.LOG_USER, tag)
	default:
		return syslog.Dial("udp", net.JoinHostPort(parts[1], parts[2]), syslog.LOG_INFO|syslog.LOG_USER, tag)
	}
}

type journalWriter struct{}

func (journalWriter) Write(p []byte) (int, error) {
	if err := journal.Send(strings.TrimSuffix(string(p), "\n"), journal.PriInfo, nil); err != nil {
		return 0, err
	}
	return len(p), nil
}

func determineLogLevel(v *int) zap.AtomicLevel {
	if v != nil && *v > -3 {
		return zap.NewAtomicLevelAt(zapcore.Level(*v * -1))
	}
	return zap.NewAtomicLevelAt(zapcore.InfoLevel)
}
