package logger

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/xeocast/xeocast-admin-workers-sub001/app/config"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

const logDir = "data/logs"

// Logger 包装 zap.Logger
type Logger struct {
	*zap.Logger
	sugar      *zap.SugaredLogger
	level      zap.AtomicLevel
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
}

// ParseLevel 将配置中的级别字符串转换为 zap 级别，无法识别时返回 info
func ParseLevel(s string) zapcore.Level {
	switch s {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	case "fatal":
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

// New 使用给定配置创建新的日志记录器实例
func New(cfg config.LogConfig) *Logger {
	level := zap.NewAtomicLevelAt(ParseLevel(cfg.Level))

	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05"),
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	var encoder zapcore.Encoder
	if cfg.Format == "json" {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	} else {
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	}

	if cfg.Output != "file" {
		core := zapcore.NewCore(encoder, zapcore.AddSync(os.Stdout), level)
		return wrap(zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)), level)
	}

	if err := os.MkdirAll(logDir, 0755); err != nil {
		panic("创建日志目录失败: " + err.Error())
	}

	// 按日期命名日志文件，lumberjack 负责按大小轮转
	lumberjackLogger := &lumberjack.Logger{
		Filename:   filepath.Join(logDir, time.Now().Format("2006-01-02")+".log"),
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   cfg.Compress,
	}

	var core zapcore.Core
	fileCore := zapcore.NewCore(encoder, zapcore.AddSync(lumberjackLogger), level)
	if cfg.Level == "debug" {
		// 调试模式下同时输出到控制台
		consoleEncoderConfig := encoderConfig
		consoleEncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		consoleCore := zapcore.NewCore(zapcore.NewConsoleEncoder(consoleEncoderConfig), zapcore.AddSync(os.Stdout), level)
		core = zapcore.NewTee(fileCore, consoleCore)
	} else {
		core = fileCore
	}

	ctx, cancel := context.WithCancel(context.Background())
	l := wrap(zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)), level)
	l.cancelFunc = cancel

	l.wg.Add(1)
	go l.dailyRotateRoutine(ctx, lumberjackLogger)

	return l
}

// NewNop 返回不输出任何内容的日志记录器，用于测试
func NewNop() *Logger {
	return wrap(zap.NewNop(), zap.NewAtomicLevel())
}

// FromZap 包装已有的 zap.Logger
func FromZap(z *zap.Logger) *Logger {
	return wrap(z, zap.NewAtomicLevel())
}

func wrap(z *zap.Logger, level zap.AtomicLevel) *Logger {
	return &Logger{
		Logger: z,
		sugar:  z.Sugar(),
		level:  level,
	}
}

// dailyRotateRoutine 每天凌晨切换到新的日志文件
func (l *Logger) dailyRotateRoutine(ctx context.Context, lumberjackLogger *lumberjack.Logger) {
	defer l.wg.Done()

	for {
		now := time.Now()
		nextDay := now.AddDate(0, 0, 1)
		nextDay = time.Date(nextDay.Year(), nextDay.Month(), nextDay.Day(), 0, 0, 0, 0, nextDay.Location())

		select {
		case <-ctx.Done():
			return
		case <-time.After(nextDay.Sub(now) + time.Second):
			lumberjackLogger.Filename = filepath.Join(logDir, nextDay.Format("2006-01-02")+".log")
			// 关闭当前文件，下次写入时打开新文件
			_ = lumberjackLogger.Close()
		}
	}
}

// SetLevel 运行时调整日志级别
func (l *Logger) SetLevel(level string) {
	l.level.SetLevel(ParseLevel(level))
}

// Level 当前日志级别
func (l *Logger) Level() zapcore.Level {
	return l.level.Level()
}

// Close 关闭 logger 并等待后台任务完成
func (l *Logger) Close() error {
	if l.cancelFunc != nil {
		l.cancelFunc()
		l.wg.Wait()
	}
	return l.Logger.Sync()
}

// Sugar 返回 SugaredLogger 实例
func (l *Logger) Sugar() *zap.SugaredLogger {
	return l.sugar
}

// WithField 向日志记录器添加字段
func (l *Logger) WithField(key string, value interface{}) *zap.Logger {
	return l.Logger.With(zap.Any(key, value))
}

// WithError 向日志记录器添加错误字段
func (l *Logger) WithError(err error) *zap.Logger {
	return l.Logger.With(zap.Error(err))
}

func (l *Logger) Debugf(template string, args ...interface{}) {
	l.sugar.Debugf(template, args...)
}

func (l *Logger) Infof(template string, args ...interface{}) {
	l.sugar.Infof(template, args...)
}

func (l *Logger) Warnf(template string, args ...interface{}) {
	l.sugar.Warnf(template, args...)
}

func (l *Logger) Errorf(template string, args ...interface{}) {
	l.sugar.Errorf(template, args...)
}

func (l *Logger) Fatalf(template string, args ...interface{}) {
	l.sugar.Fatalf(template, args...)
}

// Sync 刷新缓冲区
func (l *Logger) Sync() error {
	return l.Logger.Sync()
}
