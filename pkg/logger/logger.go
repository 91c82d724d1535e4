package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Level = zapcore.Level

const (
	DebugLevel = zapcore.DebugLevel
	InfoLevel  = zapcore.InfoLevel
	WarnLevel  = zapcore.WarnLevel
	ErrorLevel = zapcore.ErrorLevel
	PanicLevel = zapcore.PanicLevel
	FatalLevel = zapcore.FatalLevel
)

type Field = zap.Field

type Option = zap.Option

// AddCaller 输出调用位置
func AddCaller() Option { return zap.AddCaller() }

// AddCallerSkip 调用位置跳过的栈帧数
func AddCallerSkip(skip int) Option { return zap.AddCallerSkip(skip) }

type Logger struct {
	l  *zap.Logger
	al *zap.AtomicLevel
}

func New(out io.Writer, level Level, opts ...Option) *Logger {
	if out == nil {
		out = os.Stderr
	}

	al := zap.NewAtomicLevelAt(level)

	core := zapcore.NewCore(
		GetEncoder(),
		zapcore.AddSync(out),
		al,
	)
	return &Logger{l: zap.New(core, opts...), al: &al}
}

// Nop 丢弃所有日志，测试中使用
func Nop() *Logger {
	al := zap.NewAtomicLevelAt(FatalLevel)
	return &Logger{l: zap.NewNop(), al: &al}
}

// ParseLevel 解析日志级别名称，空串为 info
func ParseLevel(s string) (Level, error) {
	if s == "" {
		return InfoLevel, nil
	}
	var level Level
	if err := level.UnmarshalText([]byte(strings.ToLower(s))); err != nil {
		return InfoLevel, fmt.Errorf("parse log level %q: %w", s, err)
	}
	return level, nil
}

// 自定义Encoder
func GetEncoder() zapcore.Encoder {
	return zapcore.NewConsoleEncoder(
		zapcore.EncoderConfig{
			TimeKey:        "ts",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller_line",
			FunctionKey:    zapcore.OmitKey,
			MessageKey:     "msg",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding, // 默认换行符"\n"
			EncodeLevel:    cEncodeLevel,
			EncodeTime:     cEncodeTime,
			EncodeDuration: zapcore.SecondsDurationEncoder,
			EncodeCaller:   cEncodeCaller,
			EncodeName:     zapcore.FullNameEncoder,
		})
}

// 自定义日志级别显示
func cEncodeLevel(level zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString("[" + level.CapitalString() + "]")
}

const defaultTimeFormat = "2006-01-02 15:04:05"

// 自定义时间格式显示
func cEncodeTime(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString("[" + t.Format(defaultTimeFormat) + "]")
}

// 自定义行号显示
func cEncodeCaller(caller zapcore.EntryCaller, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString("[" + caller.TrimmedPath() + "]")
}

func (l *Logger) SetLevel(level Level) {
	if l.al != nil {
		l.al.SetLevel(level)
	}
}

func (l *Logger) Level() Level {
	if l.al == nil {
		return InfoLevel
	}
	return l.al.Level()
}

// Named 返回带名称前缀的子日志器，共享级别
func (l *Logger) Named(name string) *Logger {
	return &Logger{l: l.l.Named(name), al: l.al}
}

// With 返回携带固定字段的子日志器，共享级别
func (l *Logger) With(fields ...Field) *Logger {
	return &Logger{l: l.l.With(fields...), al: l.al}
}

func (l *Logger) Debug(msg string, fields ...Field) {
	l.l.Debug(msg, fields...)
}

func (l *Logger) Info(msg string, fields ...Field) {
	l.l.Info(msg, fields...)
}

func (l *Logger) Warn(msg string, fields ...Field) {
	l.l.Warn(msg, fields...)
}

func (l *Logger) Error(msg string, fields ...Field) {
	l.l.Error(msg, fields...)
}

func (l *Logger) Panic(msg string, fields ...Field) {
	l.l.Panic(msg, fields...)
}

func (l *Logger) Fatal(msg string, fields ...Field) {
	l.l.Fatal(msg, fields...)
}

func (l *Logger) Sync() error {
	return l.l.Sync()
}

func (l *Logger) Debugf(format string, v ...interface{}) {
	l.l.Debug(fmt.Sprintf(format, v...))
}

func (l *Logger) Infof(format string, v ...interface{}) {
	l.l.Info(fmt.Sprintf(format, v...))
}

func (l *Logger) Warnf(format string, v ...interface{}) {
	l.l.Warn(fmt.Sprintf(format, v...))
}

func (l *Logger) Errorf(format string, v ...interface{}) {
	l.l.Error(fmt.Sprintf(format, v...))
}

var std atomic.Pointer[Logger]

func init() {
	std.Store(New(os.Stderr, InfoLevel, AddCaller()))
}

func Default() *Logger { return std.Load() }

// ReplaceDefault 替换包级默认日志器，nil 被忽略
func ReplaceDefault(l *Logger) {
	if l != nil {
		std.Store(l)
	}
}

func SetLevel(level Level) { Default().SetLevel(level) }

// 包级函数多一层调用，跳过一帧使调用位置指向使用方
func pkg() *zap.Logger { return Default().l.WithOptions(zap.AddCallerSkip(1)) }

func Debug(msg string, fields ...Field) { pkg().Debug(msg, fields...) }
func Info(msg string, fields ...Field)  { pkg().Info(msg, fields...) }
func Warn(msg string, fields ...Field)  { pkg().Warn(msg, fields...) }
func Error(msg string, fields ...Field) { pkg().Error(msg, fields...) }

func Debugf(format string, v ...interface{}) { pkg().Debug(fmt.Sprintf(format, v...)) }
func Infof(format string, v ...interface{})  { pkg().Info(fmt.Sprintf(format, v...)) }
func Warnf(format string, v ...interface{})  { pkg().Warn(fmt.Sprintf(format, v...)) }
func Errorf(format string, v ...interface{}) { pkg().Error(fmt.Sprintf(format, v...)) }

func Sync() error { return Default().Sync() }
