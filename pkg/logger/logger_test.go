package logger

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func Test_LOG(t *testing.T) {
	defer func() { _ = Sync() }()
	Info("Info msg")
	Warn("Warn msg")
	Error("Error msg")
	Debug("Debug msg", Int("age", 3))
}

func Test_ConsoleFormat(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, DebugLevel)
	l.Info("下单成功", String("order", "o-1"), Duration("latency", 150*time.Millisecond))

	out := buf.String()
	if !strings.Contains(out, "[INFO]") {
		t.Errorf("缺少级别标记: %s", out)
	}
	if !strings.Contains(out, "下单成功") || !strings.Contains(out, "o-1") {
		t.Errorf("缺少消息或字段: %s", out)
	}
}

func Test_SetLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, WarnLevel)
	l.Info("hidden")
	if buf.Len() != 0 {
		t.Fatalf("Warn 级别下不应输出 Info: %s", buf.String())
	}

	l.SetLevel(DebugLevel)
	l.Debug("shown")
	if !strings.Contains(buf.String(), "shown") {
		t.Errorf("调整级别后应输出 Debug: %s", buf.String())
	}
	if l.Level() != DebugLevel {
		t.Errorf("级别应为 debug, got %v", l.Level())
	}
}

func Test_NamedShareLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, ErrorLevel)
	child := l.Named("checkout").With(String("session", "s-1"))

	l.SetLevel(InfoLevel)
	child.Info("named")

	out := buf.String()
	if !strings.Contains(out, "checkout") || !strings.Contains(out, "s-1") {
		t.Errorf("子日志器应带名称和字段: %s", out)
	}
}

func Test_ReplaceDefault(t *testing.T) {
	old := Default()
	defer ReplaceDefault(old)

	var buf bytes.Buffer
	ReplaceDefault(New(&buf, DebugLevel))
	Debugf("test %s", "custom logger")
	if !strings.Contains(buf.String(), "test custom logger") {
		t.Errorf("默认日志器未替换: %s", buf.String())
	}

	ReplaceDefault(nil)
	if Default() == nil {
		t.Error("nil 不应替换默认日志器")
	}
}

func Test_ParseLevel(t *testing.T) {
	cases := map[string]Level{
		"":      InfoLevel,
		"debug": DebugLevel,
		"WARN":  WarnLevel,
		"error": ErrorLevel,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		if err != nil {
			t.Fatalf("解析 %q 失败: %v", in, err)
		}
		if got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}

	if _, err := ParseLevel("verbose"); err == nil {
		t.Error("未知级别应返回错误")
	}
}

func Test_NewWithConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "logs", "app.log")

	l, err := NewWithConfig(Config{Level: "info", Output: "file", File: path, MaxSizeMB: 1})
	if err != nil {
		t.Fatalf("创建文件日志失败: %v", err)
	}
	l.Info("写入文件", Err(errors.New("boom")))
	_ = l.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("读取日志文件失败: %v", err)
	}
	if !strings.Contains(string(data), "写入文件") {
		t.Errorf("日志文件内容不正确: %s", data)
	}
}

func Test_NewWithConfigErrors(t *testing.T) {
	if _, err := NewWithConfig(Config{Output: "syslog"}); err == nil {
		t.Error("未知输出应返回错误")
	}
	if _, err := NewWithConfig(Config{Output: "file"}); err == nil {
		t.Error("文件输出缺少路径应返回错误")
	}
	if _, err := NewWithConfig(Config{Output: "file", File: filepath.Join(t.TempDir(), "a.log"), Rotate: "hourly"}); err == nil {
		t.Error("未知滚动方式应返回错误")
	}
}

func Test_Nop(t *testing.T) {
	l := Nop()
	l.Error("discarded")
	l.Infof("discarded %d", 1)
}
