package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/Embers-of-the-Fire/EVE-MultiTools/internal/config"
)

// Sink 是一次运行的日志目标。写入轮转文件时 Close 会关闭文件句柄，
// stdout 目标的 Close 不做任何事。
type Sink struct {
	io.Writer
	rotator *lumberjack.Logger
}

// Path 返回日志文件路径，输出到 stdout 时为空。
func (s *Sink) Path() string {
	if s.rotator == nil {
		return ""
	}
	return s.rotator.Filename
}

// Close 关闭轮转文件，可重复调用。
func (s *Sink) Close() error {
	if s.rotator == nil {
		return nil
	}
	return s.rotator.Close()
}

// InitLogger 初始化 JSON 结构化日志并同步到 logrus 全局实例。
// 调用方在运行结束时必须关闭返回的 Sink。
func InitLogger(cfg config.GlobalConfig) (*logrus.Logger, *Sink, error) {
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, nil, fmt.Errorf("无法解析日志级别: %w", err)
	}

	sink, sinkErr := openSink(cfg)
	if sinkErr != nil {
		fmt.Fprintf(os.Stderr, "logger_fallback: %v\n", sinkErr)
	}

	logger := logrus.New()
	logger.SetLevel(level)
	logger.SetOutput(sink.Writer)
	// res:/ 路径与下载地址里的 & < > 保持原样。
	logger.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat:   time.RFC3339Nano,
		DisableHTMLEscape: true,
	})

	logrus.SetFormatter(logger.Formatter)
	logrus.SetOutput(logger.Out)
	logrus.SetLevel(logger.GetLevel())

	if sinkErr != nil {
		logger.WithFields(logrus.Fields{
			"action":   "logger_fallback",
			"log_file": cfg.LogFilePath,
		}).Warn(sinkErr.Error())
	}

	return logger, sink, nil
}

// openSink 打开日志文件；目录无法创建时退回 stdout 并返回错误。
func openSink(cfg config.GlobalConfig) (*Sink, error) {
	if cfg.LogFilePath == "" {
		return &Sink{Writer: os.Stdout}, nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.LogFilePath), 0o755); err != nil {
		return &Sink{Writer: os.Stdout}, fmt.Errorf("创建日志目录失败: %w", err)
	}

	rotator := &lumberjack.Logger{
		Filename:   cfg.LogFilePath,
		MaxSize:    cfg.LogMaxSize,
		MaxBackups: cfg.LogMaxBackups,
		Compress:   cfg.LogCompress,
		LocalTime:  true,
	}
	return &Sink{Writer: rotator, rotator: rotator}, nil
}
