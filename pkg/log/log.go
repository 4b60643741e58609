// Package log 提供基于 zerolog 的日志工具，支持 stdout/stderr 和文件输出（lumberjack 轮转）.
package log

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/natefinch/lumberjack"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/yeisme/folderrelay/pkg/configs"
)

var (
	logger   zerolog.Logger
	initOnce sync.Once
	mu       sync.RWMutex
)

// Init 按配置初始化全局 logger，只有第一次调用生效.
func Init(cfg *configs.AppConfig) {
	initOnce.Do(func() {
		l := build(cfg.Log, cfg.Server.Debug, os.Stderr)

		mu.Lock()
		logger = l
		mu.Unlock()

		log.Logger = l
	})
}

// build 根据日志配置构造 logger，out 为人类可读输出的目标.
func build(logCfg configs.LogConfig, debug bool, out io.Writer) zerolog.Logger {
	// level
	lvl, err := zerolog.ParseLevel(strings.ToLower(logCfg.Level))
	if err != nil || logCfg.Level == "" {
		fmt.Fprintf(os.Stderr, "invalid log level %q, defaulting to info\n", logCfg.Level)

		lvl = zerolog.InfoLevel
	}

	zerolog.SetGlobalLevel(lvl)

	// outputs
	var writers []io.Writer

	if logCfg.Format == "json" {
		writers = append(writers, out)
	} else {
		// human-friendly output, set TimeFormat to time.Kitchen
		console := zerolog.NewConsoleWriter(func(w *zerolog.ConsoleWriter) {
			w.Out = out
			w.TimeFormat = time.Kitchen
		})
		writers = append(writers, console)
	}

	if logCfg.EnableFile {
		lj := &lumberjack.Logger{
			Filename:   logCfg.FilePath,
			MaxSize:    logCfg.MaxSize,
			MaxBackups: logCfg.MaxBackups,
			MaxAge:     logCfg.MaxAge,
			Compress:   logCfg.Compress,
		}
		writers = append(writers, lj)
	}

	output := io.MultiWriter(writers...)

	ctx := zerolog.New(output).With().Str("service", configs.AppName)
	if debug {
		ctx = ctx.Caller().Stack()

		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	return ctx.Timestamp().Logger()
}

// Logger 返回全局 logger；未调用 Init 时使用默认配置.
func Logger() *zerolog.Logger {
	initOnce.Do(func() {
		l := build(configs.Default().Log, false, os.Stderr)

		mu.Lock()
		logger = l
		mu.Unlock()
	})

	mu.RLock()
	defer mu.RUnlock()

	return &logger
}

// GinWriter 把 Gin 文本行转发为 zerolog 事件.
type GinWriter struct {
	logger *zerolog.Logger
	level  zerolog.Level
}

// NewGinWriter 创建 GinWriter，可赋值给 gin.DefaultWriter / gin.DefaultErrorWriter.
func NewGinWriter(logger *zerolog.Logger, level zerolog.Level) *GinWriter {
	return &GinWriter{logger: logger, level: level}
}

func (w *GinWriter) Write(p []byte) (n int, err error) {
	msg := strings.TrimSpace(string(p))
	if msg == "" {
		return len(p), nil
	}

	// 使用指定级别记录（按需可扩展解析 level）
	switch w.level {
	case zerolog.ErrorLevel, zerolog.FatalLevel, zerolog.PanicLevel:
		w.logger.Error().Msg(msg)
	case zerolog.WarnLevel:
		w.logger.Warn().Msg(msg)
	default:
		w.logger.Info().Msg(msg)
	}

	return len(p), nil
}
