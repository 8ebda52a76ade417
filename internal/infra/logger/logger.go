package logger

import (
	"os"
	"path"
	"time"

	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options 日志配置
type Options struct {
	Dir    string        // 日志目录，空值表示只输出到控制台
	Env    string        // dev 时控制台输出 Debug 级别
	MaxAge time.Duration // 文件保留时长
}

type LoggerService struct {
	Log *zap.Logger
}

func NewLoggerService(opts Options) (*LoggerService, error) {
	if opts.MaxAge <= 0 {
		opts.MaxAge = 30 * 24 * time.Hour
	}

	// 自定义时间格式：2025-12-14 18:00:00 (去掉毫秒)
	customTimeEncoder := func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(t.Format("2006-01-02 15:04:05"))
	}
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = customTimeEncoder
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder

	consoleLevel := zap.InfoLevel
	if opts.Env == "dev" {
		consoleLevel = zap.DebugLevel
	}
	consoleConf := encoderConfig
	consoleConf.EncodeLevel = zapcore.CapitalColorLevelEncoder
	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(consoleConf), zapcore.AddSync(os.Stdout), consoleLevel),
	}

	if opts.Dir != "" {
		if err := os.MkdirAll(opts.Dir, os.ModePerm); err != nil {
			return nil, err
		}
		// 真正的日期文件名 (如 app-2025-12-14.log)
		writer, err := rotatelogs.New(
			path.Join(opts.Dir, "app-%Y-%m-%d.log"),
			rotatelogs.WithMaxAge(opts.MaxAge),
			rotatelogs.WithRotationTime(24*time.Hour),
		)
		if err != nil {
			return nil, err
		}
		// 文件输出：纯 JSON，方便 ES 分析
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), zapcore.AddSync(writer), zap.InfoLevel))
	}

	return &LoggerService{
		Log: zap.New(zapcore.NewTee(cores...), zap.AddCaller()),
	}, nil
}

// Named 返回带模块名的子 Logger
func (s *LoggerService) Named(name string) *zap.Logger {
	return s.Log.Named(name)
}

// Sync 刷新缓冲区，退出前调用
func (s *LoggerService) Sync() {
	_ = s.Log.Sync()
}
