package logger

import (
	"io"
	"os"
	"path"
	"time"

	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
	"github.com/rifflock/lfshook"
	"github.com/sirupsen/logrus"
)

// NewAuditLogger 创建异常审计日志：每个级别写入各自按天切割的文件。
// dir 为空时只写 out (默认 stdout)。
func NewAuditLogger(dir string, out io.Writer) (*logrus.Logger, error) {
	if out == nil {
		out = os.Stdout
	}
	l := logrus.New()
	l.SetOutput(out)
	l.SetLevel(logrus.InfoLevel)
	l.SetFormatter(&logrus.JSONFormatter{TimestampFormat: "2006-01-02 15:04:05"})
	if dir == "" {
		return l, nil
	}

	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return nil, err
	}
	writers := lfshook.WriterMap{}
	for _, level := range []logrus.Level{logrus.InfoLevel, logrus.WarnLevel, logrus.ErrorLevel} {
		w, err := rotatelogs.New(
			path.Join(dir, "audit-"+level.String()+"-%Y-%m-%d.log"),
			rotatelogs.WithMaxAge(30*24*time.Hour),
			rotatelogs.WithRotationTime(24*time.Hour),
		)
		if err != nil {
			return nil, err
		}
		writers[level] = w
	}
	l.AddHook(lfshook.NewHook(writers, &logrus.JSONFormatter{TimestampFormat: "2006-01-02 15:04:05"}))
	return l, nil
}
