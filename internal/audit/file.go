package audit

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type fileSink struct {
	log *zap.Logger
	f   *os.File
}

// NewFileSink appends JSON lines to path, creating parent directories.
func NewFileSink(path string) (Sink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create audit dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	return newWriterSink(f, f), nil
}

func newWriterSink(w zapcore.WriteSyncer, f *os.File) *fileSink {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.Lock(w), zap.InfoLevel)
	return &fileSink{log: zap.New(core).Named("pii_audit"), f: f}
}

func (s *fileSink) Record(_ context.Context, f Finding) error {
	fields := make([]zap.Field, 0, len(f.Counts)+3)
	fields = append(fields,
		zap.String("kind", f.Kind),
		zap.String("subject", f.Subject),
		zap.Int("total", f.Total),
	)
	for _, typ := range f.Types() {
		fields = append(fields, zap.Int("count_"+typ, f.Counts[typ]))
	}
	s.log.Info("pii findings", fields...)
	return nil
}

func (s *fileSink) Close() error {
	_ = s.log.Sync()
	if s.f != nil {
		return s.f.Close()
	}
	return nil
}
