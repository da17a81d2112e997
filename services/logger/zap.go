package logsvc

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/trezcool/calisma/core"
	"github.com/trezcool/calisma/core/legacykey"
)

// ZapLogger writes structured logs. It backs the admin CLI and the tests (with zaptest).
type ZapLogger struct {
	z *zap.Logger
}

var _ core.Logger = (*ZapLogger)(nil)

func NewZapLogger(z *zap.Logger) *ZapLogger {
	return &ZapLogger{z: z}
}

// NewProductionZapLogger builds a JSON logger, or a development one when debug is set.
func NewProductionZapLogger(conf *core.Config) (*ZapLogger, error) {
	var (
		z   *zap.Logger
		err error
	)
	if conf.Debug {
		z, err = zap.NewDevelopment()
	} else {
		z, err = zap.NewProduction()
	}
	if err != nil {
		return nil, err
	}
	return NewZapLogger(z.With(zap.String("env", conf.Env), zap.String("build", conf.Build))), nil
}

func (l *ZapLogger) Sync() error {
	return l.z.Sync()
}

func fields(args []interface{}) []zap.Field {
	fs := make([]zap.Field, 0, len(args))
	for i, arg := range args {
		switch val := arg.(type) {
		case error:
			fs = append(fs, zap.Error(val))
		case legacykey.Key:
			fs = append(fs, zap.Stringer("document", val))
		case map[string]interface{}:
			for k, v := range val {
				fs = append(fs, zap.Any(k, v))
			}
		default:
			fs = append(fs, zap.Any(fmt.Sprintf("arg%d", i), val))
		}
	}
	return fs
}

func (l *ZapLogger) Debug(msg string, args ...interface{}) { l.z.Debug(msg, fields(args)...) }
func (l *ZapLogger) Info(msg string, args ...interface{})  { l.z.Info(msg, fields(args)...) }
func (l *ZapLogger) Warn(msg string, args ...interface{})  { l.z.Warn(msg, fields(args)...) }
func (l *ZapLogger) Error(msg string, args ...interface{}) { l.z.Error(msg, fields(args)...) }
func (l *ZapLogger) Fatal(msg string, args ...interface{}) { l.z.Fatal(msg, fields(args)...) }
