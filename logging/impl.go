package logging

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// appenderSet is shared by a logger tree.
type appenderSet struct {
	mu        sync.RWMutex
	appenders []Appender
}

func (set *appenderSet) add(appender Appender) {
	set.mu.Lock()
	set.appenders = append(set.appenders, appender)
	set.mu.Unlock()
}

func (set *appenderSet) list() []Appender {
	set.mu.RLock()
	defer set.mu.RUnlock()
	return set.appenders[:len(set.appenders):len(set.appenders)]
}

type impl struct {
	name  string
	level AtomicLevel
	inUTC bool
	out   *appenderSet
}

func newImpl(name string, level Level, inUTC bool, appenders ...Appender) *impl {
	return &impl{
		name:  name,
		level: NewAtomicLevelAt(level),
		inUTC: inUTC,
		out:   &appenderSet{appenders: appenders},
	}
}

func (imp *impl) AddAppender(appender Appender) {
	imp.out.add(appender)
}

func (imp *impl) SetLevel(level Level) {
	imp.level.Set(level)
}

func (imp *impl) GetLevel() Level {
	return imp.level.Get()
}

func (imp *impl) Level() zapcore.Level {
	return imp.GetLevel().AsZap()
}

func (imp *impl) Sublogger(subname string) Logger {
	name := subname
	if imp.name != "" {
		name = imp.name + "." + subname
	}
	return &impl{
		name:  name,
		level: NewAtomicLevelAt(imp.level.Get()),
		inUTC: imp.inUTC,
		out:   imp.out,
	}
}

func (imp *impl) Sync() error {
	var err error
	for _, appender := range imp.out.list() {
		err = multierr.Append(err, appender.Sync())
	}
	return err
}

// AsZap builds a zap logger at this logger's level. Appenders that are full zap cores, such as
// test observers, are teed in.
func (imp *impl) AsZap() *zap.SugaredLogger {
	base := zap.Must(zapConfig(imp.GetLevel()).Build())
	cores := []zapcore.Core{base.Core()}
	for _, appender := range imp.out.list() {
		if core, ok := appender.(zapcore.Core); ok {
			cores = append(cores, core)
		}
	}
	return zap.New(zapcore.NewTee(cores...), zap.AddCaller()).Sugar().Named(imp.name)
}

func (imp *impl) Desugar() *zap.Logger {
	return imp.AsZap().Desugar()
}

func (imp *impl) Named(name string) *zap.SugaredLogger {
	return imp.AsZap().Named(name)
}

func (imp *impl) With(args ...interface{}) *zap.SugaredLogger {
	return imp.AsZap().With(args...)
}

func (imp *impl) WithOptions(opts ...zap.Option) *zap.SugaredLogger {
	return imp.AsZap().WithOptions(opts...)
}

// emit must be called exactly two frames below the public log method.
func (imp *impl) emit(level Level, msg string, fields []zapcore.Field) {
	entry := zapcore.Entry{
		Level:      level.AsZap(),
		Time:       time.Now(),
		LoggerName: imp.name,
		Message:    msg,
		Caller:     callerAt(3),
	}
	if imp.inUTC {
		entry.Time = entry.Time.UTC()
	}
	for _, appender := range imp.out.list() {
		if err := appender.Write(entry, fields); err != nil {
			fmt.Fprintln(os.Stderr, err)
		}
	}
}

func (imp *impl) log(level Level, args []interface{}) {
	if level >= imp.level.Get() {
		imp.emit(level, fmt.Sprint(args...), nil)
	}
}

func (imp *impl) logf(level Level, template string, args []interface{}) {
	if level >= imp.level.Get() {
		imp.emit(level, fmt.Sprintf(template, args...), nil)
	}
}

func (imp *impl) logw(level Level, msg string, keysAndValues []interface{}) {
	if level >= imp.level.Get() {
		imp.emit(level, msg, fieldsOf(keysAndValues))
	}
}

// fieldsOf pairs up alternating keys and values. A trailing key without a value is kept with
// an error as its value.
func fieldsOf(keysAndValues []interface{}) []zapcore.Field {
	fields := make([]zapcore.Field, 0, (len(keysAndValues)+1)/2)
	for i := 0; i < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			key = fmt.Sprint(keysAndValues[i])
		}
		if i+1 == len(keysAndValues) {
			fields = append(fields, zap.Any(key, errors.New("missing log value")))
			break
		}
		fields = append(fields, zap.Any(key, keysAndValues[i+1]))
	}
	return fields
}

func (imp *impl) Debug(args ...interface{})                   { imp.log(DEBUG, args) }
func (imp *impl) Debugf(template string, args ...interface{}) { imp.logf(DEBUG, template, args) }
func (imp *impl) Debugw(msg string, kv ...interface{})        { imp.logw(DEBUG, msg, kv) }
func (imp *impl) Info(args ...interface{})                    { imp.log(INFO, args) }
func (imp *impl) Infof(template string, args ...interface{})  { imp.logf(INFO, template, args) }
func (imp *impl) Infow(msg string, kv ...interface{})         { imp.logw(INFO, msg, kv) }
func (imp *impl) Warn(args ...interface{})                    { imp.log(WARN, args) }
func (imp *impl) Warnf(template string, args ...interface{})  { imp.logf(WARN, template, args) }
func (imp *impl) Warnw(msg string, kv ...interface{})         { imp.logw(WARN, msg, kv) }
func (imp *impl) Error(args ...interface{})                   { imp.log(ERROR, args) }
func (imp *impl) Errorf(template string, args ...interface{}) { imp.logf(ERROR, template, args) }
func (imp *impl) Errorw(msg string, kv ...interface{})        { imp.logw(ERROR, msg, kv) }

// The Fatal methods log at error level and exit.

func (imp *impl) Fatal(args ...interface{}) {
	imp.log(ERROR, args)
	os.Exit(1)
}

func (imp *impl) Fatalf(template string, args ...interface{}) {
	imp.logf(ERROR, template, args)
	os.Exit(1)
}

func (imp *impl) Fatalw(msg string, kv ...interface{}) {
	imp.logw(ERROR, msg, kv)
	os.Exit(1)
}

func callerAt(skip int) zapcore.EntryCaller {
	pc, file, line, ok := runtime.Caller(skip + 1)
	if !ok {
		return zapcore.EntryCaller{}
	}
	caller := zapcore.EntryCaller{Defined: true, PC: pc, File: file, Line: line}
	if fn := runtime.FuncForPC(pc); fn != nil {
		caller.Function = fn.Name()
	}
	return caller
}
