package utils

// logger.go - настройка структурированного логирования
//
// Обёртка над zap для единообразного логирования во всех компонентах
// market-monitor: брокере, сторе правил, вотчерах, матчере и диспетчере.
//
// Использование:
//
//	logger := utils.InitLogger(utils.LogConfig{Level: "info", Format: "json"})
//	logger.Info("watcher started", utils.WatchType("token"), utils.Target("BTC"))
//
// Глобальный логгер удобен для пакетов, которым не передают *Logger явно:
//
//	utils.InitGlobalLogger(cfg)
//	utils.Info("rule activated", utils.RuleID("r_abc"))

import (
	"math"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogConfig настраивает создаваемый логгер.
type LogConfig struct {
	Level       string // debug|info|warn|error|fatal, по умолчанию info
	Format      string // json|text, по умолчанию json
	Output      string // путь к файлу; пусто = stderr
	Development bool   // человекочитаемые stack trace, без сэмплирования
}

// Logger оборачивает *zap.Logger и его SugaredLogger вариант.
type Logger struct {
	*zap.Logger
	sugar *zap.SugaredLogger
}

// parseLevel переводит строковый уровень в zapcore.Level.
// Неизвестные и пустые значения по умолчанию становятся Info.
func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	case "fatal":
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

// InitLogger создаёт новый Logger с указанной конфигурацией.
// Никогда не возвращает nil; при невозможности открыть Output откатывается
// на stderr вместо паники.
func InitLogger(cfg LogConfig) *Logger {
	level := parseLevel(cfg.Level)

	encoderCfg := zap.NewProductionEncoderConfig()
	if cfg.Development {
		encoderCfg = zap.NewDevelopmentEncoderConfig()
	}
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	if strings.ToLower(cfg.Format) == "text" {
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
	} else {
		encoder = zapcore.NewJSONEncoder(encoderCfg)
	}

	sink := zapcore.AddSync(os.Stderr)
	if cfg.Output != "" {
		if f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); err == nil {
			sink = zapcore.AddSync(f)
		}
		// При ошибке открытия файла остаёмся на stderr, не паникуем.
	}

	core := zapcore.NewCore(encoder, sink, level)

	opts := []zap.Option{zap.AddCaller()}
	if cfg.Development {
		opts = append(opts, zap.Development())
	}

	zl := zap.New(core, opts...)
	return &Logger{Logger: zl, sugar: zl.Sugar()}
}

// With возвращает дочерний Logger с дополнительными полями.
func (l *Logger) With(fields ...zap.Field) *Logger {
	child := l.Logger.With(fields...)
	return &Logger{Logger: child, sugar: child.Sugar()}
}

// WithComponent добавляет поле component (имя пакета/подсистемы).
func (l *Logger) WithComponent(name string) *Logger {
	return l.With(Component(name))
}

// WithExchange сохранено для совместимости именования "наблюдаемой системы";
// в market-monitor соответствует типу вотчера (token/wallet/airdrop).
func (l *Logger) WithExchange(watchType string) *Logger {
	return l.With(WatchType(watchType))
}

// WithSymbol добавляет поле target (наблюдаемый токен/кошелёк/проект).
func (l *Logger) WithSymbol(target string) *Logger {
	return l.With(Target(target))
}

// WithPairID добавляет поле rule_id.
func (l *Logger) WithPairID(ruleID interface{}) *Logger {
	return l.With(RuleID(ruleID))
}

// Sugar возвращает SugaredLogger для Printf-style логирования.
func (l *Logger) Sugar() *zap.SugaredLogger {
	return l.sugar
}

// ============================================================
// Глобальный логгер
// ============================================================

var (
	globalMu     sync.RWMutex
	globalLogger *Logger
)

// InitGlobalLogger создаёт логгер и устанавливает его глобальным.
func InitGlobalLogger(cfg LogConfig) *Logger {
	l := InitLogger(cfg)
	SetGlobalLogger(l)
	return l
}

// SetGlobalLogger явно задаёт глобальный логгер (полезно в тестах).
func SetGlobalLogger(l *Logger) {
	globalMu.Lock()
	globalLogger = l
	globalMu.Unlock()
}

// GetGlobalLogger возвращает глобальный логгер, создавая его с настройками
// по умолчанию при первом обращении.
func GetGlobalLogger() *Logger {
	globalMu.RLock()
	l := globalLogger
	globalMu.RUnlock()
	if l != nil {
		return l
	}

	globalMu.Lock()
	defer globalMu.Unlock()
	if globalLogger == nil {
		globalLogger = InitLogger(LogConfig{})
	}
	return globalLogger
}

// L это короткий алиас для GetGlobalLogger.
func L() *Logger {
	return GetGlobalLogger()
}

// Debug/Info/Warn/Error логируют через глобальный логгер.
func Debug(msg string, fields ...zap.Field) { L().Debug(msg, fields...) }
func Info(msg string, fields ...zap.Field)  { L().Info(msg, fields...) }
func Warn(msg string, fields ...zap.Field)  { L().Warn(msg, fields...) }
func Error(msg string, fields ...zap.Field) { L().Error(msg, fields...) }

// Debugf/Infof/Warnf/Errorf - Printf-style варианты через sugar-логгер.
func Debugf(template string, args ...interface{}) { L().sugar.Debugf(template, args...) }
func Infof(template string, args ...interface{})  { L().sugar.Infof(template, args...) }
func Warnf(template string, args ...interface{})  { L().sugar.Warnf(template, args...) }
func Errorf(template string, args ...interface{}) { L().sugar.Errorf(template, args...) }

// ============================================================
// Конструкторы полей для предметной области market-monitor
// ============================================================

// WatchType - тип вотчера: token, wallet или airdrop.
func WatchType(v string) zap.Field { return zap.String("watch_type", v) }

// Target - наблюдаемая сущность (символ токена, адрес кошелька, имя проекта).
func Target(v string) zap.Field { return zap.String("target", v) }

// RuleID - идентификатор правила.
func RuleID(v interface{}) zap.Field { return zap.Any("rule_id", v) }

// NotifyID - идентификатор получателя уведомления в канале.
func NotifyID(v string) zap.Field { return zap.String("notify_id", v) }

// Channel - канал доставки уведомления (telegram/web/discord).
func Channel(v string) zap.Field { return zap.String("channel", v) }

// Condition - тег условия матча (price_above, token_trade, alert, ...).
func Condition(v string) zap.Field { return zap.String("condition", v) }

// Price - цена в USD.
func Price(v float64) zap.Field { return zap.Float64("price", v) }

// Volume - объём актива.
func Volume(v float64) zap.Field { return zap.Float64("volume", v) }

// Side - направление (buy/sell/long/short/in/out).
func Side(v string) zap.Field { return zap.String("side", v) }

// State - состояние процесса/вотчера.
func State(v string) zap.Field { return zap.String("state", v) }

// Latency - латентность в миллисекундах.
func Latency(ms float64) zap.Field { return zap.Float64("latency_ms", ms) }

// RequestID - идентификатор запроса к внешнему API.
func RequestID(v string) zap.Field { return zap.String("request_id", v) }

// UserID - идентификатор пользователя, на которого оформлено правило.
func UserID(v interface{}) zap.Field { return zap.Any("user_id", v) }

// Component - имя компонента/подсистемы.
func Component(v string) zap.Field { return zap.String("component", v) }

// Err - переэкспорт zap.Error для удобства импортов.
func Err(err error) zap.Field { return zap.Error(err) }

// String/Int/Int64/Float64/Bool/Any - переэкспорт часто используемых
// конструкторов полей zap, чтобы вызывающему коду не нужно было
// импортировать zap напрямую.
func String(key, value string) zap.Field          { return zap.String(key, value) }
func Int(key string, value int) zap.Field         { return zap.Int(key, value) }
func Int64(key string, value int64) zap.Field     { return zap.Int64(key, value) }
func Float64(key string, value float64) zap.Field { return zap.Float64(key, value) }
func Bool(key string, value bool) zap.Field       { return zap.Bool(key, value) }
func Any(key string, value interface{}) zap.Field { return zap.Any(key, value) }

// fieldsToInterface разворачивает zap.Field в плоский []interface{}
// ключ-значение (key1, value1, key2, value2, ...), сохраняя порядок полей.
// Формирует var-arg список пар в форме sugar-style вызовов; сейчас
// вызывается только из тестов пакета.
func fieldsToInterface(fields []zap.Field) []interface{} {
	out := make([]interface{}, 0, len(fields)*2)
	for _, f := range fields {
		out = append(out, f.Key, fieldValue(f))
	}
	return out
}

// fieldValue извлекает значение поля без полного прохода через encoder.
func fieldValue(f zap.Field) interface{} {
	switch f.Type {
	case zapcore.StringType:
		return f.String
	case zapcore.BoolType:
		return f.Integer == 1
	case zapcore.Int64Type, zapcore.Int32Type, zapcore.Int16Type, zapcore.Int8Type,
		zapcore.Uint64Type, zapcore.Uint32Type, zapcore.Uint16Type, zapcore.Uint8Type:
		return f.Integer
	case zapcore.Float64Type:
		return math.Float64frombits(uint64(f.Integer))
	default:
		return f.Interface
	}
}
