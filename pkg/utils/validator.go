package utils

// validator.go - валидация правил и входных данных
//
// Используется Rule Processor (internal/rules) при регистрации правила
// (ValidateWatchType, ValidateChannel); диспетчер валидаторы не вызывает.

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"
)

var (
	ErrInvalidWatchType = errors.New("invalid watch type")
	ErrInvalidTarget    = errors.New("invalid target")
	ErrInvalidCondition = errors.New("invalid condition operator")
	ErrInvalidThreshold = errors.New("invalid threshold")
	ErrInvalidChannel   = errors.New("invalid notification channel")
	ErrInvalidEmail     = errors.New("invalid email address")
	ErrInvalidAPIKey    = errors.New("invalid api key")
)

// ============================================================
// Watch type
// ============================================================

// SupportedWatchTypes перечисляет допустимые типы правил.
var SupportedWatchTypes = []string{"token", "wallet", "airdrop"}

// ValidateWatchType проверяет, что watchType - один из поддерживаемых типов.
func ValidateWatchType(watchType string) error {
	watchType = NormalizeWatchType(watchType)
	if watchType == "" {
		return fmt.Errorf("%w: empty", ErrInvalidWatchType)
	}
	if !IsValidWatchType(watchType) {
		return fmt.Errorf("%w: %q", ErrInvalidWatchType, watchType)
	}
	return nil
}

// NormalizeWatchType приводит watchType к нижнему регистру без пробелов.
func NormalizeWatchType(watchType string) string {
	return strings.ToLower(strings.TrimSpace(watchType))
}

// IsValidWatchType - проверка без создания error (для быстрых условий).
func IsValidWatchType(watchType string) bool {
	watchType = NormalizeWatchType(watchType)
	for _, wt := range SupportedWatchTypes {
		if wt == watchType {
			return true
		}
	}
	return false
}

// GetSupportedWatchTypes возвращает копию списка поддерживаемых типов.
func GetSupportedWatchTypes() []string {
	out := make([]string, len(SupportedWatchTypes))
	copy(out, SupportedWatchTypes)
	return out
}

// ============================================================
// Target (символ токена / адрес кошелька / имя проекта)
// ============================================================

var tokenSymbolPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{0,19}$`)
var evmAddressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)
var solanaAddressPattern = regexp.MustCompile(`^[1-9A-HJ-NP-Za-km-z]{32,44}$`)

// ValidateTokenSymbol проверяет формат символа токена (например BTC, 1INCH).
func ValidateTokenSymbol(symbol string) error {
	if !tokenSymbolPattern.MatchString(symbol) {
		return fmt.Errorf("%w: symbol %q", ErrInvalidTarget, symbol)
	}
	return nil
}

// NormalizeTokenSymbol приводит символ токена к верхнему регистру.
func NormalizeTokenSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// ValidateWalletAddress проверяет формат адреса кошелька для указанной сети.
// chain: "solana" проверяется как base58-адрес, всё остальное - как EVM hex-адрес.
func ValidateWalletAddress(address, chain string) error {
	if strings.EqualFold(chain, "solana") {
		if !solanaAddressPattern.MatchString(address) {
			return fmt.Errorf("%w: solana address %q", ErrInvalidTarget, address)
		}
		return nil
	}
	if !evmAddressPattern.MatchString(address) {
		return fmt.Errorf("%w: evm address %q", ErrInvalidTarget, address)
	}
	return nil
}

// IsValidTokenSymbol - проверка без error.
func IsValidTokenSymbol(symbol string) bool {
	return ValidateTokenSymbol(symbol) == nil
}

// ============================================================
// Condition (оператор сравнения + порог)
// ============================================================

// SupportedOperators перечисляет допустимые операторы условий правил.
var SupportedOperators = []string{">", "<", ">=", "<=", "==", "change_pct"}

// ValidateOperator проверяет, что op - поддерживаемый оператор условия.
func ValidateOperator(op string) error {
	op = strings.TrimSpace(op)
	for _, supported := range SupportedOperators {
		if supported == op {
			return nil
		}
	}
	return fmt.Errorf("%w: operator %q", ErrInvalidCondition, op)
}

// ValidateThreshold проверяет, что порог - конечное вещественное число.
// Для процентных условий (change_pct) порог дополнительно должен быть > 0.
func ValidateThreshold(threshold float64, isPercent bool) error {
	if math.IsNaN(threshold) || math.IsInf(threshold, 0) {
		return fmt.Errorf("%w: not finite", ErrInvalidThreshold)
	}
	if isPercent && threshold <= 0 {
		return fmt.Errorf("%w: percent threshold must be positive, got %v", ErrInvalidThreshold, threshold)
	}
	return nil
}

// ============================================================
// Notification channel
// ============================================================

// SupportedChannels перечисляет поддерживаемые каналы доставки уведомлений.
var SupportedChannels = []string{"telegram", "web", "discord"}

// ValidateChannel проверяет, что channel - поддерживаемый канал доставки.
func ValidateChannel(channel string) error {
	channel = NormalizeChannel(channel)
	if channel == "" {
		return fmt.Errorf("%w: empty", ErrInvalidChannel)
	}
	if !IsValidChannel(channel) {
		return fmt.Errorf("%w: %q", ErrInvalidChannel, channel)
	}
	return nil
}

// NormalizeChannel приводит имя канала к нижнему регистру без пробелов.
func NormalizeChannel(channel string) string {
	return strings.ToLower(strings.TrimSpace(channel))
}

// IsValidChannel - проверка без error.
func IsValidChannel(channel string) bool {
	channel = NormalizeChannel(channel)
	for _, c := range SupportedChannels {
		if c == channel {
			return true
		}
	}
	return false
}

// GetSupportedChannels возвращает копию списка поддерживаемых каналов.
func GetSupportedChannels() []string {
	out := make([]string, len(SupportedChannels))
	copy(out, SupportedChannels)
	return out
}

// ============================================================
// Email / API key (получатели web-канала, учётные данные внешних API)
// ============================================================

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// ValidateEmail проверяет базовый формат email-адреса.
func ValidateEmail(email string) error {
	if !emailPattern.MatchString(email) || strings.Count(email, "@") != 1 {
		return fmt.Errorf("%w: %q", ErrInvalidEmail, email)
	}
	return nil
}

// IsValidEmail - проверка без error.
func IsValidEmail(email string) bool {
	return ValidateEmail(email) == nil
}

var apiKeyPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{16,}$`)

// ValidateAPIKey проверяет базовый формат ключа внешнего API
// (priceapi/alertsapi/EVM или Solana RPC-провайдера).
func ValidateAPIKey(apiKey string) error {
	if !apiKeyPattern.MatchString(apiKey) {
		return fmt.Errorf("%w: length or charset", ErrInvalidAPIKey)
	}
	return nil
}

// IsValidAPIKey - проверка без error.
func IsValidAPIKey(apiKey string) bool {
	return ValidateAPIKey(apiKey) == nil
}

// ============================================================
// Агрегированная валидация правила
// ============================================================

// RuleConfigValidation собирает поля правила, достаточные для
// сквозной проверки при регистрации в Rule Processor.
type RuleConfigValidation struct {
	WatchType string
	Target    string
	Chain     string // для watch_type=wallet
	Operator  string
	Threshold float64
	IsPercent bool
	Channel   string
}

// ValidateRuleConfig прогоняет все проверки правила и возвращает
// первую встреченную ошибку.
func ValidateRuleConfig(cfg RuleConfigValidation) error {
	if err := ValidateWatchType(cfg.WatchType); err != nil {
		return err
	}
	if cfg.Target == "" {
		return fmt.Errorf("%w: empty", ErrInvalidTarget)
	}
	if NormalizeWatchType(cfg.WatchType) == "wallet" {
		if err := ValidateWalletAddress(cfg.Target, cfg.Chain); err != nil {
			return err
		}
	}
	if err := ValidateOperator(cfg.Operator); err != nil {
		return err
	}
	if err := ValidateThreshold(cfg.Threshold, cfg.IsPercent); err != nil {
		return err
	}
	if err := ValidateChannel(cfg.Channel); err != nil {
		return err
	}
	return nil
}

// ============================================================
// ValidationErrors - накопление нескольких ошибок валидации
// ============================================================

// FieldError описывает ошибку валидации одного поля.
type FieldError struct {
	Field   string
	Message string
}

// ValidationErrors - набор ошибок по нескольким полям сразу,
// удобно для возврата из Rule Processor при регистрации правила.
type ValidationErrors []FieldError

// Add добавляет ошибку по полю с текстовым сообщением.
func (e *ValidationErrors) Add(field, message string) {
	*e = append(*e, FieldError{Field: field, Message: message})
}

// AddError добавляет ошибку по полю, если err не nil.
func (e *ValidationErrors) AddError(field string, err error) {
	if err == nil {
		return
	}
	e.Add(field, err.Error())
}

// HasErrors возвращает true, если накоплена хотя бы одна ошибка.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Error реализует интерфейс error, объединяя все ошибки через "; ".
func (e ValidationErrors) Error() string {
	parts := make([]string, 0, len(e))
	for _, fe := range e {
		parts = append(parts, fmt.Sprintf("%s: %s", fe.Field, fe.Message))
	}
	return strings.Join(parts, "; ")
}
