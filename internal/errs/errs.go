// Package errs предоставляет таксономию ошибок уровня ядра:
// каждая ошибка классифицирована по Kind, а не по конкретному типу,
// чтобы вызывающий код мог решать, что делать дальше (retry, drop,
// деактивировать правило, эскалировать супервизору), не разбирая
// цепочку errors.As по десятку конкретных типов.
package errs

import (
	"errors"
	"fmt"
)

// Kind классифицирует ошибку для целей обработки конвейером.
type Kind int

const (
	// Unknown - ошибка не классифицирована; обрабатывается как fatal_resource.
	Unknown Kind = iota
	// TransientNetwork - сетевая ошибка, повторяемая по политике retry вызывающего.
	TransientNetwork
	// InvalidPayload - нечитаемое или неожиданное сообщение; логируется и отбрасывается.
	InvalidPayload
	// InvalidRule - правило не проходит валидацию; деактивируется в Rule Store.
	InvalidRule
	// RateLimitExceeded - превышена квота канала доставки; не повторяется.
	RateLimitExceeded
	// Duplicate - повторное событие/сообщение в окне дедупликации; не ошибка для пользователя.
	Duplicate
	// FatalResource - соединение с брокером/стором мертво; эскалируется супервизору.
	FatalResource
)

// String возвращает текстовое имя Kind, совпадающее с таксономией.
func (k Kind) String() string {
	switch k {
	case TransientNetwork:
		return "transient_network"
	case InvalidPayload:
		return "invalid_payload"
	case InvalidRule:
		return "invalid_rule"
	case RateLimitExceeded:
		return "rate_limit_exceeded"
	case Duplicate:
		return "duplicate"
	case FatalResource:
		return "fatal_resource"
	default:
		return "unknown"
	}
}

// Classified оборачивает err с приложенным Kind. Реализует Unwrap,
// так что errors.Is/errors.As продолжают работать сквозь неё.
type Classified struct {
	Kind Kind
	Err  error
}

func (c *Classified) Error() string {
	if c.Err == nil {
		return c.Kind.String()
	}
	return fmt.Sprintf("%s: %v", c.Kind, c.Err)
}

func (c *Classified) Unwrap() error {
	return c.Err
}

// Wrap классифицирует err под Kind. Возвращает nil если err == nil.
func Wrap(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &Classified{Kind: kind, Err: err}
}

// Wrapf классифицирует и оборачивает err с форматированным контекстом.
func Wrapf(kind Kind, err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return &Classified{Kind: kind, Err: fmt.Errorf(format+": %w", append(args, err)...)}
}

// Is сообщает, классифицирована ли ошибка (или любая обёрнутая ею) как kind.
func Is(err error, kind Kind) bool {
	var c *Classified
	for errors.As(err, &c) {
		if c.Kind == kind {
			return true
		}
		err = c.Err
		if err == nil {
			return false
		}
	}
	return false
}

// KindOf возвращает Kind ближайшей Classified-обёртки в цепочке,
// или Unknown если err не классифицирована.
func KindOf(err error) Kind {
	var c *Classified
	if errors.As(err, &c) {
		return c.Kind
	}
	return Unknown
}
