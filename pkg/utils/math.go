package utils

// math.go - математические утилиты
//
// Помощники для процентных изменений цены и порогов. Вне пакета utils
// в этом репозитории сейчас не вызываются.

import "math"

// RoundToDecimals округляет value до указанного количества знаков
// после запятой. Отрицательный decimals трактуется как 0.
func RoundToDecimals(value float64, decimals int) float64 {
	if decimals < 0 {
		decimals = 0
	}
	mult := math.Pow(10, float64(decimals))
	return math.Round(value*mult) / mult
}

// PercentChange возвращает относительное изменение from -> to в процентах,
// со знаком (положительное - рост, отрицательное - падение).
// Возвращает 0, если from <= 0 (нет корректной базы для сравнения).
func PercentChange(from, to float64) float64 {
	if from <= 0 {
		return 0
	}
	return (to - from) / from * 100
}

// AbsPercentChange - модуль PercentChange, используется там, где
// направление изменения не важно, важна только его величина.
func AbsPercentChange(from, to float64) float64 {
	return math.Abs(PercentChange(from, to))
}

// IsPercentChangeAboveThreshold проверяет, что модуль изменения from -> to
// достиг или превысил thresholdPct.
func IsPercentChangeAboveThreshold(from, to, thresholdPct float64) bool {
	return AbsPercentChange(from, to) >= thresholdPct
}

// WeightedAverage считает средневзвешенное значение values с весами
// weights. Отрицательные веса игнорируются. Возвращает 0, если длины срезов не
// совпадают, один из них пуст, или сумма положительных весов равна 0.
func WeightedAverage(values, weights []float64) float64 {
	if len(values) == 0 || len(weights) == 0 || len(values) != len(weights) {
		return 0
	}

	var sumWeighted, sumWeights float64
	for i, v := range values {
		w := weights[i]
		if w <= 0 {
			continue
		}
		sumWeighted += v * w
		sumWeights += w
	}

	if sumWeights == 0 {
		return 0
	}
	return sumWeighted / sumWeights
}

// Clamp ограничивает value диапазоном [min, max].
func Clamp(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

// CompareThreshold применяет оператор сравнения op ("<", ">", "<=", ">=", "==")
// к value и threshold. Неизвестный оператор возвращает false.
func CompareThreshold(value float64, op string, threshold float64) bool {
	switch op {
	case ">":
		return value > threshold
	case "<":
		return value < threshold
	case ">=":
		return value >= threshold
	case "<=":
		return value <= threshold
	case "==":
		return value == threshold
	default:
		return false
	}
}
