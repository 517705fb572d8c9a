package breakdown

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
	"github.com/warp/profit-sharing/plan"
)

// =============================================================================
// FIELD FORMATTING
// =============================================================================

const (
	BadgeWidth   = 7
	NameWidth    = 25
	MoneyWidth   = 13
	PercentWidth = 4
)

// amountFormatter prints an absolute cent amount as 1,234.56.
var amountFormatter = money.NewFormatter(2, ".", ",", "", "1")

// Money renders a monetary field: blank when zero, thousands separators,
// trailing minus for negatives, right-justified to width.
func Money(d decimal.Decimal, width int) string {
	cents := plan.Cents(d).Shift(2).IntPart()
	if cents == 0 {
		return strings.Repeat(" ", width)
	}
	s := amountFormatter.Format(abs(cents))
	if cents < 0 {
		s += "-"
	}
	return padLeft(s, width)
}

// Percent renders a whole percentage, blank when zero.
func Percent(d decimal.Decimal, width int) string {
	p := d.Round(0).IntPart()
	if p == 0 {
		return strings.Repeat(" ", width)
	}
	return padLeft(strconv.FormatInt(p, 10), width)
}

// Badge left-justifies a badge number.
func Badge(n int) string { return padRight(strconv.Itoa(n), BadgeWidth) }

// Name left-justifies and truncates a name.
func Name(s string) string { return padRight(truncate(s, NameWidth), NameWidth) }

func abs(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}

func truncate(s string, width int) string {
	if utf8.RuneCountInString(s) <= width {
		return s
	}
	return string([]rune(s)[:width])
}

func padLeft(s string, width int) string {
	n := utf8.RuneCountInString(s)
	if n >= width {
		return s
	}
	return strings.Repeat(" ", width-n) + s
}

func padRight(s string, width int) string {
	n := utf8.RuneCountInString(s)
	if n >= width {
		return s
	}
	return s + strings.Repeat(" ", width-n)
}
