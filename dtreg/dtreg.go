// Copyright 2024 Sergey Yurchik. All rights reserved.
// Use of this source code is governed by the MIT
// license that can be found in the LICENSE file.

// Package dtreg converts strftime-style date format patterns into two
// companion artifacts: a regular expression that recognizes a rendered date
// inside a log line, and a Go time reference layout that parses the matched
// substring back into a time value.
package dtreg

import (
	"fmt"
	"regexp"
	"strings"
)

// Locale supplies the strings a format pattern can pull in: the composite
// templates behind %c, %x and %X and the meridiem markers behind %p. It is
// an explicit parameter of the translator, there is no process-global locale
// lookup.
type Locale struct {
	DateTime string // template behind %c
	Date     string // template behind %x
	Time     string // template behind %X
	AM, PM   string // renderings of %p
}

// DefaultLocale mirrors the C locale, restricted to the directives the
// translator knows.
var DefaultLocale = Locale{
	DateTime: "%a %b %d %H:%M:%S %Y",
	Date:     "%m/%d/%y",
	Time:     "%H:%M:%S",
	AM:       "AM",
	PM:       "PM",
}

var directivePattern = regexp.MustCompile(`%[A-Za-z]`)

// Translator converts date format patterns under a fixed locale. The zero
// value is not usable; construct with NewTranslator. A Translator is
// stateless and may be shared.
type Translator struct {
	locale Locale
}

// NewTranslator returns a translator bound to the given locale.
func NewTranslator(locale Locale) *Translator {
	return &Translator{locale: locale}
}

// fragment maps a single directive onto its regex fragment. The second
// return value reports whether the fragment is a composite template that
// still contains directives of its own.
func (tr *Translator) fragment(directive string) (string, bool) {
	switch directive {
	case "%a", "%A", "%b", "%B":
		return `\w+`, false
	case "%d", "%H", "%I", "%j", "%m", "%M", "%S", "%U", "%W", "%y":
		return `\d{2}`, false
	case "%Y":
		return `\d{4,}`, false
	case "%w":
		return `\d`, false
	case "%p":
		return "(" + tr.locale.AM + "|" + tr.locale.PM + ")", false
	case "%Z":
		return `(UTC|EST|CST)?`, false
	case "%z":
		return `(\+\d{4})?`, false
	case "%c":
		return tr.locale.DateTime, true
	case "%x":
		return tr.locale.Date, true
	case "%X":
		return tr.locale.Time, true
	}
	// Unknown directives pass through as literals.
	return directive, false
}

// Translate converts a format pattern into a regex fragment matching any
// rendering of that pattern. Composite directives are expanded repeatedly
// until none remain, literal spaces tolerate any whitespace, and the whole
// expression is wrapped in a capturing group so the matched substring is
// recoverable.
func (tr *Translator) Translate(pattern string) string {
	result := pattern
	for {
		composite := false
		result = directivePattern.ReplaceAllStringFunc(result, func(d string) string {
			frag, comp := tr.fragment(d)
			if comp {
				composite = true
			}
			return frag
		})
		if !composite {
			break
		}
	}
	result = strings.ReplaceAll(result, " ", `\s`)
	return "(" + result + ")"
}

// Regexp compiles the translation of pattern.
func (tr *Translator) Regexp(pattern string) (*regexp.Regexp, error) {
	return regexp.Compile(tr.Translate(pattern))
}

// layouts maps directives onto Go reference-layout elements for parsing.
var layouts = map[string]string{
	"%Y": "2006",
	"%y": "06",
	"%m": "01",
	"%d": "02",
	"%H": "15",
	"%I": "03",
	"%M": "04",
	"%S": "05",
	"%a": "Mon",
	"%A": "Monday",
	"%b": "Jan",
	"%B": "January",
	"%p": "PM",
	"%j": "002",
	"%z": "-0700",
	"%Z": "MST",
}

// Layout converts a format pattern into a Go time reference layout suitable
// for time.ParseInLocation. Composite directives are expanded first.
// Directives with no layout equivalent (week numbers, weekday numbers,
// unknown letters) yield an error: dates rendered with them cannot be
// converted back into timestamps.
func (tr *Translator) Layout(pattern string) (string, error) {
	expanded := pattern
	for {
		composite := false
		expanded = directivePattern.ReplaceAllStringFunc(expanded, func(d string) string {
			switch d {
			case "%c":
				composite = true
				return tr.locale.DateTime
			case "%x":
				composite = true
				return tr.locale.Date
			case "%X":
				composite = true
				return tr.locale.Time
			}
			return d
		})
		if !composite {
			break
		}
	}

	var bad string
	layout := directivePattern.ReplaceAllStringFunc(expanded, func(d string) string {
		if l, ok := layouts[d]; ok {
			return l
		}
		if bad == "" {
			bad = d
		}
		return d
	})
	if bad != "" {
		return "", fmt.Errorf("directive %q cannot be parsed back into a time", bad)
	}
	return layout, nil
}
