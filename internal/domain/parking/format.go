package parking

import "regexp"

// Japanese plates carry two lines: region + classification code on top,
// kana + serial on the bottom. "・" pads serials shorter than four digits.
var (
	topLinePattern = regexp.MustCompile(
		`^(?:\p{Han}{1,4}|\p{Hiragana}{3}|[\p{Han}\p{Katakana}]{3})(?:[1-8][0-9A-Za-z]{2}|[0-9]{2})$`)
	bottomLinePattern = regexp.MustCompile(
		`^(?:\p{Hiragana}|[YABEHKMT])(?:[1-9][0-9]-[0-9]{2}|・[1-9][0-9]{2}|・・[1-9][0-9]|・・・[1-9])$`)
)

// ValidTopLine reports whether s is a well-formed top plate line.
func ValidTopLine(s string) bool {
	return topLinePattern.MatchString(s)
}

// ValidBottomLine reports whether s is a well-formed bottom plate line.
func ValidBottomLine(s string) bool {
	return bottomLinePattern.MatchString(s)
}
