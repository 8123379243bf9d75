package RegenDecoder

import (
	"fmt"
	"strings"
)

// UnknownChar 未收录的点划序列统一映射到这个占位符
const UnknownChar = '_'

// MorseCodeMap 默认字母表: 点划序列 -> 字符
var MorseCodeMap = map[string]rune{
	// 字母
	".-": 'A', "-...": 'B', "-.-.": 'C', "-..": 'D', ".": 'E',
	"..-.": 'F', "--.": 'G', "....": 'H', "..": 'I', ".---": 'J',
	"-.-": 'K', ".-..": 'L', "--": 'M', "-.": 'N', "---": 'O',
	".--.": 'P', "--.-": 'Q', ".-.": 'R', "...": 'S', "-": 'T',
	"..-": 'U', "...-": 'V', ".--": 'W', "-..-": 'X', "-.--": 'Y',
	"--..": 'Z',
	// 数字
	".----": '1', "..---": '2', "...--": '3', "....-": '4', ".....": '5',
	"-....": '6', "--...": '7', "---..": '8', "----.": '9', "-----": '0',
	// 标点符号
	"-..-.": '/',
	"-.--.": '(', // KN
	"-...-": '=', // BT
	".-.-.": '+', // AR
	// 带音标的字母
	".--.-": 'Á',
	".-.-":  'Ä',
	"..-..": 'É',
	"--.--": 'Ñ',
	"---.":  'Ö',
	"..--":  'Ü',
}

// CodeTable is an immutable two-way Morse alphabet.
type CodeTable struct {
	forward map[string]rune
	reverse map[rune]string
	longest int
}

var defaultTable = mustCodeTable(MorseCodeMap)

// DefaultCodeTable returns the shared table built from MorseCodeMap.
func DefaultCodeTable() *CodeTable {
	return defaultTable
}

// NewCodeTable builds the forward and reverse lookups from a sequence -> symbol map.
// Sequences must be non-empty strings over '.' and '-', and no symbol may appear twice.
func NewCodeTable(codes map[string]rune) (*CodeTable, error) {
	if len(codes) == 0 {
		return nil, fmt.Errorf("%w: empty alphabet", ErrInvalidAlphabet)
	}
	t := &CodeTable{
		forward: make(map[string]rune, len(codes)),
		reverse: make(map[rune]string, len(codes)),
	}
	for seq, sym := range codes {
		if seq == "" || strings.Trim(seq, ".-") != "" {
			return nil, fmt.Errorf("%w: bad sequence %q", ErrInvalidAlphabet, seq)
		}
		if sym == UnknownChar || sym == ' ' {
			return nil, fmt.Errorf("%w: reserved symbol %q", ErrInvalidAlphabet, sym)
		}
		if prev, dup := t.reverse[sym]; dup {
			return nil, fmt.Errorf("%w: %q mapped by both %q and %q", ErrInvalidAlphabet, sym, prev, seq)
		}
		t.forward[seq] = sym
		t.reverse[sym] = seq
		if len(seq) > t.longest {
			t.longest = len(seq)
		}
	}
	return t, nil
}

func mustCodeTable(codes map[string]rune) *CodeTable {
	t, err := NewCodeTable(codes)
	if err != nil {
		panic(err)
	}
	return t
}

// Lookup never fails: anything not in the table, including "", yields UnknownChar.
func (t *CodeTable) Lookup(seq string) rune {
	if sym, ok := t.forward[seq]; ok {
		return sym
	}
	return UnknownChar
}

// Encode returns the sequence for sym. Lower-case letters are folded to upper case.
func (t *CodeTable) Encode(sym rune) (string, bool) {
	if seq, ok := t.reverse[sym]; ok {
		return seq, true
	}
	up := []rune(strings.ToUpper(string(sym)))
	if len(up) == 1 {
		seq, ok := t.reverse[up[0]]
		return seq, ok
	}
	return "", false
}

// Len is the number of symbols in the table.
func (t *CodeTable) Len() int {
	return len(t.forward)
}

// Longest is the element count of the longest sequence.
func (t *CodeTable) Longest() int {
	return t.longest
}
