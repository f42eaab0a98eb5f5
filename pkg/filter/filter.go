// Package filter gives packets of a protected service an accept or drop
// verdict by matching their TCP or UDP payload against regular expressions.
//
// Expressions travel hex encoded so any byte sequence, including bytes that
// are not valid UTF-8, can be matched. A rule applies to one or both
// directions of the service's traffic: client to server (packets sent to the
// service port) and server to client (packets sent from it).
//
// Matching is byte oriented: every byte of the expression and of the payload
// is treated as one character, so "." matches exactly one byte.
package filter

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/Minei3oat/firegex/pkg/hexcodec"
	"github.com/pkg/errors"
)

var (
	ErrInvalidRule = errors.New("invalid filter rule")
	ErrInvalidMode = errors.New("invalid filter mode")
)

// Mode selects the traffic direction a rule is matched against.
type Mode byte

const (
	ModeClientToServer Mode = 'C'
	ModeServerToClient Mode = 'S'
	ModeBoth           Mode = 'B'
)

// ParseMode accepts C, S or B in either case. An empty mode means both
// directions.
func ParseMode(s string) (Mode, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "C":
		return ModeClientToServer, nil
	case "S":
		return ModeServerToClient, nil
	case "B", "":
		return ModeBoth, nil
	default:
		return 0, errors.Wrapf(ErrInvalidMode, "%q", s)
	}
}

func (m Mode) String() string {
	return string(m)
}

func (m Mode) covers(d Direction) bool {
	switch m {
	case ModeClientToServer:
		return d == ClientToServer
	case ModeServerToClient:
		return d == ServerToClient
	default:
		return true
	}
}

type Direction uint8

const (
	ClientToServer Direction = iota + 1
	ServerToClient
)

type Verdict uint8

const (
	Accept Verdict = iota
	Drop
)

func (v Verdict) String() string {
	if v == Drop {
		return "drop"
	}
	return "accept"
}

// Rule is a single filter expression. A blacklist rule drops packets whose
// payload matches; a whitelist rule drops packets whose payload does not.
type Rule struct {
	ID            int
	Pattern       []byte
	Mode          Mode
	CaseSensitive bool
	Blacklist     bool
	Active        bool
}

// NewRule decodes hexPattern into an active blacklist rule.
func NewRule(hexPattern string, mode Mode, caseSensitive bool) (Rule, error) {
	pattern, err := hexcodec.DecodeString(hexPattern)
	if err != nil {
		return Rule{}, errors.Wrap(err, "decode filter pattern")
	}
	if len(pattern) == 0 {
		return Rule{}, errors.Wrap(ErrInvalidRule, "empty pattern")
	}

	return Rule{
		Pattern:       pattern,
		Mode:          mode,
		CaseSensitive: caseSensitive,
		Blacklist:     true,
		Active:        true,
	}, nil
}

// ParseRule reads the compact form "<mode><case><hex pattern>", where mode is
// C, S or B and case is 1 for a case sensitive match or 0 otherwise. For
// example "C1666c6167" drops client packets containing "flag".
func ParseRule(s string) (Rule, error) {
	s = strings.TrimSpace(s)
	if len(s) < 3 {
		return Rule{}, errors.Wrapf(ErrInvalidRule, "%q is too short", s)
	}

	mode, err := ParseMode(s[:1])
	if err != nil {
		return Rule{}, err
	}

	var caseSensitive bool
	switch s[1] {
	case '1':
		caseSensitive = true
	case '0':
	default:
		return Rule{}, errors.Wrapf(ErrInvalidRule, "case flag %q", s[1])
	}

	return NewRule(s[2:], mode, caseSensitive)
}

// String returns the compact form understood by ParseRule.
func (r Rule) String() string {
	flag := "0"
	if r.CaseSensitive {
		flag = "1"
	}
	return r.Mode.String() + flag + hexcodec.EncodeToString(r.Pattern)
}

func (r Rule) compile() (*regexp.Regexp, error) {
	expr := string(latin1(r.Pattern))
	if !r.CaseSensitive {
		expr = "(?i)" + expr
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidRule, "rule %d: %s", r.ID, err)
	}
	return re, nil
}

// latin1 maps each byte to the rune of the same value. ASCII input is returned
// as is.
func latin1(b []byte) []byte {
	for i, c := range b {
		if c < utf8.RuneSelf {
			continue
		}
		out := make([]byte, i, len(b)*2)
		copy(out, b[:i])
		for _, c := range b[i:] {
			out = utf8.AppendRune(out, rune(c))
		}
		return out
	}
	return b
}
