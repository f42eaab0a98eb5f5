package filter

import (
	"regexp"

	"github.com/Minei3oat/firegex/pkg/packet"
)

type compiledRule struct {
	Rule
	re *regexp.Regexp
}

// Set holds the compiled rules of one service. It is safe for concurrent use
// by the pipeline workers.
type Set struct {
	port  uint16
	rules []compiledRule
}

// NewSet compiles rules for the service listening on port. Rules without an ID
// are numbered by position starting at 1. Inactive rules are validated but never
// matched. A zero port treats every TCP and UDP packet as client to server.
func NewSet(port uint16, rules []Rule) (*Set, error) {
	set := &Set{port: port}
	for i, r := range rules {
		if r.ID == 0 {
			r.ID = i + 1
		}
		re, err := r.compile()
		if err != nil {
			return nil, err
		}
		if r.Active {
			set.rules = append(set.rules, compiledRule{Rule: r, re: re})
		}
	}
	return set, nil
}

// Len is the number of active rules.
func (s *Set) Len() int {
	return len(s.rules)
}

// Direction reports which way p travels relative to the service. ok is false
// for packets that do not belong to the service.
func (s *Set) Direction(p *packet.Packet) (Direction, bool) {
	src, dst, ok := p.Ports()
	switch {
	case !ok:
		return 0, false
	case s.port == 0 || dst == s.port:
		return ClientToServer, true
	case src == s.port:
		return ServerToClient, true
	default:
		return 0, false
	}
}

// Verdict matches the payload of p against the active rules in order and
// returns Drop with the ID of the first rule that rejects it. Packets outside
// the service and packets without payload are accepted with rule 0.
func (s *Set) Verdict(p *packet.Packet) (Verdict, int) {
	if len(p.Payload) == 0 {
		return Accept, 0
	}
	dir, ok := s.Direction(p)
	if !ok {
		return Accept, 0
	}

	payload := latin1(p.Payload)
	for i := range s.rules {
		r := &s.rules[i]
		if !r.Mode.covers(dir) {
			continue
		}
		if r.re.Match(payload) == r.Blacklist {
			return Drop, r.ID
		}
	}
	return Accept, 0
}
