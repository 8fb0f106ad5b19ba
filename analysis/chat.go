// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package analysis

import (
	"strings"

	"github.com/danjacques/godemocut/parser"
	"github.com/danjacques/godemocut/pattern"
	"github.com/danjacques/godemocut/protocol"

	"github.com/pkg/errors"
)

// ChatOperator is the comparison a ChatRule applies.
type ChatOperator int

// Supported chat operators.
const (
	Contains ChatOperator = iota
	StartsWith
	EndsWith
)

var chatOperatorNames = []string{"Contains", "StartsWith", "EndsWith"}

func (op ChatOperator) String() string {
	if op >= 0 && int(op) < len(chatOperatorNames) {
		return chatOperatorNames[op]
	}
	return "Unknown"
}

// ParseChatOperator parses an operator name. Matching is case-insensitive.
func ParseChatOperator(v string) (ChatOperator, error) {
	for i, name := range chatOperatorNames {
		if strings.EqualFold(v, name) {
			return ChatOperator(i), nil
		}
	}
	return 0, errors.Errorf("unknown chat operator %q (valid: %s)", v, strings.Join(chatOperatorNames, ", "))
}

// ChatRule selects chat messages.
type ChatRule struct {
	Operator ChatOperator
	Pattern  string

	CaseSensitive    bool
	IgnoreColorCodes bool
	// TeamChatOnly restricts the rule to team chat. Otherwise both public and
	// team chat are searched.
	TeamChatOnly bool
}

// Validate returns an error if the rule can never match.
func (r *ChatRule) Validate() error {
	if r.Pattern == "" {
		return errors.New("chat rule has an empty pattern")
	}
	if r.Operator < Contains || r.Operator > EndsWith {
		return errors.Errorf("invalid chat operator %d", r.Operator)
	}
	return nil
}

// Matches returns true if message satisfies the rule's operator and pattern.
func (r *ChatRule) Matches(message string) bool {
	pat := r.Pattern
	if r.IgnoreColorCodes {
		message = protocol.StripColors(message)
		pat = protocol.StripColors(pat)
	}
	if !r.CaseSensitive {
		message, pat = strings.ToLower(message), strings.ToLower(pat)
	}

	switch r.Operator {
	case Contains:
		return strings.Contains(message, pat)
	case StartsWith:
		return strings.HasPrefix(message, pat)
	case EndsWith:
		return strings.HasSuffix(message, pat)
	default:
		return false
	}
}

// ChatMatch is a chat line that matched a rule.
type ChatMatch struct {
	GameStateIndex int   `json:"gameStateIndex" yaml:"gameStateIndex"`
	ServerTimeMs   int32 `json:"serverTimeMs" yaml:"serverTimeMs"`
	RuleIndex      int   `json:"ruleIndex" yaml:"ruleIndex"`

	TeamChat bool   `json:"teamChat" yaml:"teamChat"`
	Player   string `json:"player" yaml:"player"`
	Message  string `json:"message" yaml:"message"`
}

// Chat records the chat lines that match any of its rules.
type Chat struct {
	Rules []ChatRule

	Buffer[ChatMatch]
}

var _ parser.CommandProcessor = (*Chat)(nil)

// ProcessCommand implements parser.CommandProcessor.
func (a *Chat) ProcessCommand(arg *parser.CommandArg, p *parser.Parser) {
	if len(arg.Tokens) < 2 {
		return
	}
	var team bool
	switch arg.Tokens[0] {
	case "chat":
	case "tchat":
		team = true
	default:
		return
	}

	player, message := splitChat(arg.Tokens[1])
	for i := range a.Rules {
		rule := &a.Rules[i]
		if rule.TeamChatOnly && !team {
			continue
		}
		if !rule.Matches(message) {
			continue
		}

		a.Append(ChatMatch{
			GameStateIndex: arg.GameStateIndex,
			ServerTimeMs:   arg.ServerTimeMs,
			RuleIndex:      i,
			TeamChat:       team,
			Player:         protocol.StripColors(player),
			Message:        message,
		})
		return
	}
}

// splitChat splits "name: message" chat text. The \x19 escape servers insert
// after the name is removed.
func splitChat(text string) (string, string) {
	text = strings.Replace(text, "\x19", "", -1)
	if idx := strings.Index(text, ": "); idx >= 0 {
		return text[:idx], text[idx+2:]
	}
	return "", text
}

// Candidates returns a candidate cut section for each match.
func (a *Chat) Candidates() []pattern.Candidate {
	matches := a.Items()
	candidates := make([]pattern.Candidate, len(matches))
	for i, m := range matches {
		candidates[i].CutSection = pattern.CutSection{
			GameStateIndex: m.GameStateIndex,
			StartTimeMs:    m.ServerTimeMs,
			EndTimeMs:      m.ServerTimeMs,
		}
	}
	return candidates
}
