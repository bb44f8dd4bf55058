package dispatch

import (
	"fmt"
	"strings"

	"BetSentinel/internal/errs"
)

// Command is a parsed operator message.
type Command struct {
	Verb     string
	Args     []string
	Selector string // account name from an @name token
	All      bool   // @all
}

// Parse splits "verb [args...]" and pulls out one optional @name or @all
// selector from any position. Verbs are case-insensitive; a leading "/" and a
// "@botname" suffix on the verb (Telegram style) are dropped.
func Parse(text string) (Command, error) {
	fields := strings.Fields(text)
	var cmd Command
	var rest []string
	for _, f := range fields {
		if len(f) > 1 && f[0] == '@' {
			name := f[1:]
			if cmd.Selector != "" || cmd.All {
				return Command{}, fmt.Errorf("%w: more than one target", errs.ErrCommand)
			}
			if strings.EqualFold(name, "all") {
				cmd.All = true
			} else {
				cmd.Selector = name
			}
			continue
		}
		rest = append(rest, f)
	}
	if len(rest) == 0 {
		return Command{}, fmt.Errorf("%w: empty command", errs.ErrCommand)
	}
	verb := strings.TrimPrefix(rest[0], "/")
	if i := strings.Index(verb, "@"); i > 0 {
		verb = verb[:i]
	}
	cmd.Verb = strings.ToLower(verb)
	cmd.Args = rest[1:]
	if cmd.Verb == "" {
		return Command{}, fmt.Errorf("%w: empty command", errs.ErrCommand)
	}
	return cmd, nil
}
