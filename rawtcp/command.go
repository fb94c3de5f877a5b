package rawtcp

import (
	"strings"
)

// CommandKind is the classification of one line of console input.
type CommandKind int

const (
	// CommandEmpty is a blank or whitespace-only line. It is ignored.
	CommandEmpty CommandKind = iota
	// CommandExit ends the console.
	CommandExit
	// CommandSend carries bytes to write to the device.
	CommandSend
)

func (k CommandKind) String() string {
	switch k {
	case CommandEmpty:
		return "empty"
	case CommandExit:
		return "exit"
	case CommandSend:
		return "send"
	default:
		return "unknown"
	}
}

// Command is one classified line of console input.
type Command struct {
	Kind    CommandKind
	Payload []byte // Set for CommandSend only
}

// ParseCommand classifies a line typed at the console. Anything that is not
// blank and not the exit keyword must be hex; otherwise a *FormatError is
// returned and the line should be reported and dropped.
func ParseCommand(line string) (Command, error) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return Command{Kind: CommandEmpty}, nil
	}
	if strings.EqualFold(trimmed, ExitKeyword) {
		return Command{Kind: CommandExit}, nil
	}

	payload, err := ParseHex(trimmed)
	if err != nil {
		return Command{}, err
	}
	return Command{Kind: CommandSend, Payload: payload}, nil
}
