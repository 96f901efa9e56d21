package store

import "strings"

// UserMessage is a user-facing rendering of a persistence error, with a
// stable code users can quote to support.
type UserMessage struct {
	Message string
	Action  string
	Code    string
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns maps technical error text (case-insensitive, substring) to
// user messages. First match wins, so specific patterns sit above general
// ones.
var errorPatterns = []errorPattern{
	{"duplicate key", UserMessage{
		Message: "A question with this ID already exists",
		Action:  "Review the failed rows for duplicates",
		Code:    "DB001",
	}},
	{"unique constraint", UserMessage{
		Message: "This value must be unique but already exists",
		Action:  "Check for duplicate entries in your file",
		Code:    "DB002",
	}},
	{"foreign key", UserMessage{
		Message: "A referenced record does not exist",
		Action:  "Ensure referenced records are created first",
		Code:    "DB003",
	}},
	{"connection refused", UserMessage{
		Message: "Unable to reach the database",
		Action:  "Please try again in a few moments",
		Code:    "DB004",
	}},
	{"connection reset", UserMessage{
		Message: "The database connection was interrupted",
		Action:  "Please try again",
		Code:    "DB005",
	}},
	{"deadlock", UserMessage{
		Message: "The database was busy with conflicting operations",
		Action:  "Please try again",
		Code:    "DB006",
	}},
	{"context deadline exceeded", UserMessage{
		Message: "The operation timed out",
		Action:  "Try a smaller file or try again later",
		Code:    "DB007",
	}},
	{"context canceled", UserMessage{
		Message: "The operation was cancelled",
		Action:  "Please try again",
		Code:    "DB008",
	}},
	{"timeout", UserMessage{
		Message: "The operation timed out",
		Action:  "Try a smaller file or try again later",
		Code:    "DB007",
	}},
}

// MapError converts a persistence error into a user message. Unrecognized
// errors map to the generic ERR000 so technical detail never reaches users.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}
	text := strings.ToLower(err.Error())
	for _, p := range errorPatterns {
		if strings.Contains(text, p.pattern) {
			return p.msg
		}
	}
	return UserMessage{
		Message: "An unexpected error occurred",
		Action:  "Please try again or contact support",
		Code:    "ERR000",
	}
}
