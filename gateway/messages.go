package gateway

import "fmt"

// Mention renders a user reference in chat markup.
func Mention(userID string) string { return "<@" + userID + ">" }

// PromptMessage asks candidate to take on requester's task.
func PromptMessage(requestID, candidate, requester, text string) Message {
	return Message{
		Text:  fmt.Sprintf("%s, %s has asked you to:", Mention(candidate), Mention(requester)),
		Quote: text,
		Prompt: &Prompt{
			CallbackID: requestID,
			Actions:    []Action{ActionAccept, ActionReject},
		},
	}
}

// AcceptedMessage announces that user took requester's task.
func AcceptedMessage(user, requester, text string) Message {
	return Message{
		Text:  fmt.Sprintf("%s accepted %s's request to:", Mention(user), Mention(requester)),
		Quote: text,
	}
}

// AbortedMessage tells the requester that every candidate declined.
func AbortedMessage(text string) Message {
	return Message{
		Text:  "I'm sorry. It appears that everyone rejected your request :cry:",
		Quote: text,
	}
}

// GivenUpMessage tells the requester that nobody answered in time.
func GivenUpMessage(requester string, notified int) Message {
	return Message{
		Text: fmt.Sprintf("%s, %d people were notified but no one has accepted yet. We give up! :rage:",
			Mention(requester), notified),
	}
}

// ExpiredMessage answers a response to a request that no longer exists.
func ExpiredMessage() Message {
	return Message{
		Text: "It looks like this request has timed out before you could accept it, " +
			"or someone else already accepted it.",
	}
}

// InsufficientCandidatesMessage rejects a request naming too few people.
func InsufficientCandidatesMessage(minimum int) Message {
	return Message{
		Text: fmt.Sprintf("You need to specify at least %d active users in your request", minimum),
	}
}

// FailureMessage reports a platform error to the requester.
func FailureMessage(err error) Message {
	return Message{
		Text:  "Something went wrong while trying to contact the chat platform, please try again later. Error was:",
		Quote: err.Error(),
	}
}
