package session

import (
	"fmt"
	"math/rand"
)

// Canned reply texts. Internal error detail is never echoed to the user;
// anything that goes wrong degrades to replyApology.

const (
	replyApology = "Sorry, something went wrong on our side. Please try again in a moment."

	replyHelp = `I can help you file a workplace complaint confidentially.

Commands:
/complain - start a new complaint
/submit - submit the complaint for review
/cancel - discard the current complaint
/status - show your current complaint
/help - show this message

Start with /complain, describe what happened in as many messages as you need, then /submit.`

	replyNoSession = "You don't have an active complaint. Send /complain to start one."

	replyUnknownCommand = "Unknown command. Use /help to see available commands."

	replyInsufficientDetail = "Your complaint doesn't have any details yet. Please describe what happened before submitting."

	replyTranscriptFull = "This complaint has reached its maximum length. Please send /submit to file it, or /cancel to discard it."

	replyCancelled = "Your complaint has been discarded. Nothing was filed."

	replyTimeoutSubmitted = "Your complaint %s was automatically submitted after a period of inactivity. It will be reviewed shortly."
)

func replyStarted(complaintID string) string {
	return fmt.Sprintf("Your complaint %s has been opened. Describe what happened in your own words; send /submit when you're done or /cancel to discard it.", complaintID)
}

func replyAlreadyOpen(complaintID string) string {
	return fmt.Sprintf("You already have complaint %s in progress. Keep describing the issue, or send /submit when you're done.", complaintID)
}

func replySubmitted(complaintID string) string {
	return fmt.Sprintf("Thank you. Complaint %s has been submitted and will be reviewed. You'll be contacted if more detail is needed.", complaintID)
}

func replyStatus(complaintID string, messages int) string {
	return fmt.Sprintf("Complaint %s is in progress with %d message(s) recorded. Send /submit to file it or /cancel to discard it.", complaintID, messages)
}

// acks rotate so consecutive confirmations don't read identically. The
// choice carries no meaning.
var acks = []string{
	"Noted, go on.",
	"Got it. Anything else?",
	"Recorded. Feel free to add more detail.",
	"Understood. Continue whenever you're ready.",
	"Added to your complaint.",
}

func randomAck() string {
	return acks[rand.Intn(len(acks))]
}
