// Package chatid converts between the two wire encodings of a Telegram chat
// id. Channels and supergroups appear as -100xxxxxxxxxx ("full" encoding)
// while legacy groups appear as -xxxxxxxxx; both refer to the same chat, and
// which one an event reports depends on the peer type the client resolved.
package chatid

// threshold below which an id is in the full channel encoding.
const threshold = -1_000_000_000_000

// Alternate returns the other encoding of chatID. Non-negative ids (users and
// private chats) have no alternate form; ok is false for those.
func Alternate(chatID int64) (int64, bool) {
	if chatID >= 0 {
		return 0, false
	}
	if chatID <= threshold {
		return chatID + 1_000_000_000_000, true // full -> legacy
	}
	return chatID - 1_000_000_000_000, true // legacy -> full
}

// Candidates returns chatID followed by its alternate encoding, if one
// exists. Used both to index mappings under every id a source event may
// report and to build the destination fallback list for delivery.
func Candidates(chatID int64) []int64 {
	if alt, ok := Alternate(chatID); ok {
		return []int64{chatID, alt}
	}
	return []int64{chatID}
}
