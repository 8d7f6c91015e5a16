// Package kind is the nostr event kind, referred to as kind.T so that
// constants read as kind.TextNote rather than repeating the protocol name.
package kind

import "strconv"

// T is the event type in the nostr protocol.
type T uint16

func (ki T) ToInt() int       { return int(ki) }
func (ki T) ToUint16() uint16 { return uint16(ki) }

const (
	// ProfileMetadata stores user profile data, pet names, bio, lightning
	// address, etc.
	ProfileMetadata T = 0
	// TextNote is a standard short text note of plain text a la twitter
	TextNote T = 1
	// RecommendRelay is a relay recommendation.
	RecommendRelay T = 2
	// FollowList is a list of pubkeys of users that should be shown as
	// follows in a timeline.
	FollowList T = 3
	// EncryptedDirectMessage is a NIP-04 direct message.
	EncryptedDirectMessage T = 4
	// Deletion requests deletion of the events it references.
	Deletion T = 5
	Repost   T = 6
	Reaction T = 7
	// LongFormContent is a NIP-23 article.
	LongFormContent T = 30023

	ReplaceableStart              T = 10000
	ReplaceableEnd                T = 20000
	EphemeralStart                T = 20000
	EphemeralEnd                  T = 30000
	ParameterizedReplaceableStart T = 30000
	ParameterizedReplaceableEnd   T = 40000
)

var names = map[T]string{
	ProfileMetadata:        "ProfileMetadata",
	TextNote:               "TextNote",
	RecommendRelay:         "RecommendRelay",
	FollowList:             "FollowList",
	EncryptedDirectMessage: "EncryptedDirectMessage",
	Deletion:               "Deletion",
	Repost:                 "Repost",
	Reaction:               "Reaction",
	LongFormContent:        "LongFormContent",
}

// String returns the name of well known kinds and the number otherwise.
func (ki T) String() string {
	if s, ok := names[ki]; ok {
		return s
	}
	return strconv.Itoa(int(ki))
}

func (ki T) IsReplaceable() bool {
	return ki == ProfileMetadata || ki == FollowList ||
		(ki >= ReplaceableStart && ki < ReplaceableEnd)
}

func (ki T) IsEphemeral() bool {
	return ki >= EphemeralStart && ki < EphemeralEnd
}

func (ki T) IsParameterizedReplaceable() bool {
	return ki >= ParameterizedReplaceableStart &&
		ki < ParameterizedReplaceableEnd
}
