package raceblock

// KeyPrefix namespaces every store key written by a Block.
const KeyPrefix = "race_block_"

// Key returns the store key coordinating the logical key k.
func Key(k string) string {
	return KeyPrefix + k
}
