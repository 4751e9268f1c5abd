package common

import "crypto/sha256"

// AccountDiscriminator is the 8 byte prefix of an Anchor account, name is
// the account type name as declared by the program ("Whirlpool").
func AccountDiscriminator(name string) [8]byte {
	return discriminator("account:" + name)
}

// InstructionDiscriminator is the 8 byte prefix of Anchor instruction data,
// name is the snake case instruction name ("swap_base_input").
func InstructionDiscriminator(name string) [8]byte {
	return discriminator("global:" + name)
}

func discriminator(preimage string) [8]byte {
	sum := sha256.Sum256([]byte(preimage))
	var out [8]byte
	copy(out[:], sum[:8])
	return out
}
