package codec

import (
	"crypto/sha256"

	bin "github.com/gagliardetto/binary"
)

const (
	accountNamespace = "account"
	globalNamespace  = "global"
)

// DiscriminatorLen is the length of every record and operation prefix.
const DiscriminatorLen = 8

func sighash(namespace, name string) bin.TypeID {
	sum := sha256.Sum256([]byte(namespace + ":" + name))
	return bin.TypeIDFromBytes(sum[:DiscriminatorLen])
}

// AccountDiscriminator returns the 8-byte prefix of a record type.
func AccountDiscriminator(accountName string) bin.TypeID {
	return sighash(accountNamespace, accountName)
}

// OpDiscriminator returns the 8-byte prefix of an operation payload.
func OpDiscriminator(snakeName string) bin.TypeID {
	return sighash(globalNamespace, snakeName)
}
