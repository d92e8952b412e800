package types

import (
	"encoding/binary"
)

const (
	// ModuleName defines the module name
	ModuleName = "restaking"

	// StoreKey defines the primary module store key
	StoreKey = ModuleName
)

// Store key prefixes
var (
	ParamsKey                 = []byte{0x01}
	VaultStateKey             = []byte{0x02}
	PositionKeyPrefix         = []byte{0x03}
	TicketKeyPrefix           = []byte{0x04}
	EpochKeyPrefix            = []byte{0x05}
	WithdrawalKeyPrefix       = []byte{0x06}
	BeneficiaryIndexKeyPrefix = []byte{0x07}
	RatioSnapshotKeyPrefix    = []byte{0x08}
)

// Uint64Bytes encodes id big-endian so iteration follows numeric order
func Uint64Bytes(id uint64) []byte {
	bz := make([]byte, 8)
	binary.BigEndian.PutUint64(bz, id)
	return bz
}

// BytesUint64 decodes a big-endian id
func BytesUint64(bz []byte) uint64 {
	return binary.BigEndian.Uint64(bz)
}

// PositionKey returns the store key of a delegation position
func PositionKey(adapter, target string) []byte {
	key := append(append([]byte{}, PositionKeyPrefix...), []byte(adapter)...)
	key = append(key, 0x00)
	return append(key, []byte(target)...)
}

// TicketKey returns the store key of an undelegation ticket
func TicketKey(id uint64) []byte {
	return append(append([]byte{}, TicketKeyPrefix...), Uint64Bytes(id)...)
}

// EpochKey returns the store key of a withdrawal epoch
func EpochKey(id uint64) []byte {
	return append(append([]byte{}, EpochKeyPrefix...), Uint64Bytes(id)...)
}

// WithdrawalKey returns the store key of a pending withdrawal
func WithdrawalKey(id uint64) []byte {
	return append(append([]byte{}, WithdrawalKeyPrefix...), Uint64Bytes(id)...)
}

// BeneficiaryIndexPrefix returns the index prefix of all withdrawals owed to beneficiary
func BeneficiaryIndexPrefix(beneficiary string) []byte {
	key := append(append([]byte{}, BeneficiaryIndexKeyPrefix...), []byte(beneficiary)...)
	return append(key, 0x00)
}

// BeneficiaryIndexKey indexes a withdrawal under its beneficiary
func BeneficiaryIndexKey(beneficiary string, id uint64) []byte {
	return append(BeneficiaryIndexPrefix(beneficiary), Uint64Bytes(id)...)
}

// RatioSnapshotKey returns the store key of a ratio snapshot
func RatioSnapshotKey(seq uint64) []byte {
	return append(append([]byte{}, RatioSnapshotKeyPrefix...), Uint64Bytes(seq)...)
}
