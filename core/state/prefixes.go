package state

import "otoledger/crypto"

var (
	recordPrefix = []byte("record:")
	noncePrefix  = []byte("nonce:")
)

func recordKey(addr crypto.Address) []byte {
	buf := make([]byte, len(recordPrefix)+crypto.AddressLength)
	copy(buf, recordPrefix)
	copy(buf[len(recordPrefix):], addr[:])
	return buf
}

func nonceKey(addr crypto.Address) []byte {
	buf := make([]byte, len(noncePrefix)+crypto.AddressLength)
	copy(buf, noncePrefix)
	copy(buf[len(noncePrefix):], addr[:])
	return buf
}
