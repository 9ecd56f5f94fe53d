// Package icrypto builds the additional authenticated data that binds a
// sealed envelope to where it is stored.
package icrypto

import (
	"encoding/binary"
)

const (
	aadRecord  = "RECORD"
	aadKeyWrap = "KEYWRAP"
)

// AADRecord binds a record envelope to its vault, type, id and format
// version, so an envelope copied to another location fails to open.
func AADRecord(vaultID, recordType, recordID string, ver int) []byte {
	return buildAAD(aadRecord, vaultID, recordType, recordID, ver)
}

// AADKeyWrap binds a wrapped key to its vault and key id.
func AADKeyWrap(vaultID, keyID string, ver int) []byte {
	return buildAAD(aadKeyWrap, vaultID, keyID, ver)
}

func buildAAD(parts ...any) []byte {
	var res []byte
	for _, p := range parts {
		switch v := p.(type) {
		case string:
			res = appendLenPrefix(res, []byte(v))
		case []byte:
			res = appendLenPrefix(res, v)
		case uint64:
			b := make([]byte, 8)
			binary.BigEndian.PutUint64(b, v)
			res = append(res, b...)
		case int:
			b := make([]byte, 4)
			binary.BigEndian.PutUint32(b, uint32(v))
			res = append(res, b...)
		}
	}
	return res
}

func appendLenPrefix(b, data []byte) []byte {
	l := make([]byte, 4)
	binary.BigEndian.PutUint32(l, uint32(len(data)))
	b = append(b, l...)
	b = append(b, data...)
	return b
}
