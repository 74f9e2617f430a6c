package ledger

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"hash"
	"time"
)

// GenesisHash é o previous_hash da primeira transação da cadeia
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// Fields são os campos de uma transação cobertos pelo hash
type Fields struct {
	From        *AccountID
	To          *AccountID
	AmountCents int64
	Kind        Kind
	CreatedAt   time.Time
	Payload     []byte
}

// NextHash calcula o hash de uma transação encadeada a prevHash.
// Codificação canônica: cada campo vai em ordem fixa, strings e bytes
// com prefixo de tamanho, contas nulas com marcador de ausência, e
// created_at em microssegundos UTC (a precisão que o Postgres guarda).
func NextHash(prevHash string, f Fields) string {
	h := sha256.New()
	writeAccount(h, f.From)
	writeAccount(h, f.To)
	writeInt(h, f.AmountCents)
	writeBytes(h, []byte(f.Kind))
	writeInt(h, f.CreatedAt.UTC().UnixMicro())
	writeBytes(h, []byte(prevHash))
	writeBytes(h, f.Payload)
	return hex.EncodeToString(h.Sum(nil))
}

func writeAccount(h hash.Hash, acc *AccountID) {
	if acc == nil {
		h.Write([]byte{0})
		return
	}
	h.Write([]byte{1})
	writeBytes(h, []byte(*acc))
}

func writeBytes(h hash.Hash, b []byte) {
	var n [4]byte
	binary.BigEndian.PutUint32(n[:], uint32(len(b)))
	h.Write(n[:])
	h.Write(b)
}

func writeInt(h hash.Hash, v int64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(v))
	h.Write(b[:])
}
