package domain

// JournalAction identifies what an announced transaction did.
type JournalAction string

const (
	JournalActionSave   JournalAction = "save"
	JournalActionDelete JournalAction = "delete"
)

// JournalEntry records one announced metadata transaction.
// Corresponds to the announcement_journal table in PostgreSQL and ClickHouse.
type JournalEntry struct {
	RunID       string        // uuid of the CLI invocation
	Action      JournalAction // save | delete
	Day         Day           // recorded day
	AssetID     int           // numeric asset id
	KeyHex      string        // scoped metadata key, uppercase hex
	Value       string        // stored value (empty for deletes)
	SizeDelta   int           // value size delta sent with the transaction
	TxHash      string        // aggregate transaction hash, uppercase hex
	AnnouncedAt int64         // Unix timestamp in milliseconds
}
