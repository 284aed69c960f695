package deltamodel

// Action is a DbChange operation kind (spec.md section 3).
type Action string

const (
	ActionNew      Action = "NEW"
	ActionUpdate   Action = "UPDATE"
	ActionDelete   Action = "DELETE"
	ActionTruncate Action = "TRUNCATE"
)

// DbChange is one row-level write, in creation order within a batch
// (spec.md section 3: "Equality/ordering by creation order inside a
// batch"). Data uses column name -> value; value shapes are left to the
// Sink to interpret (ints, []byte, strings, nested maps for token_values).
type DbChange struct {
	Action Action
	Table  string
	Data   map[string]any

	// Seq is assigned by ChangeBuilder to preserve creation order when
	// changes are later sorted or deduplicated by callers; it is not part
	// of the logical record.
	Seq int
}
