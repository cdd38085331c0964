package sds

// Op names a store operation. Store doubles record calls by Op and the
// harness trace reports them by the same names.
type Op string

const (
	OpGetOrCreateType      Op = "get_or_create_type"
	OpCreateOrUpdateStream Op = "create_or_update_stream"
	OpInsertValues         Op = "insert_values"
	OpDeleteStream         Op = "delete_stream"
	OpDeleteType           Op = "delete_type"
	OpGetType              Op = "get_type"
	OpGetStream            Op = "get_stream"
	OpGetWindowValues      Op = "get_window_values"
)

// ParseOp validates an operation name.
func ParseOp(s string) (Op, bool) {
	switch op := Op(s); op {
	case OpGetOrCreateType, OpCreateOrUpdateStream, OpInsertValues,
		OpDeleteStream, OpDeleteType, OpGetType, OpGetStream, OpGetWindowValues:
		return op, true
	}
	return "", false
}
