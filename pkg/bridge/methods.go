package bridge

// Method names the fixed call vocabulary the driver bridge implements.
// The layer never issues anything outside this set.
type Method string

const (
	MethodConnect        Method = "connect"
	MethodDo             Method = "do"
	MethodSelectAll      Method = "select-all"
	MethodPrepare        Method = "prepare"
	MethodExecute        Method = "execute"
	MethodFetchColumns   Method = "fetch-columns"
	MethodFetch          Method = "fetch"
	MethodAutoCommit     Method = "auto-commit"
	MethodCommit         Method = "commit"
	MethodRollback       Method = "rollback"
	MethodStatus         Method = "status"
	MethodTypeInfoAll    Method = "type-info-all"
	MethodTableInfo      Method = "table-info"
	MethodColumnInfo     Method = "column-info"
	MethodPrimaryKeyInfo Method = "primary-key-info"
	MethodForeignKeyInfo Method = "foreign-key-info"
)
