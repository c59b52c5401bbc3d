package policy

// Row-level access rules. Owners see only their own rows; elevated
// service contexts (the analysis engine, auth/billing hooks) bypass
// ownership. Services evaluate these before every store operation so
// the rules stay independent of the storage technology.

const (
	RoleUser    = "authenticated"
	RoleService = "service"
)

// Caller an authenticated principal.
type Caller struct {
	UserID string
	Role   string
}

// Service the elevated caller used by trusted server contexts.
func Service() Caller {
	return Caller{Role: RoleService}
}

func (c Caller) IsService() bool {
	return c.Role == RoleService
}

// Owned anything with a row owner.
type Owned interface {
	OwnerID() string
}

// CanRead owners read their own rows; service reads everything.
func CanRead(caller Caller, row Owned) bool {
	if caller.IsService() {
		return true
	}
	return caller.UserID != "" && caller.UserID == row.OwnerID()
}

// CanInsert owners may insert rows they own; service inserts anything.
func CanInsert(caller Caller, row Owned) bool {
	return CanRead(caller, row)
}

// CanUpdate job and subscription updates are service-only. Owners never
// write job state; the analysis engine is the single writer.
func CanUpdate(caller Caller, row Owned) bool {
	return caller.IsService()
}
