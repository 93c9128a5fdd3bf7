package model

// Actor is the authenticated caller of an operation. VendorID is set when
// the user owns an approved vendor profile.
type Actor struct {
	UserID   uint64 `json:"user_id"`
	Role     Role   `json:"role"`
	VendorID uint64 `json:"vendor_id,omitempty"`
}

func (a Actor) IsAdmin() bool    { return a.Role == RoleAdmin }
func (a Actor) IsVendor() bool   { return a.Role == RoleVendor }
func (a Actor) IsCustomer() bool { return a.Role == RoleCustomer }

// ActsFor reports whether the actor may act on behalf of vendorID
func (a Actor) ActsFor(vendorID uint64) bool {
	return a.VendorID != 0 && a.VendorID == vendorID
}
