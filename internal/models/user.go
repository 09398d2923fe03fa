package models

type Role string

const (
	RoleSuperAdmin Role = "SUPER_ADMIN"
	RoleBranch     Role = "BRANCH"
)

type ReportType string

const (
	ReportBookings   ReportType = "bookings"
	ReportDeliveries ReportType = "deliveries"
	ReportPayments   ReportType = "payments"
	ReportLedger     ReportType = "ledger"
)

func (r ReportType) Valid() bool {
	switch r {
	case ReportBookings, ReportDeliveries, ReportPayments, ReportLedger:
		return true
	}
	return false
}

// User is the acting principal. Role and scope are read-only inputs here.
type User struct {
	ID              string
	Role            Role
	HomeBranch      BranchID
	AllowedBranches []BranchID
	AllowedReports  []ReportType
}

func (u *User) IsSuperAdmin() bool {
	return u != nil && u.Role == RoleSuperAdmin
}
