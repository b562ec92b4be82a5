package models

// Cell change classification recorded in the history ledger.
const (
	ChangeTypeCreate  = "create"
	ChangeTypeValue   = "value"
	ChangeTypeFormula = "formula"
	ChangeTypeFormat  = "format"
	ChangeTypeDelete  = "delete"
)

// Sheet access levels granted through UserSheet.
const (
	PermissionRead  = "read"
	PermissionWrite = "write"
	PermissionAdmin = "admin"
)

// House status values a journal row may carry in its status column.
const (
	HouseStatusCheckOut = "Выселение"
	HouseStatusCheckIn  = "Заселение"
	HouseStatusBoth     = "Выс/Зас"
)

// Journal sheet column layout.
const (
	JournalColMonth          = 0
	JournalColCheckInDate    = 1
	JournalColDayCount       = 2
	JournalColCheckOutDate   = 3
	JournalColGuest          = 4
	JournalColPhone          = 5
	JournalColTotalAmount    = 6
	JournalColPrepayment     = 7
	JournalColExtraCharge    = 8
	JournalColHouseStatus    = 9
	JournalColBookingSource  = 10
	JournalColPaymentComment = 11
	JournalColDayComment     = 12
)

// Report sheet column layout.
const (
	ReportColAddress       = 0
	ReportColHouseStatus   = 1
	ReportColCheckOutStart = 2
	ReportColCheckOutEnd   = 5
	ReportColCheckInStart  = 6
	ReportColCheckInEnd    = 15
	ReportColDayComments   = 16
)

// JournalNamePrefix is stripped from a journal sheet's name to obtain the
// property address used for report matching.
const JournalNamePrefix = "Журнал заселения "

// ReportNameMarker identifies report sheets by name.
const ReportNameMarker = "Отчет"
