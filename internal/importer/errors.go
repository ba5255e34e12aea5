package importer

// errors.go classifies sheet failures and maps them to operator-facing
// messages with support codes.
//
//	CLS001  layout not recognized        add a signature or fix the sheet
//	EXT001  no priced cells extracted    check the header row in the dump
//	EXT002  no extractor for layout      register one
//	SRC001  no data for sheet            nothing to do; sheet is skipped
//	SRC002  sheet could not be fetched   check the workbook path or URL
//	SRC003  worksheet missing            check the sheet name
//	SRC004  fetch throttled              lower concurrency or retry
//	INP001  bad sheet metadata           fix the manifest entry
//	REC001  catalog write failed         retry the sheet
//	LED001  ledger write failed          catalog may be committed; see read-back
//	DB001-DB007 database conditions      retry, or check the database
//	ERR000  anything else
//
// Sentinels are matched with errors.Is first, then the message is matched
// case-insensitively against the pattern table, then the sheet error kind
// decides. The first match wins.

import (
	"errors"
	"fmt"
	"strings"

	"github.com/JonMunkholm/pricesheet/internal/classify"
	"github.com/JonMunkholm/pricesheet/internal/extract"
	"github.com/JonMunkholm/pricesheet/internal/ledger"
	"github.com/JonMunkholm/pricesheet/internal/sheets"
)

// Kind is the failure category of a sheet.
type Kind string

const (
	KindClassification Kind = "classification"
	KindExtraction     Kind = "extraction"
	KindSource         Kind = "source"
	KindInput          Kind = "input"
	KindReconciliation Kind = "reconciliation"
	KindLedger         Kind = "ledger"
)

// Retryable reports whether re-running the sheet unchanged may succeed.
func (k Kind) Retryable() bool {
	switch k {
	case KindReconciliation, KindLedger, KindSource:
		return true
	default:
		return false
	}
}

// SheetError is a failure of one sheet. Row and Col locate the offending
// cell when known, and are -1 otherwise.
type SheetError struct {
	Kind    Kind
	SheetID string
	Row     int
	Col     int
	Err     error
}

func newSheetError(kind Kind, sheetID string, err error) *SheetError {
	return &SheetError{Kind: kind, SheetID: sheetID, Row: -1, Col: -1, Err: err}
}

func (e *SheetError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "sheet %s: %s", e.SheetID, e.Kind)
	if e.Row >= 0 {
		fmt.Fprintf(&b, " at row %d", e.Row)
		if e.Col >= 0 {
			fmt.Fprintf(&b, " col %d", e.Col)
		}
	}
	fmt.Fprintf(&b, ": %v", e.Err)
	return b.String()
}

func (e *SheetError) Unwrap() error { return e.Err }

// KindOf returns the kind of a SheetError anywhere in err's chain.
func KindOf(err error) (Kind, bool) {
	var se *SheetError
	if errors.As(err, &se) {
		return se.Kind, true
	}
	return "", false
}

// UserMessage is an operator-facing description of a failure.
type UserMessage struct {
	Message string `json:"message"`
	Action  string `json:"action"`
	Code    string `json:"code"`
}

var sentinelMessages = []struct {
	err error
	msg UserMessage
}{
	{classify.ErrNotRecognized, UserMessage{
		Message: "Sheet layout was not recognized",
		Action:  "Review the row dump in the log; add a layout signature or correct the sheet",
		Code:    "CLS001",
	}},
	{extract.ErrNoValidVariants, UserMessage{
		Message: "No priced variants could be extracted",
		Action:  "Check that the price columns sit under the detected header row",
		Code:    "EXT001",
	}},
	{extract.ErrNoExtractor, UserMessage{
		Message: "No extractor is registered for the detected layout",
		Action:  "Register an extractor for the layout",
		Code:    "EXT002",
	}},
	{sheets.ErrNoData, UserMessage{
		Message: "The sheet has no data",
		Action:  "Nothing to import; the sheet was skipped",
		Code:    "SRC001",
	}},
	{sheets.ErrSheetNotFound, UserMessage{
		Message: "The worksheet does not exist in the workbook",
		Action:  "Check the sheet name in the manifest",
		Code:    "SRC003",
	}},
	{sheets.ErrThrottled, UserMessage{
		Message: "Too many sheet fetches are in flight",
		Action:  "Lower SHEETS_FETCH_CONCURRENCY or retry the batch",
		Code:    "SRC004",
	}},
	{ledger.ErrTerminal, UserMessage{
		Message: "The sheet is already completed",
		Action:  "Forget the sheet first to import it again",
		Code:    "LED002",
	}},
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns are matched in order against the lower-cased error text.
var errorPatterns = []errorPattern{
	{"duplicate key", UserMessage{
		Message: "A catalog record with this identity already exists",
		Action:  "Retry the sheet; catalog writes are idempotent",
		Code:    "DB001",
	}},
	{"violates unique", UserMessage{
		Message: "A duplicate catalog value was found",
		Action:  "Retry the sheet; concurrent imports may have raced",
		Code:    "DB002",
	}},
	{"violates foreign key", UserMessage{
		Message: "A referenced catalog record does not exist",
		Action:  "Run migrate and retry the sheet",
		Code:    "DB003",
	}},
	{"connection refused", UserMessage{
		Message: "Unable to connect to the database",
		Action:  "Check DATABASE_URL and that the database is running",
		Code:    "DB004",
	}},
	{"connection reset", UserMessage{
		Message: "The database connection was interrupted",
		Action:  "Retry the sheet",
		Code:    "DB005",
	}},
	{"timeout", UserMessage{
		Message: "A storage operation timed out",
		Action:  "Retry the sheet later",
		Code:    "DB006",
	}},
	{"deadline exceeded", UserMessage{
		Message: "A storage operation timed out",
		Action:  "Retry the sheet later",
		Code:    "DB006",
	}},
	{"deadlock", UserMessage{
		Message: "The database was busy with conflicting writes",
		Action:  "Retry the sheet",
		Code:    "DB007",
	}},
}

var kindMessages = map[Kind]UserMessage{
	KindSource: {
		Message: "The sheet could not be fetched",
		Action:  "Check the workbook path or URL in the manifest",
		Code:    "SRC002",
	},
	KindInput: {
		Message: "The sheet's manifest entry is invalid",
		Action:  "Fix the manifest entry and re-run the sheet",
		Code:    "INP001",
	},
	KindReconciliation: {
		Message: "Writing the sheet to the catalog failed",
		Action:  "Retry the sheet; partial writes are rolled back",
		Code:    "REC001",
	},
	KindLedger: {
		Message: "Recording the sheet's status failed",
		Action:  "Check the ledger store; the catalog may already hold the sheet's data",
		Code:    "LED001",
	},
}

var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Check the logs for the sheet",
	Code:    "ERR000",
}

// MapError converts an error into an operator-facing message.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}
	for _, s := range sentinelMessages {
		if errors.Is(err, s.err) {
			return s.msg
		}
	}

	text := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(text, ep.pattern) {
			return ep.msg
		}
	}

	if kind, ok := KindOf(err); ok {
		if msg, ok := kindMessages[kind]; ok {
			return msg
		}
	}
	return defaultMessage
}

// FormatUserError renders "Message (Code: X). Action".
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}
