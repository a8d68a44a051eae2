package domain

// ============================================================
// Documents & Reviews — payloads exchanged with collaborator services
// ============================================================

// Document owner types understood by the file storage service.
const (
	OwnerTypeBillingEntry = "lancamento"
	CategoryBillingProof  = "comprovante"
)

// FileUpload is a blob plus the metadata the file storage service files it under.
type FileUpload struct {
	FileName    string
	ContentType string
	Data        []byte
	OwnerType   string
	OwnerID     string
	Category    string
	Description string
}

// FileAccess selects how a stored file is opened.
type FileAccess string

const (
	FileView     FileAccess = "view"
	FileDownload FileAccess = "download"
)

// IsValid reports whether a is a known access mode.
func (a FileAccess) IsValid() bool {
	return a == FileView || a == FileDownload
}

// Review is a reviewer decision sent to the clinic API.
type Review struct {
	Decision   EntryStatus `json:"decision"` // APPROVED or REJECTED
	Reason     string      `json:"reason,omitempty"`
	ReviewedBy string      `json:"reviewedBy"`
}

// ReviewOf builds the review that moved e into its current status.
func ReviewOf(e *BillingEntry) Review {
	return Review{Decision: e.Status, Reason: e.RejectionReason, ReviewedBy: e.ReviewedBy}
}
