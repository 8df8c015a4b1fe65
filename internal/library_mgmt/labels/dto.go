package labels

type ExportRequest struct {
	// Barcodes selects individual copies; BookID selects every copy of
	// a book. At least one must be given.
	Barcodes []string `json:"barcodes"`
	BookID   string   `json:"book_id"`
	// Encoding of the CSV payload: "cp932" (default, for the label
	// printer software) or "utf8".
	Encoding string `json:"encoding"`
}

// LabelRow is one printable label: what ends up on the spine sticker.
type LabelRow struct {
	Title   string
	Author  string
	Barcode string
	ISBN    string
}
