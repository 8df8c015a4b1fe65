package requests

import "time"

type CreateRequest struct {
	BookID string `json:"book_id" binding:"required"`
	Notes  string `json:"notes"`
}

type RejectRequest struct {
	Reason string `json:"reason"`
}

type RequestResponse struct {
	RequestID string     `json:"request_id"`
	UserID    string     `json:"user_id"`
	BookID    string     `json:"book_id"`
	BookTitle string     `json:"book_title"`
	Status    string     `json:"status"`
	Notes     string     `json:"notes,omitempty"`
	DecidedBy string     `json:"decided_by,omitempty"`
	DecidedAt *time.Time `json:"decided_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

type ListResponse struct {
	Requests []RequestResponse `json:"requests"`
	Total    int               `json:"total"`
	Limit    int               `json:"limit"`
	Offset   int               `json:"offset"`
}

func toResponse(r *BorrowRequest, bookULID, bookTitle string) RequestResponse {
	out := RequestResponse{
		RequestID: r.RequestULID,
		UserID:    r.UserID,
		BookID:    bookULID,
		BookTitle: bookTitle,
		Status:    r.Status,
		CreatedAt: r.CreatedAt,
	}
	if r.Notes.Valid {
		out.Notes = r.Notes.String
	}
	if r.DecidedBy.Valid {
		out.DecidedBy = r.DecidedBy.String
	}
	if r.DecidedAt.Valid {
		da := r.DecidedAt.Time
		out.DecidedAt = &da
	}
	return out
}
