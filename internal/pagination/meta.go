package pagination

// Meta describes where a page sits within the full result set.
type Meta struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int64 `json:"totalPages"`
	HasNext    bool  `json:"hasNext"`
	HasPrev    bool  `json:"hasPrev"`
}

// NewMeta derives page counts from total. HasNext compares page numbers
// rather than multiplying, so huge pages cannot overflow.
func NewMeta(p Params, total int64) Meta {
	var totalPages int64
	if p.Limit > 0 {
		totalPages = (total + int64(p.Limit) - 1) / int64(p.Limit)
	}

	return Meta{
		Page:       p.Page,
		Limit:      p.Limit,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    int64(p.Page) < totalPages,
		HasPrev:    p.Page > 1,
	}
}
