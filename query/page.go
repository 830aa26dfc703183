package query

// DefaultPageSize is used when a caller asks for a non-positive page size.
const DefaultPageSize = 10

// Page is one zero-indexed slice of a sorted list.
type Page[T any] struct {
	Items           []T  `json:"items"`
	PageIndex       int  `json:"page"`
	PageSize        int  `json:"page_size"`
	Total           int  `json:"total"`
	TotalPages      int  `json:"total_pages"`
	HasNextPage     bool `json:"has_next_page"`
	HasPreviousPage bool `json:"has_previous_page"`
}

// Paginate returns page pageIndex of list. An out-of-range index is clamped to
// the first or last page.
func Paginate[T any](list []T, pageSize, pageIndex int) Page[T] {
	p := NewPager(pageSize)
	p.SetTotal(len(list))
	p.GoTo(pageIndex)
	start, end := p.Bounds()
	return Page[T]{
		Items:           list[start:end],
		PageIndex:       p.Page(),
		PageSize:        p.PageSize(),
		Total:           len(list),
		TotalPages:      p.TotalPages(),
		HasNextPage:     p.HasNextPage(),
		HasPreviousPage: p.HasPreviousPage(),
	}
}

// Pager tracks a clamped page index over a list of known length. Every
// navigation method goes through GoTo. A Pager is not safe for concurrent use.
type Pager struct {
	size  int
	page  int
	total int
}

func NewPager(pageSize int) *Pager {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Pager{size: pageSize}
}

func (p *Pager) PageSize() int { return p.size }
func (p *Pager) Page() int     { return p.page }
func (p *Pager) Total() int    { return p.total }

// SetTotal updates the list length and re-clamps the current page.
func (p *Pager) SetTotal(n int) {
	if n < 0 {
		n = 0
	}
	p.total = n
	p.GoTo(p.page)
}

// SetPageSize changes the page size and re-clamps the current page.
func (p *Pager) SetPageSize(size int) {
	if size <= 0 {
		size = DefaultPageSize
	}
	p.size = size
	p.GoTo(p.page)
}

func (p *Pager) TotalPages() int {
	return (p.total + p.size - 1) / p.size
}

// GoTo moves to page n, clamped to [0, TotalPages-1], and returns the page
// actually selected.
func (p *Pager) GoTo(n int) int {
	last := p.TotalPages() - 1
	if n > last {
		n = last
	}
	if n < 0 {
		n = 0
	}
	p.page = n
	return n
}

func (p *Pager) Next() int     { return p.GoTo(p.page + 1) }
func (p *Pager) Previous() int { return p.GoTo(p.page - 1) }
func (p *Pager) First() int    { return p.GoTo(0) }
func (p *Pager) Last() int     { return p.GoTo(p.TotalPages() - 1) }

func (p *Pager) HasNextPage() bool     { return p.page < p.TotalPages()-1 }
func (p *Pager) HasPreviousPage() bool { return p.page > 0 }

// Bounds returns the half-open index range of the current page.
func (p *Pager) Bounds() (start, end int) {
	start = p.page * p.size
	end = start + p.size
	if start > p.total {
		start = p.total
	}
	if end > p.total {
		end = p.total
	}
	return start, end
}
