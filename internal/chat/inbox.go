package chat

import "sort"

// DirectoryOptions controls how summary rows fold into partners.
type DirectoryOptions struct {
	// DedupeEvents drops repeated event ids within one partner's event list.
	// The backend's own listing appends one entry per row.
	DedupeEvents bool
}

// directoryAcc is the accumulator for BuildDirectory. Each fold returns the
// updated accumulator; only records created inside the reduction are mutated.
type directoryAcc struct {
	order []int64
	byID  map[int64]*Partner
	opts  DirectoryOptions
}

func newDirectoryAcc(opts DirectoryOptions) directoryAcc {
	return directoryAcc{byID: map[int64]*Partner{}, opts: opts}
}

func (a directoryAcc) fold(row ConversationRow) directoryAcc {
	if row.PartnerID == 0 {
		return a
	}
	p, ok := a.byID[row.PartnerID]
	if !ok {
		p = &Partner{
			ID:     row.PartnerID,
			Name:   row.PartnerName,
			Email:  row.PartnerEmail,
			Role:   row.PartnerRole,
			Events: []PartnerEvent{},
		}
		a.byID[row.PartnerID] = p
		a.order = append(a.order, row.PartnerID)
	}
	p.Events = appendEvent(p.Events, PartnerEvent{ID: row.EventID, Name: row.EventName}, a.opts.DedupeEvents)
	p.UnreadTotal += row.UnreadCount
	if newerMessage(p, row) {
		p.LastMessage = row.LastMessage
		if row.LastMessageTime != nil {
			t := *row.LastMessageTime
			p.LastMessageTime = &t
		} else {
			p.LastMessageTime = nil
		}
	}
	return a
}

func (a directoryAcc) partners() []Partner {
	out := make([]Partner, 0, len(a.order))
	for _, id := range a.order {
		out = append(out, *a.byID[id])
	}
	sortByRecent(out)
	return out
}

func appendEvent(events []PartnerEvent, ev PartnerEvent, dedupe bool) []PartnerEvent {
	if dedupe {
		for _, e := range events {
			if e.ID == ev.ID {
				return events
			}
		}
	}
	return append(events, ev)
}

// newerMessage reports whether row should replace p's last-message fields:
// p has no timestamp yet, or row's timestamp is strictly later.
func newerMessage(p *Partner, row ConversationRow) bool {
	if p.LastMessageTime == nil {
		return true
	}
	if row.LastMessageTime == nil {
		return false
	}
	return row.LastMessageTime.After(*p.LastMessageTime)
}

// sortByRecent orders partners by last message time, newest first; partners
// without a timestamp go last and ties keep id order.
func sortByRecent(list []Partner) {
	sort.SliceStable(list, func(i, j int) bool {
		ti, tj := list[i].LastMessageTime, list[j].LastMessageTime
		switch {
		case ti == nil && tj == nil:
			return list[i].ID < list[j].ID
		case ti == nil:
			return false
		case tj == nil:
			return true
		case !ti.Equal(*tj):
			return ti.After(*tj)
		}
		return list[i].ID < list[j].ID
	})
}

// BuildDirectory folds conversation summary rows into one Partner per
// counterpart. Rows without a partner id are skipped. rows is not modified.
func BuildDirectory(rows []ConversationRow, opts DirectoryOptions) []Partner {
	acc := newDirectoryAcc(opts)
	for _, row := range rows {
		acc = acc.fold(row)
	}
	return acc.partners()
}

// Directory is the built partner list with id lookup.
type Directory struct {
	partners []Partner
	index    map[int64]int
}

func NewDirectory(partners []Partner) *Directory {
	d := &Directory{partners: partners, index: make(map[int64]int, len(partners))}
	for i, p := range partners {
		d.index[p.ID] = i
	}
	return d
}

// Find returns a copy of the partner with id.
func (d *Directory) Find(id int64) (Partner, bool) {
	if d == nil {
		return Partner{}, false
	}
	i, ok := d.index[id]
	if !ok {
		return Partner{}, false
	}
	return d.partners[i].clone(), true
}

// ResetUnread zeroes one partner's unread total in place.
func (d *Directory) ResetUnread(id int64) bool {
	if d == nil {
		return false
	}
	i, ok := d.index[id]
	if !ok {
		return false
	}
	d.partners[i].UnreadTotal = 0
	return true
}

// List returns a deep copy of the partners.
func (d *Directory) List() []Partner {
	if d == nil {
		return []Partner{}
	}
	out := make([]Partner, len(d.partners))
	for i, p := range d.partners {
		out[i] = p.clone()
	}
	return out
}

// UnreadTotal sums unread counts across all partners.
func (d *Directory) UnreadTotal() int {
	if d == nil {
		return 0
	}
	n := 0
	for _, p := range d.partners {
		n += p.UnreadTotal
	}
	return n
}

func (d *Directory) Len() int {
	if d == nil {
		return 0
	}
	return len(d.partners)
}
