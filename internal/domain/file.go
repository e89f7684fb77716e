package domain

import "time"

// File is an uploaded attachment linked to a ticket.
//
// The link is a many-to-many join (ticket_files); this service reads the
// joined projection for display and inserts new links when a customer sends
// a message with pending uploads. Upload itself happens elsewhere.
type File struct {
	ID          string
	FileName    string
	ContentType string
	StoragePath string
	CreatedAt   time.Time
}
