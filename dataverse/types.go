package dataverse

import (
	"time"
)

// Record is a single Dataverse record. Attribute names are the logical
// names from the Web API (e.g. "fullname", "emailaddress1").
type Record map[string]any

// ID returns the value of the given primary key attribute
// (e.g. "leadid"), or an empty string if absent.
func (r Record) ID(attribute string) string {
	return r.String(attribute)
}

// String returns the named attribute as a string.
// Returns an empty string if the attribute is absent or not a string.
func (r Record) String(attribute string) string {
	if v, ok := r[attribute].(string); ok {
		return v
	}
	return ""
}

// Bool returns the named attribute as a bool.
func (r Record) Bool(attribute string) bool {
	if v, ok := r[attribute].(bool); ok {
		return v
	}
	return false
}

// Float returns the named attribute as a float64.
// JSON numbers decode as float64, so this covers numeric option sets and money.
func (r Record) Float(attribute string) float64 {
	if v, ok := r[attribute].(float64); ok {
		return v
	}
	return 0
}

// Time parses the named attribute as an RFC 3339 timestamp.
// Dataverse returns datetimes in UTC. Returns the zero time on failure.
func (r Record) Time(attribute string) time.Time {
	s := r.String(attribute)
	if s == "" {
		return time.Time{}
	}

	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Collection is the OData envelope for entity set responses.
type Collection struct {
	// Context is the @odata.context metadata URL.
	Context string `json:"@odata.context"`
	// Count is the total record count when $count=true was requested.
	Count *int64 `json:"@odata.count,omitempty"`
	// Value holds the records in this page.
	Value []Record `json:"value"`
	// NextLink is the URL of the next page, empty on the last page.
	NextLink string `json:"@odata.nextLink,omitempty"`
}

// HasMore returns true if the collection has further pages.
func (c *Collection) HasMore() bool {
	return c.NextLink != ""
}

// WhoAmIResponse is the result of the WhoAmI unbound function.
type WhoAmIResponse struct {
	// UserId is the system user id of the authenticated caller.
	UserID string `json:"UserId"`
	// BusinessUnitId is the caller's business unit.
	BusinessUnitID string `json:"BusinessUnitId"`
	// OrganizationId is the Dataverse organisation.
	OrganizationID string `json:"OrganizationId"`
}
