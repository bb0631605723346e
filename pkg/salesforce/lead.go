package salesforce

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
)

// Lead represents a Salesforce Lead record.
type Lead struct {
	ID                string  `json:"Id" salesforce:"Id"`
	Company           string  `json:"Company" salesforce:"Company"`
	Email             string  `json:"Email" salesforce:"Email"`
	LastName          string  `json:"LastName" salesforce:"LastName"`
	Website           string  `json:"Website" salesforce:"Website"`
	Industry          string  `json:"Industry" salesforce:"Industry"`
	NumberOfEmployees int     `json:"NumberOfEmployees" salesforce:"NumberOfEmployees"`
	Rating            string  `json:"Rating" salesforce:"Rating"`
	LeadSource        string  `json:"LeadSource" salesforce:"LeadSource"`
	OwnerAlias        string  `json:"OwnerAlias,omitempty" salesforce:"OwnerAlias"`
	Description       string  `json:"Description" salesforce:"Description"`
	AnnualRevenue     float64 `json:"AnnualRevenue" salesforce:"AnnualRevenue"`
}

// leadFields are the SOQL fields selected for Lead queries.
var leadFields = []string{
	"Id", "Company", "Email", "LastName", "Website", "Industry",
	"NumberOfEmployees", "Rating", "LeadSource", "Description", "AnnualRevenue",
}

// FindLeadByCompany queries Salesforce for a Lead matching the company name.
// Returns nil if no lead is found.
func FindLeadByCompany(ctx context.Context, c Client, company string) (*Lead, error) {
	soql := fmt.Sprintf(
		"SELECT %s FROM Lead WHERE Company = '%s' LIMIT 1",
		strings.Join(leadFields, ", "),
		escapeSoql(company),
	)

	var leads []Lead
	if err := c.Query(ctx, soql, &leads); err != nil {
		return nil, eris.Wrap(err, fmt.Sprintf("sf: find lead by company %s", company))
	}
	if len(leads) == 0 {
		return nil, nil
	}
	return &leads[0], nil
}

// CreateLead creates a new Lead record and returns the new Salesforce ID.
// Company and LastName are required by the Lead object.
func CreateLead(ctx context.Context, c Client, fields map[string]any) (string, error) {
	if fields["Company"] == nil || fields["Company"] == "" {
		return "", eris.New("sf: lead Company is required")
	}
	if fields["LastName"] == nil || fields["LastName"] == "" {
		fields["LastName"] = "Unknown"
	}
	id, err := c.InsertOne(ctx, "Lead", fields)
	if err != nil {
		return "", eris.Wrap(err, "sf: create lead")
	}
	return id, nil
}

// UpdateLead updates a Lead record with the given fields.
func UpdateLead(ctx context.Context, c Client, leadID string, fields map[string]any) error {
	if leadID == "" {
		return eris.New("sf: lead id is required")
	}
	if len(fields) == 0 {
		return eris.New("sf: no fields to update")
	}
	if err := c.UpdateOne(ctx, "Lead", leadID, fields); err != nil {
		return eris.Wrap(err, fmt.Sprintf("sf: update lead %s", leadID))
	}
	return nil
}

// escapeSoql escapes single quotes in SOQL string literals to prevent injection.
func escapeSoql(s string) string {
	return strings.ReplaceAll(s, "'", "\\'")
}
