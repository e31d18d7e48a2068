package checklist

import (
	"time"

	id "sebenza/pkg/domain"
)

// ItemType names one atomic compliance requirement. Exactly thirteen exist;
// the set is fixed programme-wide and not configurable.
type ItemType string

const (
	ItemIdentityConfirmed        ItemType = "IDENTITY_CONFIRMED"
	ItemPOPIAConsent             ItemType = "POPIA_CONSENT"
	ItemDocCertifiedID           ItemType = "DOC_CERTIFIED_ID"
	ItemDocPoliceAffidavit       ItemType = "DOC_POLICE_AFFIDAVIT"
	ItemDocBankProof             ItemType = "DOC_BANK_PROOF"
	ItemDocAddressProof          ItemType = "DOC_ADDRESS_PROOF"
	ItemDocApplicationForm       ItemType = "DOC_APPLICATION_FORM"
	ItemDocCV                    ItemType = "DOC_CV"
	ItemDataPersonalConfirmed    ItemType = "DATA_PERSONAL_CONFIRMED"
	ItemDataBankConfirmed        ItemType = "DATA_BANK_CONFIRMED"
	ItemDataAddressConfirmed     ItemType = "DATA_ADDRESS_CONFIRMED"
	ItemDataApplicationConfirmed ItemType = "DATA_APPLICATION_CONFIRMED"
	ItemFinalDeclaration         ItemType = "FINAL_DECLARATION"
)

// allItemTypes is the single source of truth for the checklist, in display
// order.
var allItemTypes = []ItemType{
	ItemIdentityConfirmed,
	ItemPOPIAConsent,
	ItemDocCertifiedID,
	ItemDocPoliceAffidavit,
	ItemDocBankProof,
	ItemDocAddressProof,
	ItemDocApplicationForm,
	ItemDocCV,
	ItemDataPersonalConfirmed,
	ItemDataBankConfirmed,
	ItemDataAddressConfirmed,
	ItemDataApplicationConfirmed,
	ItemFinalDeclaration,
}

var validItemTypes = func() map[ItemType]bool {
	m := make(map[ItemType]bool, len(allItemTypes))
	for _, t := range allItemTypes {
		m[t] = true
	}
	return m
}()

// AllItemTypes returns the fixed checklist in order.
func AllItemTypes() []ItemType {
	return append([]ItemType{}, allItemTypes...)
}

// IsValid checks the item type against the fixed set.
func (t ItemType) IsValid() bool { return validItemTypes[t] }

// ValidationStatus tracks whether a completed item passed validation.
type ValidationStatus string

const (
	StatusPending ValidationStatus = "PENDING"
	StatusValid   ValidationStatus = "VALID"
	StatusInvalid ValidationStatus = "INVALID"
)

// Item is one checklist row for one candidate.
type Item struct {
	ID               id.ItemID        `json:"id"`
	CandidateID      id.CandidateID   `json:"candidateId"`
	Type             ItemType         `json:"type"`
	Completed        bool             `json:"completed"`
	ValidationStatus ValidationStatus `json:"validationStatus"`
	CompletedAt      *time.Time       `json:"completedAt,omitempty"`
	CompletedBy      string           `json:"completedBy,omitempty"`
	ValidationNotes  string           `json:"validationNotes,omitempty"`
}

// IsSatisfied reports whether the item counts toward verification.
func (i Item) IsSatisfied() bool {
	return i.Completed && i.ValidationStatus == StatusValid
}

// Status summarizes a candidate's checklist. IsComplete requires every item
// completed and valid; a single invalid item blocks verification.
type Status struct {
	Total        int        `json:"total"`
	Completed    int        `json:"completed"`
	Pending      int        `json:"pending"`
	Invalid      int        `json:"invalid"`
	Percentage   int        `json:"percentage"`
	IsComplete   bool       `json:"isComplete"`
	MissingItems []ItemType `json:"missingItems"`
}
