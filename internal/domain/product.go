package domain

// Product is one per-product configuration entry linking a monetized
// product to its signing secret and tier-specific subscription targets.
// The form/tag values are raw comma-separated id lists, parsed at use.
// Entries are loaded once at startup and are read-only afterwards.
type Product struct {
	ID          int64  `json:"id"`
	Slug        string `json:"slug"`
	PublicKey   string `json:"public_key"`
	SecretKey   string `json:"secret_key,omitempty"`
	FreeFormIDs string `json:"free_form_ids"`
	FreeTagIDs  string `json:"free_tag_ids"`
	PaidFormIDs string `json:"paid_form_ids"`
	PaidTagIDs  string `json:"paid_tag_ids"`
}
