package hooks

import (
	"encoding/json"

	"github.com/fhirstore/zunder/internal/index"
	"github.com/jmoiron/sqlx"
)

// MembershipHook rebuilds the `search_membership_in`/`search_membership_list`
// tables whenever a Group, List, or CareTeam is written (spec §4.8:
// "Group/List/CareTeam writes rebuild membership tables"). All of the
// actual clear-then-rebuild logic already lives in
// internal/index.RebuildMembershipsForResource (C4), built for exactly
// this call site; this hook just adapts that function to the Hook
// interface instead of duplicating it.
type MembershipHook struct{}

func NewMembershipHook() *MembershipHook { return &MembershipHook{} }

func (h *MembershipHook) ResourceTypes() []string {
	return []string{"Group", "List", "CareTeam"}
}

func (h *MembershipHook) AfterWrite(tx *sqlx.Tx, resourceType, id string, body json.RawMessage) error {
	return index.RebuildMembershipsForResource(tx, resourceType, id, body, false)
}

// AfterDelete clears this resource's membership rows in their own short
// transaction, since a hard/soft delete has already committed by the
// time best-effort cleanup hooks run.
func (h *MembershipHook) AfterDelete(db *sqlx.DB, resourceType, id string) error {
	tx, err := db.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := index.RebuildMembershipsForResource(tx, resourceType, id, nil, true); err != nil {
		return err
	}
	return tx.Commit()
}
